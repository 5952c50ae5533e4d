package agent

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	"github.com/moorebrett0/vernacular/internal/fault"
)

// GeminiAgent answers queries with a grounded Gemini model, streaming
// the generated text.
type GeminiAgent struct {
	client      *genai.Client
	model       string
	instruction string
}

// NewGeminiAgent creates a Gemini-backed agent. instruction is the
// agent's own system instruction and may be empty.
func NewGeminiAgent(ctx context.Context, apiKey, model, instruction string) (*GeminiAgent, error) {
	if apiKey == "" || model == "" {
		return nil, fault.Configuration("agent.gemini", "GOOGLE_API_KEY and agent model are required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fault.Configuration("agent.gemini", "create client: %v", err)
	}
	return &GeminiAgent{client: client, model: model, instruction: instruction}, nil
}

func (g *GeminiAgent) Invoke(ctx context.Context, sessionID, query string) (Stream, error) {
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if g.instruction != "" {
		config.SystemInstruction = genai.NewContentFromText(g.instruction, "")
	}

	slog.Debug("agent: gemini invoke", "session", sessionID, "model", g.model)
	responses := g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(query), config)

	return func(yield func([]byte, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield(nil, fault.Transport("agent.gemini", err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield([]byte(text), nil) {
					return
				}
			}
		}
	}, nil
}
