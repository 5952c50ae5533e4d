package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
)

// geminiProvider implements Provider using the Google Gemini API.
type geminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGeminiProvider(ctx context.Context, apiKey, model string, maxTokens int64) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &geminiProvider{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens),
	}, nil
}

func (g *geminiProvider) Name() string { return "gemini" }

func (g *geminiProvider) Converse(ctx context.Context, req Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		parts, err := geminiParts(m.Blocks)
		if err != nil {
			return nil, err
		}
		role := "user"
		if m.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	decls, err := geminiDeclarations(req.Tools)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: g.maxTokens,
	}
	if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, "")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, err
	}
	return geminiResponse(resp), nil
}

func geminiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{
		Message:    chat.Message{Role: chat.RoleAssistant},
		StopReason: chat.StopEndTurn,
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	cand := resp.Candidates[0]
	for i, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			raw, _ := json.Marshal(part.FunctionCall.Args)
			id := part.FunctionCall.ID
			if id == "" {
				// Older models omit call IDs; the part index keeps repeated
				// calls to the same function distinct.
				id = fmt.Sprintf("%s-%d", part.FunctionCall.Name, i)
			}
			out.Message.Blocks = append(out.Message.Blocks, chat.ToolUseBlock(chat.ToolUse{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Input:     raw,
				Signature: part.ThoughtSignature,
			}))
			out.StopReason = chat.StopToolUse
		case part.Text != "" && !part.Thought:
			out.Message.Blocks = append(out.Message.Blocks, chat.TextBlock(part.Text))
		}
	}

	if out.StopReason != chat.StopToolUse {
		switch cand.FinishReason {
		case genai.FinishReasonMaxTokens:
			out.StopReason = chat.StopMaxTokens
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			out.StopReason = chat.StopContentFilter
		}
	}
	return out
}

func geminiParts(blocks []chat.Block) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case chat.KindText:
			parts = append(parts, genai.NewPartFromText(b.Text))
		case chat.KindDocument:
			if b.Document.Format == "pdf" {
				parts = append(parts, genai.NewPartFromBytes(b.Document.Bytes, "application/pdf"))
				continue
			}
			text, err := attachment.DocumentText(b.Document)
			if err != nil {
				return nil, fmt.Errorf("gemini: document %s: %w", b.Document.Name, err)
			}
			parts = append(parts, genai.NewPartFromText(fmt.Sprintf("Document %q:\n%s", b.Document.Name, text)))
		case chat.KindImage:
			parts = append(parts, genai.NewPartFromBytes(b.Image.Bytes, b.Image.MIMEType()))
		case chat.KindToolUse:
			var args map[string]any
			_ = json.Unmarshal(b.ToolUse.Input, &args)
			part := genai.NewPartFromFunctionCall(b.ToolUse.Name, args)
			part.FunctionCall.ID = b.ToolUse.ID
			part.ThoughtSignature = b.ToolUse.Signature
			parts = append(parts, part)
		case chat.KindToolResult:
			r := b.ToolResult
			var payload map[string]any
			if err := json.Unmarshal(r.Payload, &payload); err != nil || payload == nil {
				payload = map[string]any{"output": string(r.Payload)}
			}
			if r.IsError() {
				if _, ok := payload["error"]; !ok {
					payload["error"] = string(r.Payload)
				}
				payload["is_error"] = true
			}
			part := genai.NewPartFromFunctionResponse(r.Name, payload)
			part.FunctionResponse.ID = r.ToolUseID
			parts = append(parts, part)
		default:
			return nil, fmt.Errorf("gemini: unsupported block kind %q", b.Kind)
		}
	}
	return parts, nil
}

func geminiDeclarations(specs []chat.ToolSpec) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema, err := parseSchema(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("gemini: tool %s schema: %w", spec.Name, err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(schema),
		})
	}
	return decls, nil
}

func geminiSchema(s *objectSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       geminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = geminiSchema(p)
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
