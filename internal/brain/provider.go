package brain

import (
	"context"
	"encoding/json"

	"github.com/moorebrett0/vernacular/internal/chat"
)

// Provider abstracts the reasoning backend (Claude, Gemini, etc.).
type Provider interface {
	Name() string
	Converse(ctx context.Context, req Request) (*Response, error)
}

// Request is one backend call.
type Request struct {
	System   string // empty means no system instruction is sent
	Messages []chat.Message
	Tools    []chat.ToolSpec
}

// Response is what a provider returns from a single Converse call.
type Response struct {
	Message    chat.Message
	StopReason chat.StopReason
}

// objectSchema is the subset of JSON schema tool inputs use.
type objectSchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description,omitempty"`
	Properties  map[string]*objectSchema `json:"properties,omitempty"`
	Items       *objectSchema            `json:"items,omitempty"`
	Required    []string                 `json:"required,omitempty"`
	Enum        []string                 `json:"enum,omitempty"`
}

func parseSchema(raw json.RawMessage) (*objectSchema, error) {
	var s objectSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
