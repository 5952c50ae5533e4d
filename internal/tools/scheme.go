package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moorebrett0/vernacular/internal/agent"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
)

// GovernmentSchemeTool is the name the reasoning backend calls.
const GovernmentSchemeTool = "government_scheme_info"

const governmentSchemeDescription = "MANDATORY: Always use this tool for ANY question about: government schemes, " +
	"budgets, MSME, subsidies, grants, policies, ministries, or government programs. Use this tool FIRST before " +
	"analyzing any uploaded documents when the question relates to government topics. Do not attempt to answer " +
	"government-related questions from uploaded documents alone."

var governmentSchemeSpec = chat.ToolSpec{
	Name:        GovernmentSchemeTool,
	Description: governmentSchemeDescription,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The exact user question about government schemes, budgets, MSME, subsidies, grants, or policies."
			}
		},
		"required": ["query"]
	}`),
}

// SchemeResult is the tool output handed back to the model.
type SchemeResult struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// New creates the dispatcher with every known tool registered.
// kb may be nil when no knowledge agent is configured; the tool is still
// declared and reports the missing configuration as an error result.
func New(kb agent.Agent, timeout time.Duration) *Dispatcher {
	d := newDispatcher(timeout)
	d.register(KindGovernmentScheme, governmentSchemeSpec, governmentSchemeHandler(kb))
	return d
}

func governmentSchemeHandler(kb agent.Agent) handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var params struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fault.ToolExecution(GovernmentSchemeTool, fmt.Errorf("invalid input: %w", err))
		}
		return LookupScheme(ctx, kb, params.Query)
	}
}

// LookupScheme asks the knowledge agent about a government scheme under a
// fresh session id. An empty answer is "no information found", which is a
// normal result; only transport failures are errors.
func LookupScheme(ctx context.Context, kb agent.Agent, query string) (SchemeResult, error) {
	if kb == nil {
		return SchemeResult{}, fault.Configuration(GovernmentSchemeTool, "Knowledge agent configuration missing")
	}

	sessionID := uuid.NewString()
	slog.Info("tools: querying knowledge agent", "session", sessionID, "query_len", len(query))

	stream, err := kb.Invoke(ctx, sessionID, query)
	if err != nil {
		return SchemeResult{}, transport(err)
	}
	text, err := agent.Collect(stream)
	if err != nil {
		return SchemeResult{}, transport(err)
	}
	if text == "" {
		return SchemeResult{Error: "No relevant information found for your query."}, nil
	}
	return SchemeResult{Detail: text}, nil
}

func transport(err error) error {
	if fault.Is(err, fault.KindTransport) {
		return err
	}
	return fault.Transport("agent.invoke", err)
}
