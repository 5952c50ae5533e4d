package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/moorebrett0/vernacular/internal/agent"
	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/tools"
)

// fakeProvider replays scripted responses and records every request.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	requests  []Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Converse(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return nil, errors.New("unexpected call")
	}
	return f.responses[i], nil
}

// fakeAgent answers every query with a fixed text and records queries.
type fakeAgent struct {
	answer  string
	err     error
	panics  bool
	queries []string
}

func (a *fakeAgent) Invoke(ctx context.Context, sessionID, query string) (agent.Stream, error) {
	a.queries = append(a.queries, query)
	if a.panics {
		panic("agent exploded")
	}
	if a.err != nil {
		return nil, a.err
	}
	return func(yield func([]byte, error) bool) {
		yield([]byte(a.answer), nil)
	}, nil
}

func text(reason chat.StopReason, s string) *Response {
	return &Response{
		Message:    chat.Message{Role: chat.RoleAssistant, Blocks: []chat.Block{chat.TextBlock(s)}},
		StopReason: reason,
	}
}

func toolCall(uses ...chat.ToolUse) *Response {
	blocks := []chat.Block{chat.TextBlock("Let me look that up.")}
	for _, u := range uses {
		blocks = append(blocks, chat.ToolUseBlock(u))
	}
	return &Response{
		Message:    chat.Message{Role: chat.RoleAssistant, Blocks: blocks},
		StopReason: chat.StopToolUse,
	}
}

func schemeUse(id, query string) chat.ToolUse {
	input, _ := json.Marshal(map[string]string{"query": query})
	return chat.ToolUse{ID: id, Name: tools.GovernmentSchemeTool, Input: input}
}

func newTestBrain(p Provider, kb agent.Agent) *Brain {
	return NewWithProvider(p, tools.New(kb, time.Second), Config{SystemPrompt: "You are a helpful assistant."})
}

func TestRunTurnRejectsEmptyPrompt(t *testing.T) {
	p := &fakeProvider{}
	b := newTestBrain(p, &fakeAgent{})

	for _, prompt := range []string{"", "   ", "\n\t "} {
		_, err := b.RunTurn(context.Background(), TurnRequest{Prompt: prompt})
		require.Error(t, err)
		assert.True(t, fault.Is(err, fault.KindValidation))
	}
	assert.Empty(t, p.requests)
}

func TestRunTurnWithoutTools(t *testing.T) {
	p := &fakeProvider{responses: []*Response{text(chat.StopEndTurn, "Here is a summary.")}}
	b := newTestBrain(p, &fakeAgent{})

	doc := attachment.Upload{
		Name:    "report.txt",
		MIME:    "text/plain",
		Size:    2 * 1024 * 1024,
		Content: bytes.NewReader(bytes.Repeat([]byte("x"), 2*1024*1024)),
	}
	msg, err := b.RunTurn(context.Background(), TurnRequest{
		Prompt:      "Summarize this document",
		Attachments: attachment.Set{Documents: []attachment.Upload{doc}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is a summary.", msg.Text())

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.Equal(t, "You are a helpful assistant.", req.System)
	require.Len(t, req.Tools, 1)
	require.Len(t, req.Messages, 1)
	content := req.Messages[0].Blocks
	require.Len(t, content, 2)
	assert.Equal(t, chat.KindText, content[0].Kind)
	assert.Equal(t, chat.KindDocument, content[1].Kind)
	assert.Equal(t, "report", content[1].Document.Name)
}

func TestRunTurnProjectsHistory(t *testing.T) {
	p := &fakeProvider{responses: []*Response{text(chat.StopEndTurn, "ok")}}
	b := newTestBrain(p, &fakeAgent{})

	history := []chat.Turn{
		{Role: chat.RoleUser, Text: "first"},
		{Role: chat.RoleAssistant, Text: "reply"},
	}
	_, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "second", History: history})
	require.NoError(t, err)

	msgs := p.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text())
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "second", msgs[2].Text())
}

func TestRunTurnSchemeScenario(t *testing.T) {
	const prompt = "What is the MSME subsidy scheme?"
	p := &fakeProvider{responses: []*Response{
		toolCall(schemeUse("tu-1", prompt)),
		text(chat.StopEndTurn, "The MSME scheme offers..."),
	}}
	kb := &fakeAgent{answer: "Credit-linked capital subsidy"}
	b := newTestBrain(p, kb)

	msg, err := b.RunTurn(context.Background(), TurnRequest{Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, "The MSME scheme offers...", msg.Text())
	assert.Equal(t, []string{prompt}, kb.queries)

	require.Len(t, p.requests, 2)
	follow := p.requests[1]
	assert.Empty(t, follow.System, "only the first call carries the system prompt")
	assert.Len(t, follow.Tools, 1)
	require.Len(t, follow.Messages, 3)
	assert.Equal(t, chat.RoleAssistant, follow.Messages[1].Role)
	assert.Equal(t, 1, follow.Messages[1].Count(chat.KindToolUse))

	results := follow.Messages[2]
	assert.Equal(t, chat.RoleUser, results.Role)
	require.Len(t, results.Blocks, 1)
	res := results.Blocks[0].ToolResult
	assert.Equal(t, "tu-1", res.ToolUseID)
	assert.Equal(t, chat.ToolOK, res.Status)
	assert.Contains(t, string(res.Payload), "Credit-linked capital subsidy")
}

func TestRunTurnOneFollowUpRegardlessOfStopReason(t *testing.T) {
	p := &fakeProvider{responses: []*Response{
		toolCall(schemeUse("tu-1", "a")),
		toolCall(schemeUse("tu-2", "b")),
	}}
	kb := &fakeAgent{answer: "x"}
	b := newTestBrain(p, kb)

	msg, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Len(t, p.requests, 2)
	assert.Len(t, kb.queries, 1, "second tool request is not resolved")
	assert.Equal(t, "tu-2", msg.ToolUses()[0].ID)
}

func TestRunTurnDispatchesEachDistinctKnownTool(t *testing.T) {
	p := &fakeProvider{responses: []*Response{
		toolCall(
			schemeUse("tu-1", "first"),
			chat.ToolUse{ID: "tu-x", Name: "book_flight", Input: json.RawMessage(`{}`)},
			schemeUse("tu-2", "second"),
			schemeUse("tu-1", "first"),
		),
		text(chat.StopEndTurn, "done"),
	}}
	kb := &fakeAgent{answer: "info"}
	b := newTestBrain(p, kb)

	_, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, kb.queries)

	results := p.requests[1].Messages[2]
	require.Len(t, results.Blocks, 2, "one message carries all results")
	assert.Equal(t, "tu-1", results.Blocks[0].ToolResult.ToolUseID)
	assert.Equal(t, "tu-2", results.Blocks[1].ToolResult.ToolUseID)

	echoed := p.requests[1].Messages[1]
	assert.Equal(t, chat.RoleAssistant, echoed.Role)
	assert.Equal(t, "Let me look that up.", echoed.Text())
	var ids []string
	for _, use := range echoed.ToolUses() {
		ids = append(ids, use.ID)
	}
	assert.Equal(t, []string{"tu-1", "tu-2"}, ids, "every echoed tool use has exactly one result")
}

func TestRunTurnGeminiCallsWithoutIDs(t *testing.T) {
	first := geminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{Name: tools.GovernmentSchemeTool, Args: map[string]any{"query": "MSME subsidy"}}},
				{FunctionCall: &genai.FunctionCall{Name: tools.GovernmentSchemeTool, Args: map[string]any{"query": "PM-KISAN"}}},
			}},
		}},
	})
	p := &fakeProvider{responses: []*Response{first, text(chat.StopEndTurn, "both covered")}}
	kb := &fakeAgent{answer: "info"}
	b := newTestBrain(p, kb)

	msg, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "Compare two schemes"})
	require.NoError(t, err)
	assert.Equal(t, "both covered", msg.Text())
	assert.Equal(t, []string{"MSME subsidy", "PM-KISAN"}, kb.queries)

	require.Len(t, p.requests, 2)
	results := p.requests[1].Messages[2]
	require.Len(t, results.Blocks, 2)
	assert.NotEqual(t, results.Blocks[0].ToolResult.ToolUseID, results.Blocks[1].ToolResult.ToolUseID)
}

func TestRunTurnOnlyUnknownToolsReturnsFirstResponse(t *testing.T) {
	p := &fakeProvider{responses: []*Response{
		toolCall(chat.ToolUse{ID: "tu-x", Name: "weather", Input: json.RawMessage(`{}`)}),
	}}
	b := newTestBrain(p, &fakeAgent{})

	msg, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "q"})
	require.NoError(t, err)
	assert.Len(t, p.requests, 1)
	assert.Equal(t, "Let me look that up.", msg.Text())
}

func TestRunTurnToolFailureStillCompletes(t *testing.T) {
	for name, kb := range map[string]*fakeAgent{
		"transport": {err: errors.New("connection refused")},
		"panic":     {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			p := &fakeProvider{responses: []*Response{
				toolCall(schemeUse("tu-1", "q")),
				text(chat.StopEndTurn, "Sorry, the lookup failed."),
			}}
			b := newTestBrain(p, kb)

			msg, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "q"})
			require.NoError(t, err)
			assert.Equal(t, "Sorry, the lookup failed.", msg.Text())

			res := p.requests[1].Messages[2].Blocks[0].ToolResult
			assert.Equal(t, chat.ToolError, res.Status)
			assert.Contains(t, string(res.Payload), "error")
		})
	}
}

func TestRunTurnBackendErrorIsTransport(t *testing.T) {
	p := &fakeProvider{errs: []error{errors.New("503 service unavailable")}}
	b := newTestBrain(p, &fakeAgent{})

	_, err := b.RunTurn(context.Background(), TurnRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindTransport))
}

func TestRunTurnAttachmentErrorSkipsBackend(t *testing.T) {
	p := &fakeProvider{}
	b := newTestBrain(p, &fakeAgent{})

	big := attachment.Upload{Name: "big.pdf", Size: attachment.MaxDocumentSize + 1}
	_, err := b.RunTurn(context.Background(), TurnRequest{
		Prompt:      "read this",
		Attachments: attachment.Set{Documents: []attachment.Upload{big}},
	})
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.Empty(t, p.requests)
}

func TestSubmitUpdatesHistoryOnSuccess(t *testing.T) {
	p := &fakeProvider{responses: []*Response{text(chat.StopEndTurn, "Namaste!")}}
	b := newTestBrain(p, &fakeAgent{})
	sess := session.New("u1", 10, "")

	reply, err := b.Submit(context.Background(), sess, "  Hello  ")
	require.NoError(t, err)
	assert.Equal(t, "Namaste!", reply.Text)
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Text: "Hello"},
		{Role: chat.RoleAssistant, Text: "Namaste!"},
	}, sess.History.Turns())
}

func TestSubmitLeavesHistoryOnFailure(t *testing.T) {
	p := &fakeProvider{
		responses: []*Response{toolCall(schemeUse("tu-1", "q"))},
		errs:      []error{nil, errors.New("timeout")},
	}
	b := newTestBrain(p, &fakeAgent{answer: "x"})
	sess := session.New("u1", 10, "")
	sess.History.Append(chat.Turn{Role: chat.RoleUser, Text: "earlier"})

	_, err := b.Submit(context.Background(), sess, "q")
	require.Error(t, err)
	assert.Equal(t, 1, sess.History.Len())

	_, err = b.Submit(context.Background(), sess, "   ")
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.Equal(t, 1, sess.History.Len())
}

func TestSubmitUsesSessionAttachments(t *testing.T) {
	p := &fakeProvider{responses: []*Response{text(chat.StopEndTurn, "nice photo")}}
	b := newTestBrain(p, &fakeAgent{})
	sess := session.New("u1", 10, "")
	sess.ObserveAttachments(attachment.Set{Images: []attachment.Upload{{
		Name: "a.png", MIME: "image/png", Size: 3, Content: bytes.NewReader([]byte("png")),
	}}})

	_, err := b.Submit(context.Background(), sess, "what is this?")
	require.NoError(t, err)
	assert.Equal(t, 1, p.requests[0].Messages[0].Count(chat.KindImage))
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Text: "what is this?"},
		{Role: chat.RoleAssistant, Text: "nice photo"},
	}, sess.History.Turns(), "attachments are not persisted in history")
}

func TestSubmitEmptyReplyUsesFallback(t *testing.T) {
	p := &fakeProvider{responses: []*Response{{Message: chat.Message{Role: chat.RoleAssistant}, StopReason: chat.StopEndTurn}}}
	b := newTestBrain(p, &fakeAgent{})
	sess := session.New("u1", 10, "")

	reply, err := b.Submit(context.Background(), sess, "hi")
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, reply.Text)
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	b := newTestBrain(&fakeProvider{}, &fakeAgent{})
	sess := session.New("u1", 10, "")
	done, ok := sess.BeginTurn()
	require.True(t, ok)
	defer done()

	_, err := b.Submit(context.Background(), sess, "hello")
	assert.True(t, fault.Is(err, fault.KindValidation))
}

func TestSubmitRateLimited(t *testing.T) {
	p := &fakeProvider{responses: []*Response{text(chat.StopEndTurn, "1"), text(chat.StopEndTurn, "2")}}
	b := NewWithProvider(p, tools.New(nil, time.Second), Config{RateLimit: 1, RateWindow: time.Minute})
	sess := session.New("u1", 10, "")

	_, err := b.Submit(context.Background(), sess, "one")
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), sess, "two")
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.Len(t, p.requests, 1)
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(context.Background(), Config{}, tools.New(nil, time.Second))
	assert.True(t, fault.Is(err, fault.KindConfiguration))

	_, err = New(context.Background(), Config{Provider: "claude"}, tools.New(nil, time.Second))
	assert.True(t, fault.Is(err, fault.KindConfiguration))
}
