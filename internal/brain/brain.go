package brain

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/tools"
)

// NoAnswer stands in for an assistant reply that carried no text.
const NoAnswer = "I couldn't come up with an answer to that. Could you rephrase?"

// Brain drives conversation turns against a reasoning provider with at
// most one tool round-trip per turn.
type Brain struct {
	provider Provider
	tools    *tools.Dispatcher
	system   string
	timeout  time.Duration

	// Sliding-window rate limiter
	mu      sync.Mutex
	window  []time.Time
	rateMax int
	rateDur time.Duration
}

// Config for creating a Brain.
type Config struct {
	// Claude
	ClaudeAPIKey string
	ClaudeModel  string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Which provider to force ("claude", "gemini", or "" for auto-detect)
	Provider string

	SystemPrompt string
	MaxTokens    int64
	Timeout      time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

// New creates a Brain. It fails with a configuration error when no
// provider can be built from cfg.
func New(ctx context.Context, cfg Config, dispatcher *tools.Dispatcher) (*Brain, error) {
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(provider, dispatcher, cfg), nil
}

// NewWithProvider creates a Brain around an existing provider. Only the
// prompt, timeout and rate limit fields of cfg are used.
func NewWithProvider(provider Provider, dispatcher *tools.Dispatcher, cfg Config) *Brain {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Brain{
		provider: provider,
		tools:    dispatcher,
		system:   cfg.SystemPrompt,
		timeout:  timeout,
		rateMax:  cfg.RateLimit,
		rateDur:  cfg.RateWindow,
	}
}

// newProvider auto-detects or forces the AI provider.
func newProvider(ctx context.Context, cfg Config) (Provider, error) {
	pick := cfg.Provider

	// Auto-detect if not forced
	if pick == "" {
		switch {
		case cfg.ClaudeAPIKey != "":
			pick = "claude"
		case cfg.GeminiAPIKey != "":
			pick = "gemini"
		}
	}

	switch pick {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			return nil, fault.Configuration("brain", "AI_PROVIDER=claude but ANTHROPIC_API_KEY is not set")
		}
		slog.Info("brain: using claude", "model", cfg.ClaudeModel)
		return newClaudeProvider(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.MaxTokens), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fault.Configuration("brain", "AI_PROVIDER=gemini but GOOGLE_API_KEY is not set")
		}
		slog.Info("brain: using gemini", "model", cfg.GeminiModel)
		p, err := newGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxTokens)
		if err != nil {
			return nil, fault.Configuration("brain", "failed to create gemini provider: %v", err)
		}
		return p, nil
	case "":
		return nil, fault.Configuration("brain", "no AI provider configured: set ANTHROPIC_API_KEY or GOOGLE_API_KEY")
	default:
		return nil, fault.Configuration("brain", "unknown AI provider %q", pick)
	}
}

// TurnRequest is the input of a single turn.
type TurnRequest struct {
	Prompt      string
	Attachments attachment.Set
	History     []chat.Turn
}

// RunTurn assembles the turn's content, calls the backend and resolves at
// most one tool round-trip. It never touches the caller's history.
func (b *Brain) RunTurn(ctx context.Context, req TurnRequest) (*chat.Message, error) {
	if err := validatePrompt(req.Prompt); err != nil {
		return nil, err
	}

	blocks, err := attachment.Normalize(req.Prompt, req.Attachments)
	if err != nil {
		return nil, err
	}

	messages := chat.Messages(req.History)
	messages = append(messages, chat.Message{Role: chat.RoleUser, Blocks: blocks})
	specs := b.tools.Specs()

	slog.Info("brain: processing turn", "blocks", len(blocks), "history", len(req.History))

	resp, err := b.converse(ctx, Request{
		System:   b.system,
		Messages: messages,
		Tools:    specs,
	})
	if err != nil {
		return nil, err
	}
	if resp.StopReason != chat.StopToolUse {
		return &resp.Message, nil
	}

	results := b.runTools(ctx, resp.Message.ToolUses())
	if len(results) == 0 {
		slog.Warn("brain: tool use requested but no known tool was called")
		return &resp.Message, nil
	}

	messages = append(messages,
		answeredOnly(resp.Message, results),
		chat.Message{Role: chat.RoleUser, Blocks: results},
	)

	// The follow-up carries no system instruction.
	follow, err := b.converse(ctx, Request{
		Messages: messages,
		Tools:    specs,
	})
	if err != nil {
		return nil, err
	}
	if follow.StopReason == chat.StopToolUse {
		slog.Warn("brain: follow-up asked for more tools, returning it as is")
	}
	return &follow.Message, nil
}

// runTools dispatches each distinct tool use once and returns the result
// blocks. Unknown tools produce nothing.
func (b *Brain) runTools(ctx context.Context, uses []chat.ToolUse) []chat.Block {
	seen := make(map[string]bool, len(uses))
	var results []chat.Block
	for _, use := range uses {
		if seen[use.ID] {
			continue
		}
		seen[use.ID] = true

		res, ok := b.tools.Dispatch(ctx, use)
		if !ok {
			continue
		}
		slog.Info("brain: tool used", "name", use.Name, "status", res.Status)
		results = append(results, chat.ToolResultBlock(res))
	}
	return results
}

// answeredOnly echoes msg keeping every non-tool block and the first
// occurrence of each tool use that has a result. Backends reject a tool
// use that is not answered in the next message.
func answeredOnly(msg chat.Message, results []chat.Block) chat.Message {
	answered := make(map[string]bool, len(results))
	for _, r := range results {
		answered[r.ToolResult.ToolUseID] = true
	}
	out := chat.Message{Role: msg.Role, Blocks: make([]chat.Block, 0, len(msg.Blocks))}
	for _, b := range msg.Blocks {
		if b.Kind == chat.KindToolUse {
			if !answered[b.ToolUse.ID] {
				continue
			}
			delete(answered, b.ToolUse.ID)
		}
		out.Blocks = append(out.Blocks, b)
	}
	return out
}

func (b *Brain) converse(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.provider.Converse(ctx, req)
	if err != nil {
		slog.Error("brain: AI API error", "provider", b.provider.Name(), "err", err)
		if fault.KindOf(err) != fault.KindUnknown {
			return nil, err
		}
		return nil, fault.Transport("brain."+b.provider.Name(), err)
	}
	return resp, nil
}

// Reply is the outcome of a submitted turn.
type Reply struct {
	Text    string
	Message *chat.Message
}

// Submit runs a turn for a session using its current attachments and
// history. History gains the user and assistant turns only when the turn
// completes; any failure leaves it untouched.
func (b *Brain) Submit(ctx context.Context, sess *session.Session, prompt string) (*Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}

	done, ok := sess.BeginTurn()
	if !ok {
		return nil, fault.Validation("brain.submit", "Still working on your previous message.")
	}
	defer done()

	if !b.rateAllow() {
		return nil, fault.Validation("brain.submit", "I need a moment to catch my breath... too many messages! Try again shortly.")
	}

	msg, err := b.RunTurn(ctx, TurnRequest{
		Prompt:      prompt,
		Attachments: sess.Attachments(),
		History:     sess.History.Turns(),
	})
	if err != nil {
		return nil, err
	}

	text := msg.Text()
	if text == "" {
		text = NoAnswer
	}
	sess.History.Append(
		chat.Turn{Role: chat.RoleUser, Text: prompt},
		chat.Turn{Role: chat.RoleAssistant, Text: text},
	)
	return &Reply{Text: text, Message: msg}, nil
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fault.Validation("brain.turn", "Input text cannot be empty")
	}
	return nil
}

// --- Sliding-window rate limiter ---

func (b *Brain) rateAllow() bool {
	if b.rateMax <= 0 || b.rateDur <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-b.rateDur)

	// Remove expired entries
	valid := b.window[:0]
	for _, t := range b.window {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	b.window = valid

	if len(b.window) >= b.rateMax {
		return false
	}

	b.window = append(b.window, now)
	return true
}
