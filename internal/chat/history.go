package chat

import "sync"

// DefaultMaxTurns bounds history when no cap is configured.
const DefaultMaxTurns = 50

// Turn is one entry of the conversation log. Immutable once appended.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// History is a bounded, ordered conversation log. When the cap is
// exceeded the oldest turns are evicted first.
type History struct {
	mu    sync.RWMutex
	turns []Turn
	max   int
}

// NewHistory creates an empty history holding at most max turns.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &History{max: max}
}

// Append adds turns in order and trims to the cap. Eviction never leaves
// an assistant reply at the head without the prompt that produced it.
func (h *History) Append(turns ...Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.max; over > 0 {
		for over < len(h.turns) && h.turns[over].Role == RoleAssistant {
			over++
		}
		kept := make([]Turn, len(h.turns)-over)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Turns returns a copy of the log, oldest first.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Cap returns the maximum number of retained turns.
func (h *History) Cap() int {
	return h.max
}

// Clear drops every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Messages projects turns into text-only backend messages, oldest first.
func Messages(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{
			Role:   t.Role,
			Blocks: []Block{TextBlock(t.Text)},
		})
	}
	return msgs
}
