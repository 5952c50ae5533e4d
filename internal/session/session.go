package session

import (
	"sync"
	"time"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
)

// DefaultLanguage is the speech language for new sessions.
const DefaultLanguage = "hi-IN"

// Speech holds a session's reply-synthesis preferences.
type Speech struct {
	Enabled  bool
	Language string
}

// Session is one user's conversation scope. It owns exactly one history,
// the attachments currently offered with prompts, and UI toggles.
type Session struct {
	ID      string
	History *chat.History

	turn sync.Mutex // held for the whole of a turn

	mu          sync.Mutex
	attachments attachment.Set
	lastSeen    string
	speech      Speech
	lastActive  time.Time
}

// New creates a session with an empty history capped at maxTurns.
func New(id string, maxTurns int, language string) *Session {
	if language == "" {
		language = DefaultLanguage
	}
	return &Session{
		ID:         id,
		History:    chat.NewHistory(maxTurns),
		speech:     Speech{Language: language},
		lastActive: time.Now(),
	}
}

// BeginTurn claims the session for one turn. It returns false when a turn
// is already running; otherwise the returned func releases the claim.
func (s *Session) BeginTurn() (func(), bool) {
	if !s.turn.TryLock() {
		return nil, false
	}
	s.Touch()
	return s.turn.Unlock, true
}

// ObserveAttachments makes set the session's current attachments and
// reports whether it differs from the set seen on the previous call.
// A changed set on its own is not a submission.
func (s *Session) ObserveAttachments(set attachment.Set) bool {
	fp := attachment.Fingerprint(set)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = set
	s.lastActive = time.Now()
	if fp == s.lastSeen {
		return false
	}
	s.lastSeen = fp
	return true
}

// Attachments returns the attachments offered with the next prompt.
func (s *Session) Attachments() attachment.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachments
}

// ClearAttachments drops the current attachments.
func (s *Session) ClearAttachments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments = attachment.Set{}
	s.lastSeen = ""
}

// Reset clears history and attachments but keeps speech preferences.
func (s *Session) Reset() {
	s.History.Clear()
	s.ClearAttachments()
}

// Speech returns the current speech preferences.
func (s *Session) Speech() Speech {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speech
}

// SetSpeech updates speech preferences. An empty language keeps the
// current one.
func (s *Session) SetSpeech(enabled bool, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speech.Enabled = enabled
	if language != "" {
		s.speech.Language = language
	}
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
