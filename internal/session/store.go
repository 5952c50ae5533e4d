package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store holds live sessions keyed by an id chosen by the presentation
// layer. Sessions never share state with each other.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxTurns int
	language string
}

// NewStore creates an empty store. New sessions get a history capped at
// maxTurns and the given default speech language.
func NewStore(maxTurns int, language string) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
		language: language,
	}
}

// Get returns the session for id, creating it on first use.
func (st *Store) Get(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		s = New(id, st.maxTurns, st.language)
		st.sessions[id] = s
		slog.Debug("session: created", "id", id)
	}
	return s
}

// Drop forgets a session.
func (st *Store) Drop(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than ttl and returns how many.
func (st *Store) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.LastActive().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// Janitor periodically evicts idle sessions.
type Janitor struct {
	store    *Store
	interval time.Duration
	idleTTL  time.Duration
}

// NewJanitor creates a janitor. A non-positive idleTTL disables eviction.
func NewJanitor(store *Store, interval, idleTTL time.Duration) *Janitor {
	return &Janitor{store: store, interval: interval, idleTTL: idleTTL}
}

// Run starts the sweep loop. Blocks until context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j.idleTTL <= 0 || j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.store.Sweep(j.idleTTL); n > 0 {
				slog.Info("session: evicted idle sessions", "count", n, "remaining", j.store.Len())
			}
		}
	}
}
