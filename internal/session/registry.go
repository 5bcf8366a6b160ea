// Package session keeps the in-memory conversations served over HTTP, one
// Store per session id.
package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/convolens/internal/conversation"
)

// ErrLimit is returned by Create when the registry is full.
var ErrLimit = errors.New("session limit reached")

// Session is one conversation and its bookkeeping.
type Session struct {
	ID        string
	CreatedAt time.Time
	Store     *conversation.Store

	mu         sync.Mutex
	lastAccess time.Time
}

// LastAccess returns when the session was last looked up.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastAccess = t
	s.mu.Unlock()
}

// Factory builds the Store for a new session.
type Factory func() *conversation.Store

// Option configures a Registry.
type Option func(*Registry)

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

// WithIdleTTL sets how long an untouched session survives Sweep.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry manages session instances.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory     Factory
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new session.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrLimit
	}

	now := r.now()
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  now,
		Store:      r.factory(),
		lastAccess: now,
	}
	r.sessions[s.ID] = s
	r.logger.Info("session created", slog.String("session_id", s.ID))
	return s, nil
}

// Get retrieves a session by id and marks it as accessed.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Delete removes a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.logger.Info("session deleted", slog.String("session_id", id))
	return true
}

// List returns every session, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many were
// removed. It is a no-op without a TTL.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastAccess().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("expired idle sessions", slog.Int("removed", removed))
	}
	return removed
}
