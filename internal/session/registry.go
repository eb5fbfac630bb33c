// Package session holds the per-connection protocol state machine and
// the registry of live sessions.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Summary is one registry entry as exposed to operators.
type Summary struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	RemoteAddr   string    `json:"remote_addr"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Registry tracks active sessions. Safe for concurrent use; lookups are
// by session id only, one identity may hold several sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Summary
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Summary),
		now:      time.Now,
	}
}

// Register adds a session and returns its generated id.
func (r *Registry) Register(identity, remoteAddr string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	now := r.now()
	r.sessions[id] = &Summary{
		ID:           id,
		Identity:     identity,
		RemoteAddr:   remoteAddr,
		StartedAt:    now,
		LastActivity: now,
	}
	return id
}

// Touch records activity on a session. Unknown ids are ignored.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActivity = r.now()
	}
}

// IsExpired reports whether the session has been idle longer than the
// timeout. An unknown id counts as expired.
func (r *Registry) IsExpired(id string, timeout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return true
	}
	return r.now().Sub(s.LastActivity) > timeout
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns a copy of every registered session.
func (r *Registry) ListActive() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
