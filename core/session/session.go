// Package session holds the ephemeral identity of logged in users and the guard protecting
// routes that require one. Sessions live in memory only and end on logout or expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identity is the current user of a session.
type Identity struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsLoggedIn bool      `json:"is_logged_in"`
	IsAdmin    bool      `json:"is_admin"`
	StartedAt  time.Time `json:"started_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Principal is the user a session is started for.
type Principal struct {
	UserID  string
	Name    string
	Email   string
	IsAdmin bool
}

// Manager reads, writes and clears session identities.
type Manager struct {
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]Identity

	hooksMu sync.RWMutex
	onEnd   []func(Identity)
}

var nowFunc = time.Now // mockable

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		sessions: make(map[string]Identity),
	}
}

// OnEnd registers fn to run after any session ends.
// Hooks run outside the manager's lock.
func (m *Manager) OnEnd(fn func(Identity)) {
	m.hooksMu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.hooksMu.Unlock()
}

func (m *Manager) ended(idents ...Identity) {
	if len(idents) == 0 {
		return
	}
	m.hooksMu.RLock()
	hooks := m.onEnd
	m.hooksMu.RUnlock()
	for _, ident := range idents {
		for _, fn := range hooks {
			fn(ident)
		}
	}
}

// Begin starts a new session for p.
func (m *Manager) Begin(p Principal) Identity {
	now := nowFunc().UTC()
	id := Identity{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		Name:       p.Name,
		Email:      p.Email,
		IsLoggedIn: true,
		IsAdmin:    p.IsAdmin,
		StartedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	m.mu.Lock()
	m.sessions[id.ID] = id
	m.mu.Unlock()
	return id
}

// Current returns the live session with id. Expired sessions are cleared.
func (m *Manager) Current(id string) (Identity, bool) {
	if id == "" {
		return Identity{}, false
	}
	m.mu.RLock()
	ident, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Identity{}, false
	}
	if !nowFunc().Before(ident.ExpiresAt) {
		m.End(id)
		return Identity{}, false
	}
	return ident, true
}

// Extend pushes the expiry of a live session one ttl from now.
func (m *Manager) Extend(id string) (Identity, bool) {
	m.mu.Lock()
	ident, ok := m.sessions[id]
	now := nowFunc()
	if !ok {
		m.mu.Unlock()
		return Identity{}, false
	}
	if !now.Before(ident.ExpiresAt) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.ended(ident)
		return Identity{}, false
	}
	ident.ExpiresAt = now.UTC().Add(m.ttl)
	m.sessions[id] = ident
	m.mu.Unlock()
	return ident, true
}

// End clears the session with id. Ending an unknown session is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	ident, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.ended(ident)
	}
}

// EndUser clears every session of the user, e.g. once they are deleted or deactivated.
func (m *Manager) EndUser(userID string) int {
	m.mu.Lock()
	var ended []Identity
	for id, ident := range m.sessions {
		if ident.UserID == userID {
			delete(m.sessions, id)
			ended = append(ended, ident)
		}
	}
	m.mu.Unlock()
	m.ended(ended...)
	return len(ended)
}

// Sweep clears expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := nowFunc()
	m.mu.Lock()
	var ended []Identity
	for id, ident := range m.sessions {
		if !now.Before(ident.ExpiresAt) {
			delete(m.sessions, id)
			ended = append(ended, ident)
		}
	}
	m.mu.Unlock()
	m.ended(ended...)
	return len(ended)
}

// Len returns the number of sessions held, expired or not.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}
