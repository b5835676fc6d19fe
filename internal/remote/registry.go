package remote

import (
	"sync"
	"time"

	"warden/internal/models"
)

// EventSender delivers a named event to one connection. Implementations
// must be non-blocking; a connection mid-teardown may drop the event.
type EventSender interface {
	SendEvent(event string, payload any)
}

// session is one authenticated connection tracked by the registry.
type session struct {
	info     models.SessionInfo
	identity models.Identity
	out      EventSender
}

// Registry tracks currently connected, authenticated clients. All methods
// are safe for concurrent use; sends race benignly with disconnects.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Add records an authenticated connection. Re-adding the same connection
// id (a re-login on the same channel) replaces the identity.
func (r *Registry) Add(connectionID string, identity models.Identity, out EventSender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectedAt := time.Now().UTC()
	if prev, ok := r.sessions[connectionID]; ok {
		connectedAt = prev.info.ConnectedAt
	}
	r.sessions[connectionID] = &session{
		info: models.SessionInfo{
			ConnectionID: connectionID,
			Username:     identity.Username,
			Permissions:  append([]string(nil), identity.Permissions...),
			ConnectedAt:  connectedAt,
		},
		identity: identity,
		out:      out,
	}
}

// Remove drops a connection. Removing an unknown id is a no-op.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connectionID)
}

// Get returns the identity attached to a connection, if present.
func (r *Registry) Get(connectionID string) (models.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return models.Identity{}, false
	}
	id := s.identity
	id.Permissions = append([]string(nil), id.Permissions...)
	return id, true
}

// List returns a snapshot of all connected sessions.
func (r *Registry) List() []models.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.info)
	}
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Broadcast sends an event to every registered connection, best effort.
func (r *Registry) Broadcast(event string, payload any) {
	r.mu.Lock()
	targets := make([]EventSender, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s.out)
	}
	r.mu.Unlock()

	for _, t := range targets {
		t.SendEvent(event, payload)
	}
}

// SendTo sends an event to one connection. A no-op if the connection is
// already gone; the disconnect/send race is expected.
func (r *Registry) SendTo(connectionID, event string, payload any) {
	r.mu.Lock()
	s, ok := r.sessions[connectionID]
	r.mu.Unlock()

	if ok {
		s.out.SendEvent(event, payload)
	}
}

// Clear drops every session, used on server shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*session)
}
