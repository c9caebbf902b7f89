package mcp

import (
	"sync"

	"github.com/fitdesk/enrollkit/internal/wizard"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// SessionRegistry holds the live wizard sessions created through the MCP
// surface, keyed by wizard ID.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wizard.Session
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*wizard.Session)}
}

// Add registers a session under its wizard ID.
func (r *SessionRegistry) Add(s *wizard.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns the session for the given wizard ID.
func (r *SessionRegistry) Get(wizardID string) (*wizard.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[wizardID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "wizard %q not found", wizardID)
	}
	return s, nil
}

// Remove drops a session from the registry. The session itself is not
// closed; callers close it first.
func (r *SessionRegistry) Remove(wizardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, wizardID)
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
