package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one active agent-client binding.
type Session struct {
	AgentConn  ConnID
	ClientConn ConnID
	AgentID    string
	AgentName  string
	CreatedAt  time.Time
}

// SessionTable tracks live sessions and supports reverse lookup by either
// connection handle. Transport events arrive keyed by connection identity,
// not session id, so both indexes are maintained alongside the main map.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byAgent  map[ConnID]string
	byClient map[ConnID]string
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[string]*Session),
		byAgent:  make(map[ConnID]string),
		byClient: make(map[ConnID]string),
	}
}

// Create stores a new session and returns its id. Session ids are never
// reused. Inputs are assumed already validated by the router.
func (t *SessionTable) Create(agentConn, clientConn ConnID, agentID, agentName string) string {
	sessionID := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &Session{
		AgentConn:  agentConn,
		ClientConn: clientConn,
		AgentID:    agentID,
		AgentName:  agentName,
		CreatedAt:  time.Now(),
	}
	t.byAgent[agentConn] = sessionID
	t.byClient[clientConn] = sessionID
	return sessionID
}

// Get returns the session for an id.
func (t *SessionTable) Get(sessionID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionID]
	return s, ok
}

// FindByAgent returns the session bound to an agent connection.
func (t *SessionTable) FindByAgent(agentConn ConnID) (string, *Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sessionID, ok := t.byAgent[agentConn]
	if !ok {
		return "", nil, false
	}
	return sessionID, t.sessions[sessionID], true
}

// FindByClient returns the session bound to a client connection.
func (t *SessionTable) FindByClient(clientConn ConnID) (string, *Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sessionID, ok := t.byClient[clientConn]
	if !ok {
		return "", nil, false
	}
	return sessionID, t.sessions[sessionID], true
}

// Remove deletes a session by id. Removing a nonexistent session is a no-op.
func (t *SessionTable) Remove(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(sessionID)
}

// RemoveByAgent deletes the session bound to an agent connection and
// returns it, if any.
func (t *SessionTable) RemoveByAgent(agentConn ConnID) (string, *Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessionID, ok := t.byAgent[agentConn]
	if !ok {
		return "", nil, false
	}
	s := t.sessions[sessionID]
	t.removeLocked(sessionID)
	return sessionID, s, true
}

// RemoveByClient deletes the session bound to a client connection and
// returns it, if any.
func (t *SessionTable) RemoveByClient(clientConn ConnID) (string, *Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessionID, ok := t.byClient[clientConn]
	if !ok {
		return "", nil, false
	}
	s := t.sessions[sessionID]
	t.removeLocked(sessionID)
	return sessionID, s, true
}

func (t *SessionTable) removeLocked(sessionID string) bool {
	s, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	delete(t.sessions, sessionID)
	delete(t.byAgent, s.AgentConn)
	delete(t.byClient, s.ClientConn)
	return true
}

// ActiveCount returns the current number of live sessions.
func (t *SessionTable) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
