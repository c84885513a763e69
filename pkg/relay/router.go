package relay

import (
	"errors"
	"strings"
	"time"
)

// handleFrame processes one inbound frame to completion. All frame and
// close handling is serialized by s.mu, so state transitions never
// interleave and code generation never races.
func (s *Server) handleFrame(c *conn, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			s.sendError(c, ErrCodeUnknownType)
		} else {
			s.sendError(c, ErrCodeInvalidFrame)
		}
		return
	}

	switch c.role {
	case RoleAgent:
		s.handleAgentFrame(c, m)
	case RoleClient:
		s.handleClientFrame(c, m)
	}
}

func (s *Server) handleAgentFrame(c *conn, m Message) {
	switch m := m.(type) {
	case *AgentRegister:
		name := m.AgentName
		if name == "" {
			name = "Agent"
		}
		c.state = stateRegistered{agentID: m.AgentID, agentName: name}
		code := s.ledger.Register(c.id, m.AgentID, name)
		s.send(c, &RelayCode{Code: code})
		s.logger.Info("agent registered", "agentId", m.AgentID, "code", code)

	case *AgentMessage:
		if _, ok := c.state.(stateRegistered); !ok {
			s.sendError(c, ErrCodeNotRegistered)
			return
		}
		_, sess, ok := s.sessions.FindByAgent(c.id)
		if !ok {
			s.sendError(c, ErrCodeNoActiveSession)
			return
		}
		if client := s.conns[sess.ClientConn]; client != nil {
			s.send(client, &RelayMessage{Text: m.Text, Timestamp: s.timestamp()})
		}

	case *AgentTyping:
		// Best-effort status frame: dropped silently without a session.
		if _, sess, ok := s.sessions.FindByAgent(c.id); ok {
			if client := s.conns[sess.ClientConn]; client != nil {
				s.send(client, &RelayTyping{Active: m.Active})
			}
		}

	default:
		s.sendError(c, ErrCodeUnknownType)
	}
}

func (s *Server) handleClientFrame(c *conn, m Message) {
	switch m := m.(type) {
	case *ClientPair:
		entry, err := s.ledger.Claim(strings.TrimSpace(m.Code))
		if err != nil {
			s.sendError(c, ErrCodeInvalidOrExpired)
			return
		}
		agent := s.conns[entry.AgentConn]
		if agent == nil {
			// Issuer vanished between claim and bind.
			s.sendError(c, ErrCodeInvalidOrExpired)
			return
		}
		// Pairing while already paired tears down the old binding first,
		// exactly as client:disconnect would.
		if st, ok := c.state.(statePaired); ok {
			s.teardownClient(c, st.sessionID)
		}
		// A re-registered agent may still be bound to an earlier session.
		// Binding the new client ends it the same way an agent close
		// would, so each connection holds at most one session.
		if oldID, old, ok := s.sessions.RemoveByAgent(entry.AgentConn); ok {
			if prev := s.conns[old.ClientConn]; prev != nil {
				s.send(prev, &RelayAgentDisconnected{})
				prev.state = stateUnpaired{}
			}
			s.logger.Info("session replaced", "sessionId", oldID)
		}
		sessionID := s.sessions.Create(entry.AgentConn, c.id, entry.AgentID, entry.AgentName)
		c.state = statePaired{sessionID: sessionID}
		s.send(c, &RelayPaired{SessionID: sessionID, AgentName: entry.AgentName})
		s.send(agent, &RelayPaired{SessionID: sessionID})
		s.logger.Info("paired", "code", entry.Code, "sessionId", sessionID)

	case *ClientMessage:
		st, ok := c.state.(statePaired)
		if !ok {
			s.sendError(c, ErrCodeNotPaired)
			return
		}
		sess, ok := s.sessions.Get(st.sessionID)
		if !ok {
			c.state = stateUnpaired{}
			s.sendError(c, ErrCodeSessionExpired)
			return
		}
		if agent := s.conns[sess.AgentConn]; agent != nil {
			s.send(agent, &RelayMessage{
				SessionID: st.sessionID,
				Text:      m.Text,
				Timestamp: s.timestamp(),
			})
		}

	case *ClientDisconnect:
		// Explicit half-close: the transport stays open and the client
		// may pair again.
		if st, ok := c.state.(statePaired); ok {
			s.teardownClient(c, st.sessionID)
		}

	default:
		s.sendError(c, ErrCodeUnknownType)
	}
}

// teardownClient removes the client's session, notifying the bound agent.
// Caller must hold s.mu.
func (s *Server) teardownClient(c *conn, sessionID string) {
	if sess, ok := s.sessions.Get(sessionID); ok {
		if agent := s.conns[sess.AgentConn]; agent != nil {
			s.send(agent, &RelayClientDisconnected{SessionID: sessionID})
		}
		s.sessions.Remove(sessionID)
	}
	c.state = stateUnpaired{}
}

// handleClose scrubs all tables of a closing connection and sends the
// surviving peer its one-shot disconnect notice. Delivery is best-effort:
// the peer's transport may itself be closing.
func (s *Server) handleClose(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, c.id)

	switch c.role {
	case RoleAgent:
		s.ledger.RemoveByAgent(c.id)
		if _, sess, ok := s.sessions.RemoveByAgent(c.id); ok {
			if client := s.conns[sess.ClientConn]; client != nil {
				s.send(client, &RelayAgentDisconnected{})
				client.state = stateUnpaired{}
			}
		}
		s.logger.Info("agent disconnected", "conn", uint64(c.id))

	case RoleClient:
		if sessionID, sess, ok := s.sessions.RemoveByClient(c.id); ok {
			if agent := s.conns[sess.AgentConn]; agent != nil {
				s.send(agent, &RelayClientDisconnected{SessionID: sessionID})
			}
			s.logger.Info("client disconnected", "conn", uint64(c.id), "sessionId", sessionID)
		} else {
			s.logger.Info("client disconnected", "conn", uint64(c.id))
		}
	}
}

// send writes a frame, logging transport-level write failures. The close
// handler remains the single path for resource reclamation.
func (s *Server) send(c *conn, m Message) {
	if err := c.send(m); err != nil {
		s.logger.Debug("write failed", "conn", uint64(c.id), "error", err)
	}
}

func (s *Server) sendError(c *conn, code ErrorCode) {
	s.send(c, &RelayError{Error: code})
}

// timestamp returns the relay-stamped time for forwarded messages.
func (s *Server) timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
