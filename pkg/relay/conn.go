package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnID is an opaque handle for one open transport. The pairing ledger
// and session table store handles, never transport objects; only the
// router resolves a handle back to its live connection.
type ConnID uint64

// Role tells which message subset a connection may use.
type Role int

const (
	RoleAgent Role = iota
	RoleClient
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// connState is the per-connection protocol state, modeled as a tagged
// variant so an illegal transition is unrepresentable rather than a
// runtime boolean check.
type connState interface {
	isConnState()
}

// stateUnregistered: an agent connection before agent:register.
type stateUnregistered struct{}

// stateRegistered: an agent connection after agent:register. Whether a
// session binds it is tracked by the session table, not here.
type stateRegistered struct {
	agentID   string
	agentName string
}

// stateUnpaired: a client connection with no session.
type stateUnpaired struct{}

// statePaired: a client connection bound to a session.
type statePaired struct {
	sessionID string
}

func (stateUnregistered) isConnState() {}
func (stateRegistered) isConnState()   {}
func (stateUnpaired) isConnState()     {}
func (statePaired) isConnState()       {}

// conn is one live transport in the router's connection arena.
type conn struct {
	id   ConnID
	role Role
	ws   *websocket.Conn

	// state transitions are serialized by the router mutex.
	state connState

	// alive is cleared before each ping and set by the pong handler.
	alive atomic.Bool

	writeMu sync.Mutex
}

func newConn(id ConnID, role Role, ws *websocket.Conn) *conn {
	c := &conn{id: id, role: role, ws: ws}
	switch role {
	case RoleAgent:
		c.state = stateUnregistered{}
	case RoleClient:
		c.state = stateUnpaired{}
	}
	c.alive.Store(true)
	ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})
	return c
}

// writeTimeout bounds each frame write so one stalled peer cannot hold
// the router for longer than this.
const writeTimeout = 10 * time.Second

// send encodes and writes one frame. Writes are serialized per connection;
// errors are best-effort (the close handler reclaims state either way).
func (c *conn) send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ping sends a transport-level ping control frame.
func (c *conn) ping(deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}
