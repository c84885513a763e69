package relayclient

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hotbutter/voice/pkg/relay"
)

// DefaultRelayURL is the relay address used when Config.URL is empty.
const DefaultRelayURL = "ws://localhost:3000"

// Sentinel errors.
var (
	// ErrNotConnected is returned when sending without an open transport.
	ErrNotConnected = errors.New("relayclient: not connected")

	// ErrNoSession is returned when sending a turn without a paired session.
	ErrNoSession = errors.New("relayclient: no active session")
)

// Config configures a Client.
type Config struct {
	// URL is the relay base URL (http, https, ws, or wss scheme).
	// Default is DefaultRelayURL.
	URL string

	// Role selects the relay endpoint. Default is RoleAgent.
	Role Role

	// AgentID identifies the agent across reconnects (agent role).
	// Default is a random UUID.
	AgentID string

	// AgentName is the display name shown to paired clients (agent role).
	// Default is "Agent".
	AgentName string

	// Logger is used for client logging. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Dialer is the websocket dialer. If nil, websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is one peer of the relay protocol with automatic reconnection.
//
// Set the On* callbacks before calling Connect; they are invoked from the
// client's read goroutine and must not block.
type Client struct {
	url       string
	role      Role
	agentID   string
	agentName string
	logger    *slog.Logger
	dialer    *websocket.Dialer

	// OnCode delivers a freshly issued pairing code (agent role).
	OnCode func(code string)

	// OnPaired fires when a session is established. agentName is empty
	// for the agent role.
	OnPaired func(sessionID, agentName string)

	// OnMessage delivers a forwarded conversation turn. sessionID is
	// empty for the client role.
	OnMessage func(sessionID, text, timestamp string)

	// OnTyping delivers the peer's typing indicator (client role).
	OnTyping func(active bool)

	// OnAgentDisconnected fires when the paired agent goes away (client role).
	OnAgentDisconnected func()

	// OnClientDisconnected fires when the paired client goes away (agent role).
	OnClientDisconnected func(sessionID string)

	// OnConnected fires after each successful transport establishment.
	OnConnected func()

	// OnDisconnected fires on each transport loss.
	OnDisconnected func()

	// OnReconnecting fires when a reconnect attempt is scheduled.
	OnReconnecting func(attempt int, delay time.Duration)

	// OnReconnectFailed fires when the client role exhausts its attempts.
	OnReconnectFailed func()

	// OnError delivers relay:error codes.
	OnError func(code string)

	// OnState fires on every state transition.
	OnState func(State)

	mu              sync.Mutex
	ws              *websocket.Conn
	state           State
	sessionID       string
	pairingCode     string
	attempt         int
	shouldReconnect bool
	timer           *time.Timer

	// test hooks
	delays      []time.Duration
	maxAttempts int

	writeMu sync.Mutex
}

// New creates a client. Connect starts it.
func New(cfg Config) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultRelayURL
	}
	agentID := cfg.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
	}
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = "Agent"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Client{
		url:         url,
		role:        cfg.Role,
		agentID:     agentID,
		agentName:   agentName,
		logger:      logger,
		dialer:      dialer,
		delays:      reconnectDelays,
		maxAttempts: MaxReconnectAttempts,
	}
}

// Connect establishes the transport and arms automatic reconnection. A
// dial failure still schedules a reconnect; the error reports the first
// attempt's outcome.
func (c *Client) Connect() error {
	c.mu.Lock()
	c.shouldReconnect = true
	c.mu.Unlock()
	return c.dial()
}

// Disconnect performs a clean shutdown: it clears the reconnect flag,
// cancels any pending attempt, and closes the transport. No further
// automatic reconnects occur until Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	ws := c.ws
	c.ws = nil
	c.attempt = 0
	c.sessionID = ""
	c.pairingCode = ""
	c.mu.Unlock()

	if ws != nil {
		if c.role == RoleClient {
			// Tell the relay so the agent hears client-disconnected
			// before the transport drops.
			c.write(ws, &relay.ClientDisconnect{})
		}
		ws.Close()
	}
	c.setState(StateDisconnected)
}

// Pair redeems a pairing code (client role).
func (c *Client) Pair(code string) error {
	return c.send(&relay.ClientPair{Code: strings.TrimSpace(code)})
}

// SendMessage sends one conversation turn to the bound peer.
func (c *Client) SendMessage(text string) error {
	switch c.role {
	case RoleAgent:
		c.mu.Lock()
		sessionID := c.sessionID
		c.mu.Unlock()
		if sessionID == "" {
			return ErrNoSession
		}
		return c.send(&relay.AgentMessage{SessionID: sessionID, Text: text})
	default:
		return c.send(&relay.ClientMessage{Text: text})
	}
}

// SendTyping sends a best-effort typing indicator (agent role).
func (c *Client) SendTyping(active bool) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return ErrNoSession
	}
	return c.send(&relay.AgentTyping{SessionID: sessionID, Active: active})
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current session id, or "" when unpaired.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// PairingCode returns the most recently issued pairing code (agent role).
func (c *Client) PairingCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingCode
}

// endpoint derives the role's websocket URL from the configured base URL.
func (c *Client) endpoint() string {
	url := c.url
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	return strings.TrimSuffix(url, "/") + "/ws/" + c.role.String()
}

func (c *Client) dial() error {
	c.mu.Lock()
	if !c.shouldReconnect {
		// A pending timer can fire after Disconnect stopped it.
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.setState(StateConnecting)

	ws, _, err := c.dialer.Dial(c.endpoint(), nil)
	if err != nil {
		c.logger.Debug("dial failed", "url", c.endpoint(), "error", err)
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.attempt = 0
	c.mu.Unlock()
	c.setState(StateConnected)

	if c.role == RoleAgent {
		// Registration is re-sent on every transport establishment.
		// A fresh code is issued each time; pairing state does not
		// survive a transport loss.
		c.write(ws, &relay.AgentRegister{AgentID: c.agentID, AgentName: c.agentName})
	}
	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readLoop(ws)
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		m, err := relay.Decode(data)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		c.handle(m)
	}
	c.handleLoss(ws)
}

func (c *Client) handle(m relay.Message) {
	switch m := m.(type) {
	case *relay.RelayCode:
		c.mu.Lock()
		c.pairingCode = m.Code
		c.mu.Unlock()
		if c.OnCode != nil {
			c.OnCode(m.Code)
		}

	case *relay.RelayPaired:
		c.mu.Lock()
		c.sessionID = m.SessionID
		c.mu.Unlock()
		c.setState(StatePaired)
		if c.OnPaired != nil {
			c.OnPaired(m.SessionID, m.AgentName)
		}

	case *relay.RelayMessage:
		if c.OnMessage != nil {
			c.OnMessage(m.SessionID, m.Text, m.Timestamp)
		}

	case *relay.RelayTyping:
		if c.OnTyping != nil {
			c.OnTyping(m.Active)
		}

	case *relay.RelayAgentDisconnected:
		c.mu.Lock()
		c.sessionID = ""
		c.mu.Unlock()
		c.setState(StateConnected)
		if c.OnAgentDisconnected != nil {
			c.OnAgentDisconnected()
		}

	case *relay.RelayClientDisconnected:
		c.mu.Lock()
		c.sessionID = ""
		c.mu.Unlock()
		c.setState(StateConnected)
		if c.OnClientDisconnected != nil {
			c.OnClientDisconnected(m.SessionID)
		}

	case *relay.RelayError:
		if c.OnError != nil {
			c.OnError(string(m.Error))
		}
	}
}

// handleLoss runs when a transport's read loop exits. Stale transports
// (already replaced or deliberately closed) are ignored.
func (c *Client) handleLoss(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.sessionID = ""
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if c.OnDisconnected != nil {
		c.OnDisconnected()
	}
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if !c.shouldReconnect {
		c.mu.Unlock()
		return
	}
	attempt := c.attempt
	if c.role == RoleClient && attempt >= c.maxAttempts {
		c.mu.Unlock()
		if c.OnReconnectFailed != nil {
			c.OnReconnectFailed()
		}
		return
	}
	delay := backoffDelay(c.delays, attempt)
	c.attempt = attempt + 1
	c.timer = time.AfterFunc(delay, func() { c.dial() })
	c.mu.Unlock()

	if c.OnReconnecting != nil {
		c.OnReconnecting(attempt+1, delay)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.OnState != nil {
		c.OnState(s)
	}
}

// send writes to the current transport.
func (c *Client) send(m relay.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.write(ws, m)
}

func (c *Client) write(ws *websocket.Conn, m relay.Message) error {
	data, err := relay.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, data)
}
