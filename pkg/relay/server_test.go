package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestRelay(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendMsg(t *testing.T, ws *websocket.Conn, m Message) {
	t.Helper()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %T: %v", m, err)
	}
}

func readMsg(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func expectError(t *testing.T, ws *websocket.Conn, want ErrorCode) {
	t.Helper()
	m := readMsg(t, ws)
	relayErr, ok := m.(*RelayError)
	if !ok {
		t.Fatalf("got %T; want *RelayError(%s)", m, want)
	}
	if relayErr.Error != want {
		t.Fatalf("error code = %s; want %s", relayErr.Error, want)
	}
}

// register connects an agent, registers it, and returns its socket and code.
func register(t *testing.T, ts *httptest.Server, agentID, agentName string) (*websocket.Conn, string) {
	t.Helper()
	agent := dialWS(t, ts, "/ws/agent")
	sendMsg(t, agent, &AgentRegister{AgentID: agentID, AgentName: agentName})
	m := readMsg(t, agent)
	code, ok := m.(*RelayCode)
	if !ok {
		t.Fatalf("got %T; want *RelayCode", m)
	}
	return agent, code.Code
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEnd(t *testing.T) {
	srv, ts := newTestRelay(t, Config{})
	before := time.Now().Add(-time.Second)

	agent, code := register(t, ts, "agent-1", "Claw")
	if len(code) != CodeLength {
		t.Fatalf("code %q length = %d; want %d", code, len(code), CodeLength)
	}

	client := dialWS(t, ts, "/ws/client")
	sendMsg(t, client, &ClientPair{Code: code})

	clientPaired, ok := readMsg(t, client).(*RelayPaired)
	if !ok {
		t.Fatal("client did not receive relay:paired")
	}
	if clientPaired.AgentName != "Claw" {
		t.Errorf("client paired agentName = %q; want %q", clientPaired.AgentName, "Claw")
	}

	agentPaired, ok := readMsg(t, agent).(*RelayPaired)
	if !ok {
		t.Fatal("agent did not receive relay:paired")
	}
	if agentPaired.SessionID != clientPaired.SessionID {
		t.Errorf("session ids differ: agent %q, client %q", agentPaired.SessionID, clientPaired.SessionID)
	}
	if agentPaired.AgentName != "" {
		t.Errorf("agent paired frame carries agentName %q; want empty", agentPaired.AgentName)
	}
	if srv.Sessions().ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d; want 1", srv.Sessions().ActiveCount())
	}

	// Agent -> client, relay-stamped.
	sendMsg(t, agent, &AgentMessage{Text: "hello"})
	fwd, ok := readMsg(t, client).(*RelayMessage)
	if !ok {
		t.Fatal("client did not receive relay:message")
	}
	if fwd.Text != "hello" {
		t.Errorf("forwarded text = %q; want %q", fwd.Text, "hello")
	}
	stamp, err := time.Parse(time.RFC3339Nano, fwd.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", fwd.Timestamp, err)
	}
	if stamp.Before(before) {
		t.Errorf("timestamp %v before session start %v", stamp, before)
	}

	// Typing indicator.
	sendMsg(t, agent, &AgentTyping{Active: true})
	typing, ok := readMsg(t, client).(*RelayTyping)
	if !ok || !typing.Active {
		t.Errorf("client typing frame = %#v; want active", typing)
	}

	// Client -> agent carries the session id.
	sendMsg(t, client, &ClientMessage{Text: "hi there"})
	back, ok := readMsg(t, agent).(*RelayMessage)
	if !ok {
		t.Fatal("agent did not receive relay:message")
	}
	if back.Text != "hi there" || back.SessionID != agentPaired.SessionID {
		t.Errorf("agent received %+v", back)
	}

	// Explicit half-close.
	sendMsg(t, client, &ClientDisconnect{})
	gone, ok := readMsg(t, agent).(*RelayClientDisconnected)
	if !ok {
		t.Fatal("agent did not receive relay:client-disconnected")
	}
	if gone.SessionID != agentPaired.SessionID {
		t.Errorf("disconnected sessionId = %q; want %q", gone.SessionID, agentPaired.SessionID)
	}

	// The binding is gone; further agent turns have nowhere to go.
	sendMsg(t, agent, &AgentMessage{Text: "anyone?"})
	expectError(t, agent, ErrCodeNoActiveSession)

	if srv.Sessions().ActiveCount() != 0 {
		t.Errorf("ActiveCount after disconnect = %d; want 0", srv.Sessions().ActiveCount())
	}
}

func TestAgentCloseNotifiesClient(t *testing.T) {
	srv, ts := newTestRelay(t, Config{})
	agent, code := register(t, ts, "agent-1", "Claw")

	client := dialWS(t, ts, "/ws/client")
	sendMsg(t, client, &ClientPair{Code: code})
	if _, ok := readMsg(t, client).(*RelayPaired); !ok {
		t.Fatal("pairing failed")
	}
	readMsg(t, agent) // agent's paired frame

	agent.Close()

	if _, ok := readMsg(t, client).(*RelayAgentDisconnected); !ok {
		t.Fatal("client did not receive relay:agent-disconnected")
	}
	waitFor(t, "session teardown", func() bool { return srv.Sessions().ActiveCount() == 0 })

	// The client transport survived and may pair with a new agent.
	_, code2 := register(t, ts, "agent-2", "Claw2")
	sendMsg(t, client, &ClientPair{Code: code2})
	paired, ok := readMsg(t, client).(*RelayPaired)
	if !ok {
		t.Fatal("client could not pair again after agent loss")
	}
	if paired.AgentName != "Claw2" {
		t.Errorf("re-paired agentName = %q; want %q", paired.AgentName, "Claw2")
	}
}

func TestAgentRebindReplacesSession(t *testing.T) {
	srv, ts := newTestRelay(t, Config{})
	agent, code := register(t, ts, "agent-1", "Claw")

	first := dialWS(t, ts, "/ws/client")
	sendMsg(t, first, &ClientPair{Code: code})
	paired1, ok := readMsg(t, first).(*RelayPaired)
	if !ok {
		t.Fatal("first pairing failed")
	}
	readMsg(t, agent) // agent's paired frame

	// Re-registering on the same transport issues a fresh code but
	// leaves the first session bound until someone redeems it.
	sendMsg(t, agent, &AgentRegister{AgentID: "agent-1", AgentName: "Claw"})
	code2, ok := readMsg(t, agent).(*RelayCode)
	if !ok {
		t.Fatal("re-register did not yield a code")
	}

	second := dialWS(t, ts, "/ws/client")
	sendMsg(t, second, &ClientPair{Code: code2.Code})
	paired2, ok := readMsg(t, second).(*RelayPaired)
	if !ok {
		t.Fatal("second pairing failed")
	}
	if paired2.SessionID == paired1.SessionID {
		t.Fatal("second pairing reused the first session id")
	}

	// The displaced client hears the same notice an agent close sends.
	if _, ok := readMsg(t, first).(*RelayAgentDisconnected); !ok {
		t.Fatal("first client did not receive relay:agent-disconnected")
	}
	if got := srv.Sessions().ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d after rebind; want 1", got)
	}
	if _, ok := srv.Sessions().Get(paired1.SessionID); ok {
		t.Fatal("replaced session still present in the table")
	}

	// Displaced client is back to unpaired.
	sendMsg(t, first, &ClientMessage{Text: "hello?"})
	expectError(t, first, ErrCodeNotPaired)

	// Closing the agent now reaps the one remaining session.
	readMsg(t, agent) // agent's second paired frame
	agent.Close()
	if _, ok := readMsg(t, second).(*RelayAgentDisconnected); !ok {
		t.Fatal("second client did not receive relay:agent-disconnected")
	}
	waitFor(t, "session teardown", func() bool { return srv.Sessions().ActiveCount() == 0 })
}

func TestClientCloseNotifiesAgent(t *testing.T) {
	srv, ts := newTestRelay(t, Config{})
	agent, code := register(t, ts, "agent-1", "Claw")

	client := dialWS(t, ts, "/ws/client")
	sendMsg(t, client, &ClientPair{Code: code})
	readMsg(t, client)
	paired := readMsg(t, agent).(*RelayPaired)

	client.Close()

	gone, ok := readMsg(t, agent).(*RelayClientDisconnected)
	if !ok {
		t.Fatal("agent did not receive relay:client-disconnected")
	}
	if gone.SessionID != paired.SessionID {
		t.Errorf("sessionId = %q; want %q", gone.SessionID, paired.SessionID)
	}
	waitFor(t, "session teardown", func() bool { return srv.Sessions().ActiveCount() == 0 })
}

func TestAgentDisconnectInvalidatesCode(t *testing.T) {
	srv, ts := newTestRelay(t, Config{})
	agent, code := register(t, ts, "agent-1", "Claw")

	agent.Close()
	waitFor(t, "code removal", func() bool { return srv.Ledger().PendingCount() == 0 })

	client := dialWS(t, ts, "/ws/client")
	sendMsg(t, client, &ClientPair{Code: code})
	expectError(t, client, ErrCodeInvalidOrExpired)
}

func TestCodeSingleUseOverWire(t *testing.T) {
	_, ts := newTestRelay(t, Config{})
	agent, code := register(t, ts, "agent-1", "Claw")

	first := dialWS(t, ts, "/ws/client")
	sendMsg(t, first, &ClientPair{Code: code})
	if _, ok := readMsg(t, first).(*RelayPaired); !ok {
		t.Fatal("first client failed to pair")
	}
	readMsg(t, agent)

	// The code was consumed; a second client cannot hijack the agent.
	second := dialWS(t, ts, "/ws/client")
	sendMsg(t, second, &ClientPair{Code: code})
	expectError(t, second, ErrCodeInvalidOrExpired)
}

func TestProtocolErrors(t *testing.T) {
	_, ts := newTestRelay(t, Config{})

	t.Run("agent message before register", func(t *testing.T) {
		agent := dialWS(t, ts, "/ws/agent")
		sendMsg(t, agent, &AgentMessage{Text: "hi"})
		expectError(t, agent, ErrCodeNotRegistered)
	})

	t.Run("agent message without session", func(t *testing.T) {
		agent, _ := register(t, ts, "agent-1", "Claw")
		sendMsg(t, agent, &AgentMessage{Text: "hi"})
		expectError(t, agent, ErrCodeNoActiveSession)
	})

	t.Run("typing without session is dropped", func(t *testing.T) {
		agent, _ := register(t, ts, "agent-2", "Claw")
		sendMsg(t, agent, &AgentTyping{Active: true})
		// No error frame; the next real violation still answers.
		sendMsg(t, agent, &AgentMessage{Text: "hi"})
		expectError(t, agent, ErrCodeNoActiveSession)
	})

	t.Run("client message before pair", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		sendMsg(t, client, &ClientMessage{Text: "hi"})
		expectError(t, client, ErrCodeNotPaired)
	})

	t.Run("bad pairing code", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		sendMsg(t, client, &ClientPair{Code: "999999"})
		expectError(t, client, ErrCodeInvalidOrExpired)
	})

	t.Run("malformed frame", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		if err := client.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
			t.Fatal(err)
		}
		expectError(t, client, ErrCodeInvalidFrame)
	})

	t.Run("unknown type", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"client:selfdestruct"}`)); err != nil {
			t.Fatal(err)
		}
		expectError(t, client, ErrCodeUnknownType)
	})

	t.Run("wrong role message", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		sendMsg(t, client, &AgentRegister{AgentID: "sneaky"})
		expectError(t, client, ErrCodeUnknownType)
	})

	t.Run("connection survives errors", func(t *testing.T) {
		client := dialWS(t, ts, "/ws/client")
		sendMsg(t, client, &ClientMessage{Text: "hi"})
		expectError(t, client, ErrCodeNotPaired)

		agent, code := register(t, ts, "agent-3", "Claw")
		defer agent.Close()
		sendMsg(t, client, &ClientPair{Code: code})
		if _, ok := readMsg(t, client).(*RelayPaired); !ok {
			t.Fatal("client could not pair after an error frame")
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestRelay(t, Config{})

	get := func() HealthResponse {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var h HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			t.Fatal(err)
		}
		return h
	}

	h := get()
	if h.Status != "ok" || h.ActiveSessions != 0 || h.PendingPairings != 0 {
		t.Errorf("initial health = %+v", h)
	}

	agent, code := register(t, ts, "agent-1", "Claw")
	if h := get(); h.PendingPairings != 1 {
		t.Errorf("pendingPairings = %d; want 1", h.PendingPairings)
	}

	client := dialWS(t, ts, "/ws/client")
	sendMsg(t, client, &ClientPair{Code: code})
	readMsg(t, client)
	readMsg(t, agent)

	if h := get(); h.ActiveSessions != 1 || h.PendingPairings != 0 {
		t.Errorf("health after pairing = %+v", h)
	}
	if h := get(); h.Uptime < 0 {
		t.Errorf("uptime = %f", h.Uptime)
	}
}

func TestLivenessTerminatesSilentPeer(t *testing.T) {
	srv, ts := newTestRelay(t, Config{HeartbeatInterval: 25 * time.Millisecond})

	// An agent that registers but never reads: its client never services
	// pings, so it never pongs, and the monitor reclaims it.
	agent, _ := register(t, ts, "agent-1", "Claw")
	_ = agent // stop reading from here on

	waitFor(t, "unresponsive agent reclaim", func() bool {
		return srv.Ledger().PendingCount() == 0
	})
}
