package relay

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures a relay server.
type Config struct {
	// Logger is used for server logging. If nil, slog.Default() is used.
	Logger *slog.Logger

	// PWADir is the directory of client app static files.
	// Served at / (embedded mode) or /app/ (hosted mode).
	PWADir string

	// LandingDir is the directory of landing page static files.
	// When set, the server runs in hosted mode: landing at /, PWA at /app/.
	LandingDir string

	// HeartbeatInterval is the liveness ping cadence. Default 30s.
	HeartbeatInterval time.Duration

	// SweepInterval is the pairing code sweep cadence. Default 60s.
	SweepInterval time.Duration
}

// Server is the relay: it owns the pairing ledger, the session table, and
// the connection arena, and routes frames between bound peers.
type Server struct {
	logger     *slog.Logger
	pwaDir     string
	landingDir string

	ledger   *PairingLedger
	sessions *SessionTable

	// mu serializes frame handling, close handling, and arena access.
	mu    sync.Mutex
	conns map[ConnID]*conn

	nextID    atomic.Uint64
	upgrader  websocket.Upgrader
	startedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a relay server and starts its background heartbeat and
// pairing sweep. Call Close to stop them.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat == 0 {
		heartbeat = 30 * time.Second
	}
	sweep := cfg.SweepInterval
	if sweep == 0 {
		sweep = SweepInterval
	}

	s := &Server{
		logger:     logger,
		pwaDir:     cfg.PWADir,
		landingDir: cfg.LandingDir,
		ledger:     NewPairingLedger(),
		sessions:   NewSessionTable(),
		conns:      make(map[ConnID]*conn),
		upgrader: websocket.Upgrader{
			// Code possession is the credential; origin is not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	go s.run(heartbeat, sweep)
	return s
}

// Sessions exposes the session table for diagnostics.
func (s *Server) Sessions() *SessionTable { return s.sessions }

// Ledger exposes the pairing ledger for diagnostics.
func (s *Server) Ledger() *PairingLedger { return s.ledger }

// Handler returns the HTTP handler serving the websocket endpoints, the
// health endpoint, and any configured static directories.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/agent", s.handleWS(RoleAgent))
	mux.HandleFunc("/ws/client", s.handleWS(RoleClient))
	mux.HandleFunc("/health", s.handleHealth)

	switch {
	case s.landingDir != "":
		// Hosted mode: landing at /, PWA at /app/.
		if s.pwaDir != "" {
			mux.Handle("/app/", http.StripPrefix("/app/", http.FileServer(http.Dir(s.pwaDir))))
		}
		mux.Handle("/", http.FileServer(http.Dir(s.landingDir)))
	case s.pwaDir != "":
		// Embedded mode: PWA at /.
		mux.Handle("/", http.FileServer(http.Dir(s.pwaDir)))
	}

	return mux
}

// Close stops the background loops and terminates all open connections.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
	return nil
}

func (s *Server) run(heartbeat, sweep time.Duration) {
	pingTicker := time.NewTicker(heartbeat)
	defer pingTicker.Stop()
	sweepTicker := time.NewTicker(sweep)
	defer sweepTicker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-pingTicker.C:
			s.pingAll()
		case <-sweepTicker.C:
			if n := s.ledger.Sweep(); n > 0 {
				s.logger.Debug("swept expired pairing codes", "count", n)
			}
		}
	}
}

// pingAll terminates connections that missed the previous ping cycle and
// pings the rest. Termination runs the usual close-handling path via the
// connection's read loop.
func (s *Server) pingAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	for _, c := range conns {
		if !c.alive.Load() {
			s.logger.Info("terminating unresponsive connection",
				"role", c.role.String(), "conn", uint64(c.id))
			c.ws.Close()
			continue
		}
		c.alive.Store(false)
		if err := c.ping(deadline); err != nil {
			s.logger.Debug("ping failed", "conn", uint64(c.id), "error", err)
		}
	}
}

func (s *Server) handleWS(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("upgrade failed", "role", role.String(), "error", err)
			return
		}

		id := ConnID(s.nextID.Add(1))
		c := newConn(id, role, ws)

		s.mu.Lock()
		s.conns[id] = c
		s.mu.Unlock()

		s.logger.Debug("connection open", "role", role.String(), "conn", uint64(id))
		s.readLoop(c)
	}
}

func (s *Server) readLoop(c *conn) {
	defer func() {
		c.ws.Close()
		s.handleClose(c)
	}()

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.handleFrame(c, data)
	}
}
