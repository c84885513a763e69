package relay

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	ActiveSessions  int     `json:"activeSessions"`
	PendingPairings int     `json:"pendingPairings"`
	Uptime          float64 `json:"uptime"` // seconds
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		ActiveSessions:  s.sessions.ActiveCount(),
		PendingPairings: s.ledger.PendingCount(),
		Uptime:          time.Since(s.startedAt).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("health encode failed", "error", err)
	}
}
