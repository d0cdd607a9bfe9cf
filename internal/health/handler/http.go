// Package handler serves the readiness endpoint used by load balancers and orchestrators.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger checks a dependency, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server reports 200 when every dependency answers and 503 otherwise.
type Server struct {
	pinger Pinger
}

// NewServer returns a health Server. pinger may be nil; then the database check is skipped.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			slog.WarnContext(r.Context(), "health: database ping failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
