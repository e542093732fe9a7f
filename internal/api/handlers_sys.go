package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// LivezHandler handles GET /livez.
func (s *Server) LivezHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyzHandler handles GET /readyz. The server is ready when it is not draining and
// the store answers a ping.
func (s *Server) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("readiness check: store unreachable")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
