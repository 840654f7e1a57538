package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FairForge/globalfailover/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": s.build.Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"ready": false,
				"error": err.Error(),
			})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.build)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": logging.RequestID(r.Context()),
	})
}
