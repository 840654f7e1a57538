package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/version", s.handleVersion)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/failover", s.handleFailover)
		r.Post("/failback", s.handleFailback)
		r.Get("/failover/events", s.handleListEvents)

		r.Route("/global-clusters", func(r chi.Router) {
			r.Get("/", s.handleListClusters)
			r.Get("/{id}", s.handleGetCluster)
		})
	})
}
