package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
	"github.com/FairForge/globalfailover/internal/database"
	"github.com/FairForge/globalfailover/internal/failover"
)

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	topologies, err := s.orch.ListTopologies(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"global_clusters": topologies,
		"count":           len(topologies),
	})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id := cluster.Identifier(chi.URLParam(r, "id"))

	topology, err := s.orch.DescribeTopology(r.Context(), id)
	switch {
	case errors.Is(err, controlplane.ErrClusterNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error())
	case err != nil:
		s.writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, topology)
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, http.StatusNotImplemented, "failover history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := database.Filter{
		Cluster: cluster.Identifier(q.Get("cluster")),
		Kind:    failover.Kind(q.Get("kind")),
		Status:  q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": records,
		"count":  len(records),
	})
}
