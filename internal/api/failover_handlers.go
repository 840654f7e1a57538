package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/failover"
	"github.com/FairForge/globalfailover/internal/logging"
)

const maxBodyBytes = 1 << 20

type failoverBody struct {
	Identifiers  []string `json:"identifiers"`
	TargetRegion string   `json:"targetRegion"`
	FailFast     bool     `json:"failFast"`
	PollInterval string   `json:"pollInterval"`
	Deadline     string   `json:"deadline"`
	Parallelism  int      `json:"parallelism"`
}

func (b failoverBody) identifiers() []cluster.Identifier {
	ids := make([]cluster.Identifier, len(b.Identifiers))
	for i, id := range b.Identifiers {
		ids[i] = cluster.Identifier(id)
	}
	return ids
}

// policy returns nil when the body carries no overrides
func (b failoverBody) policy(base failover.Policy) (*failover.Policy, error) {
	if b.PollInterval == "" && b.Deadline == "" && b.Parallelism == 0 {
		return nil, nil
	}
	p := base
	if b.PollInterval != "" {
		d, err := time.ParseDuration(b.PollInterval)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid pollInterval %q", b.PollInterval)
		}
		p.PollInterval = d
	}
	if b.Deadline != "" {
		d, err := time.ParseDuration(b.Deadline)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid deadline %q", b.Deadline)
		}
		p.MaxPollDeadline = d
	}
	if b.Parallelism > 0 {
		p.Parallelism = b.Parallelism
	}
	return &p, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema gojsonschema.JSONLoader) (failoverBody, bool) {
	var body failoverBody

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return body, false
	}
	if err := validateBody(schema, raw); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return body, false
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return body, false
	}
	return body, true
}

// handleFailover runs a failover batch. Per-cluster failures are part of
// a 200 response; only request and inventory errors change the status.
func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decode(w, r, failoverSchemaLoader)
	if !ok {
		return
	}
	policy, err := body.policy(s.orch.Policy())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.orch.FailoverAll(r.Context(), failover.Request{
		Identifiers:  body.identifiers(),
		TargetRegion: body.TargetRegion,
		FailFast:     body.FailFast,
		Policy:       policy,
	})
	s.respondBatch(w, r, result, err)
}

func (s *Server) handleFailback(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decode(w, r, failbackSchemaLoader)
	if !ok {
		return
	}
	policy, err := body.policy(s.orch.Policy())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.orch.FailbackAll(r.Context(), failover.FailbackRequest{
		Identifiers: body.identifiers(),
		FailFast:    body.FailFast,
		Policy:      policy,
	})
	s.respondBatch(w, r, result, err)
}

func (s *Server) respondBatch(w http.ResponseWriter, r *http.Request, result *failover.BatchResult, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, result)
	case errors.Is(err, failover.ErrInvalidRequest):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), s.logger).Error("orchestration failed", zap.Error(err))
		s.writeError(w, r, http.StatusBadGateway, err.Error())
	}
}
