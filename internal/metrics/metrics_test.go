package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/globalfailover/internal/failover"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.Observe(ctx, failover.Event{Kind: failover.KindFailover, Phase: failover.PhaseInitiated, Cluster: "orders"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))

	m.Observe(ctx, failover.Event{
		Kind:    failover.KindFailover,
		Phase:   failover.PhaseFinished,
		Cluster: "orders",
		Outcome: &failover.Outcome{
			Result:          failover.ResultSucceeded,
			CommandIssued:   true,
			Polls:           4,
			TransientErrors: 1,
			Duration:        90 * time.Second,
		},
	})
	m.Observe(ctx, failover.Event{
		Kind:    failover.KindFailover,
		Phase:   failover.PhaseFinished,
		Cluster: "ghost",
		Outcome: &failover.Outcome{Result: failover.ResultNotFound},
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("failover", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("failover", "not_found")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Polls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransientErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Convergence))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodPost, "/api/v1/failover", http.StatusOK, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `failover_http_requests_total{method="POST",path="/api/v1/failover",status="200"} 1`)
	assert.Contains(t, string(body), "failover_in_flight 0")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Polls.Add(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Polls))
}
