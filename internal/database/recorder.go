package database

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/failover"
)

var _ failover.Observer = (*Recorder)(nil)

// Recorder writes orchestration events to a Store. Write failures are
// retried, then logged; they never reach the orchestration.
type Recorder struct {
	store    Store
	logger   *zap.Logger
	attempts uint
	delay    time.Duration
	timeout  time.Duration
}

// NewRecorder creates a recorder over store
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:    store,
		logger:   logger,
		attempts: 3,
		delay:    100 * time.Millisecond,
		timeout:  5 * time.Second,
	}
}

// Observe persists e
func (r *Recorder) Observe(ctx context.Context, e failover.Event) {
	rec := RecordFromEvent(e)
	err := retry.Do(
		func() error {
			writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return r.store.Save(writeCtx, &rec)
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		r.logger.Error("failed to record failover event",
			zap.String("run_id", e.RunID),
			zap.String("cluster", e.Cluster.String()),
			zap.String("status", rec.Status),
			zap.Error(err))
	}
}
