// Package events publishes failover progress to logs and message brokers.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/failover"
)

// Topic names carried on published events
const (
	TypeInitiated = "failover.initiated"
	TypeFinished  = "failover.finished"
)

// TypeOf returns the event type for e
func TypeOf(e failover.Event) string {
	if e.Phase == failover.PhaseInitiated {
		return TypeInitiated
	}
	return TypeFinished
}

// Publisher sends failover events somewhere
type Publisher interface {
	Publish(ctx context.Context, e failover.Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e failover.Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, e failover.Event) error {
	return f(ctx, e)
}

var _ failover.Observer = (*Fanout)(nil)

// Fanout delivers each orchestration event to every publisher. A failing
// publisher is logged and skipped.
type Fanout struct {
	publishers []Publisher
	logger     *zap.Logger
}

// NewFanout creates a fan-out over publishers
func NewFanout(logger *zap.Logger, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{publishers: publishers, logger: logger}
}

// Observe publishes e to every publisher
func (f *Fanout) Observe(ctx context.Context, e failover.Event) {
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			f.logger.Warn("failed to publish failover event",
				zap.String("type", TypeOf(e)),
				zap.String("cluster", e.Cluster.String()),
				zap.Error(err))
		}
	}
}
