package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/failover"
)

// EventLogger writes events to a zap logger from a background goroutine
type EventLogger struct {
	logger *zap.Logger
	buffer chan failover.Event
	done   chan struct{}
	once   sync.Once
}

// NewEventLogger starts an event logger with a buffer of size events
func NewEventLogger(logger *zap.Logger, size int) *EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 1000
	}
	el := &EventLogger{
		logger: logger,
		buffer: make(chan failover.Event, size),
		done:   make(chan struct{}),
	}
	go el.process()
	return el
}

// Publish queues e without blocking. A full buffer drops the event.
func (el *EventLogger) Publish(_ context.Context, e failover.Event) error {
	select {
	case el.buffer <- e:
	default:
		el.logger.Warn("Event buffer full, dropping event",
			zap.String("type", TypeOf(e)),
			zap.String("cluster", e.Cluster.String()))
	}
	return nil
}

// Close drains the buffer and stops the background goroutine
func (el *EventLogger) Close() {
	el.once.Do(func() {
		close(el.buffer)
		<-el.done
	})
}

func (el *EventLogger) process() {
	defer close(el.done)
	for e := range el.buffer {
		data, _ := json.Marshal(e)
		el.logger.Info("event",
			zap.String("type", TypeOf(e)),
			zap.String("run_id", e.RunID),
			zap.String("cluster", e.Cluster.String()),
			zap.String("status", e.Status()),
			zap.String("data", string(data)),
		)
	}
}
