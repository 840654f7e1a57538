package failover

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEventBuffer     = 1000
	defaultObserverTimeout = 10 * time.Second
)

type delivery struct {
	ctx  context.Context
	ev   Event
	done func()
}

// dispatcher delivers events to observers on one background goroutine so
// slow sinks never hold a sequence's worker slot. Events are delivered in
// the order they were queued.
type dispatcher struct {
	observers []Observer
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	queue   chan delivery
	closed  bool
	start   sync.Once
	stopped chan struct{}
}

func newDispatcher(observers []Observer, buffer int, timeout time.Duration, logger *zap.Logger) *dispatcher {
	if buffer < 1 {
		buffer = defaultEventBuffer
	}
	if timeout <= 0 {
		timeout = defaultObserverTimeout
	}
	return &dispatcher{
		observers: observers,
		timeout:   timeout,
		logger:    logger,
		queue:     make(chan delivery, buffer),
		stopped:   make(chan struct{}),
	}
}

// enqueue queues e without blocking. done runs once e has been delivered
// or dropped.
func (d *dispatcher) enqueue(ctx context.Context, e Event, done func()) {
	if len(d.observers) == 0 {
		done()
		return
	}
	d.start.Do(func() { go d.loop() })

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(e, "dispatcher closed")
		done()
		return
	}
	select {
	case d.queue <- delivery{ctx: context.WithoutCancel(ctx), ev: e, done: done}:
	default:
		d.drop(e, "event buffer full")
		done()
	}
}

func (d *dispatcher) drop(e Event, why string) {
	d.logger.Error("dropping failover event",
		zap.String("reason", why),
		zap.String("run_id", e.RunID),
		zap.String("cluster", e.Cluster.String()),
		zap.String("status", e.Status()))
}

func (d *dispatcher) loop() {
	defer close(d.stopped)
	for item := range d.queue {
		for _, obs := range d.observers {
			d.deliver(item.ctx, obs, item.ev)
		}
		item.done()
	}
}

func (d *dispatcher) deliver(ctx context.Context, obs Observer, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("observer panicked",
				zap.Any("panic", p),
				zap.String("cluster", e.Cluster.String()),
				zap.Stack("stack"))
		}
	}()
	obs.Observe(ctx, e)
}

// close stops accepting events and waits for queued ones until ctx ends
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	// never started means nothing was queued
	d.start.Do(func() { close(d.stopped) })
	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
