package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
)

const tracerName = "github.com/FairForge/globalfailover/internal/failover"

// Request asks for the named clusters' primaries to move to TargetRegion
type Request struct {
	Identifiers  []cluster.Identifier
	TargetRegion string
	// FailFast cancels the remaining sequences after the first one that
	// does not succeed.
	FailFast bool
	// Policy overrides the orchestrator's policy for this call
	Policy *Policy
}

// Validate checks the request shape
func (r Request) Validate() error {
	if strings.TrimSpace(r.TargetRegion) == "" {
		return fmt.Errorf("%w: target region is required", ErrInvalidRequest)
	}
	return validateCommon(r.Identifiers, r.Policy)
}

func validateCommon(ids []cluster.Identifier, policy *Policy) error {
	for _, id := range ids {
		if strings.TrimSpace(string(id)) == "" {
			return fmt.Errorf("%w: empty cluster identifier", ErrInvalidRequest)
		}
	}
	if policy != nil {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

// Orchestrator drives failover sequences for batches of global clusters
type Orchestrator struct {
	cp        controlplane.ControlPlane
	inventory *Inventory
	policy    Policy
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
	history   History

	eventBuffer     int
	observerTimeout time.Duration
	dispatch        *dispatcher
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPolicy sets the default policy
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p.WithDefaults()
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and sequence spans
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithObserver adds observers
func WithObserver(observers ...Observer) Option {
	return func(o *Orchestrator) {
		for _, obs := range observers {
			if obs != nil {
				o.observers = append(o.observers, obs)
			}
		}
	}
}

// WithEventBuffer sets how many undelivered observer events may queue
// before new ones are dropped
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		o.eventBuffer = n
	}
}

// WithObserverTimeout bounds each observer call
func WithObserverTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.observerTimeout = d
	}
}

// WithHistory sets the history used to resolve failback targets
func WithHistory(h History) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// New creates an orchestrator over a control plane
func New(cp controlplane.ControlPlane, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cp:     cp,
		policy: DefaultPolicy(),
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.inventory = NewInventory(cp, o.logger)
	o.dispatch = newDispatcher(o.observers, o.eventBuffer, o.observerTimeout, o.logger)
	return o
}

// Close waits for queued observer events to be delivered until ctx ends.
// Later events are dropped.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.dispatch.close(ctx)
}

// Policy returns the default policy
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// target is one planned sequence
type target struct {
	id     cluster.Identifier
	region string
	// failed short-circuits the sequence with a Failed outcome
	failed string
}

// run holds the state shared by one orchestration call
type run struct {
	id     string
	kind   Kind
	policy Policy
	issuer *Issuer
	logger *zap.Logger

	mu       sync.Mutex
	result   *BatchResult
	panicked error

	// pending counts events not yet delivered to observers
	pending sync.WaitGroup
}

func (r *run) set(out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Outcomes[out.Identifier] = out
}

func (r *run) recordPanic(id cluster.Identifier, p any) {
	r.logger.Error("cluster sequence panicked",
		zap.String("cluster", id.String()),
		zap.Any("panic", p),
		zap.Stack("stack"))
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicked == nil {
		r.panicked = fmt.Errorf("sequence for %s panicked: %v", id, p)
	}
}

// FailoverAll moves every named cluster's primary to req.TargetRegion and
// returns one outcome per distinct identifier. Per-cluster failures are
// outcomes, not errors; an error is returned only for an invalid request
// or an unreadable inventory.
func (o *Orchestrator) FailoverAll(ctx context.Context, req Request) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids := dedupe(req.Identifiers)
	targets := make([]target, len(ids))
	for i, id := range ids {
		targets[i] = target{id: id, region: req.TargetRegion}
	}
	return o.execute(ctx, KindFailover, req.TargetRegion, targets, req.FailFast, o.effectivePolicy(req.Policy))
}

func (o *Orchestrator) effectivePolicy(p *Policy) Policy {
	if p == nil {
		return o.policy
	}
	return p.WithDefaults()
}

func (o *Orchestrator) execute(ctx context.Context, kind Kind, batchTarget string, targets []target, failFast bool, policy Policy) (*BatchResult, error) {
	r := &run{
		id:     uuid.NewString(),
		kind:   kind,
		policy: policy,
		result: &BatchResult{
			Kind:         kind,
			TargetRegion: batchTarget,
			StartedAt:    time.Now().UTC(),
			Outcomes:     make(map[cluster.Identifier]Outcome, len(targets)),
		},
	}
	r.result.RunID = r.id
	r.logger = o.logger.With(zap.String("run_id", r.id), zap.String("kind", string(kind)))
	r.issuer = NewIssuer(o.cp, r.logger)

	ctx, span := o.tracer.Start(ctx, "failover.run", trace.WithAttributes(
		attribute.String("run_id", r.id),
		attribute.String("kind", string(kind)),
		attribute.Int("clusters", len(targets)),
		attribute.Bool("fail_fast", failFast),
	))
	defer span.End()

	if len(targets) == 0 {
		r.result.FinishedAt = time.Now().UTC()
		return r.result, nil
	}

	r.logger.Info("orchestration started",
		zap.Int("clusters", len(targets)),
		zap.String("target_region", batchTarget),
		zap.Bool("fail_fast", failFast))

	snapshot, err := o.inventory.Snapshot(ctx, policy.TransientRetryLimit, policy.RetryDelay)
	if err != nil && ctx.Err() != nil {
		reason := cancelReason(ctx)
		for _, t := range targets {
			o.finish(ctx, r, Outcome{Identifier: t.id, Result: ResultCancelled, Reason: reason, TargetRegion: t.region})
		}
		r.result.FinishedAt = time.Now().UTC()
		o.awaitDelivery(ctx, r)
		return r.result, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory unavailable")
		r.logger.Error("inventory read failed", zap.Error(err))
		return nil, err
	}

	var (
		dispatch []dispatchItem
		abortBy  cluster.Identifier
	)
	for _, t := range targets {
		desc, found := snapshot[t.id]
		switch {
		case t.failed != "":
			o.finish(ctx, r, Outcome{Identifier: t.id, Result: ResultFailed, Reason: t.failed, SourceRegion: desc.CurrentPrimaryRegion, TargetRegion: t.region})
		case !found:
			o.finish(ctx, r, Outcome{Identifier: t.id, Result: ResultNotFound, Reason: "not present in control plane inventory", TargetRegion: t.region})
		default:
			dispatch = append(dispatch, dispatchItem{desc: desc, region: t.region})
			continue
		}
		if abortBy == "" {
			abortBy = t.id
		}
	}

	if failFast && abortBy != "" {
		reason := (&batchAbortedError{cause: abortBy}).Error()
		for _, d := range dispatch {
			o.finish(ctx, r, Outcome{
				Identifier:   d.desc.Identifier,
				Result:       ResultCancelled,
				Reason:       reason,
				Status:       d.desc.Status,
				SourceRegion: d.desc.CurrentPrimaryRegion,
				TargetRegion: d.region,
			})
		}
		dispatch = nil
	}

	if len(dispatch) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(policy.ParallelismFor(len(dispatch)))
		for _, d := range dispatch {
			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						r.recordPanic(d.desc.Identifier, p)
						err = errSequencePanicked
					}
				}()
				out := o.sequence(gctx, r, d.desc, d.region)
				o.finish(ctx, r, out)
				if failFast && !out.Succeeded() {
					return &batchAbortedError{cause: out.Identifier}
				}
				return nil
			})
		}
		// sequence errors are already outcomes
		_ = g.Wait()
		if r.panicked != nil {
			// surface the crash on the caller's goroutine
			panic(r.panicked)
		}
	}

	r.result.FinishedAt = time.Now().UTC()
	counts := r.result.Counts()
	if counts[ResultSucceeded] != len(r.result.Outcomes) {
		span.SetStatus(codes.Error, "not all clusters succeeded")
	}
	r.logger.Info("orchestration finished",
		zap.Int("succeeded", counts[ResultSucceeded]),
		zap.Int("not_found", counts[ResultNotFound]),
		zap.Int("timed_out", counts[ResultTimedOut]),
		zap.Int("failed", counts[ResultFailed]),
		zap.Int("cancelled", counts[ResultCancelled]),
		zap.Duration("duration", r.result.FinishedAt.Sub(r.result.StartedAt)))
	o.awaitDelivery(ctx, r)
	return r.result, nil
}

// awaitDelivery waits until the run's events reached every observer. A
// cancelled caller does not wait; the events are still delivered later.
func (o *Orchestrator) awaitDelivery(ctx context.Context, r *run) {
	delivered := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-ctx.Done():
		r.logger.Debug("returning before observers caught up")
	}
}

type dispatchItem struct {
	desc   cluster.Descriptor
	region string
}

// sequence runs issue then poll for one cluster
func (o *Orchestrator) sequence(ctx context.Context, r *run, desc cluster.Descriptor, region string) Outcome {
	start := time.Now()
	id := desc.Identifier
	out := Outcome{
		Identifier:   id,
		Status:       desc.Status,
		SourceRegion: desc.CurrentPrimaryRegion,
		TargetRegion: region,
	}

	ctx, span := o.tracer.Start(ctx, "failover.cluster", trace.WithAttributes(
		attribute.String("cluster", id.String()),
		attribute.String("source_region", desc.CurrentPrimaryRegion),
		attribute.String("target_region", region),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("result", string(out.Result)),
			attribute.Int("polls", out.Polls),
		)
		if !out.Succeeded() {
			span.SetStatus(codes.Error, out.Reason)
		}
		span.End()
	}()

	finish := func(result Result, reason string) Outcome {
		out.Result = result
		out.Reason = reason
		out.Duration = time.Since(start)
		return out
	}

	if ctx.Err() != nil {
		return finish(ResultCancelled, cancelReason(ctx))
	}

	if err := r.issuer.Issue(ctx, id, region); err != nil {
		if ctx.Err() != nil {
			return finish(ResultCancelled, cancelReason(ctx))
		}
		return finish(ResultFailed, err.Error())
	}
	out.CommandIssued = true
	deadline := time.Now().Add(r.policy.MaxPollDeadline)
	o.notify(ctx, r, Event{
		RunID:        r.id,
		Kind:         r.kind,
		Phase:        PhaseInitiated,
		Cluster:      id,
		SourceRegion: desc.CurrentPrimaryRegion,
		TargetRegion: region,
		Time:         time.Now().UTC(),
	})

	poller := NewPoller(o.cp, r.policy.TransientRetryLimit, r.logger).ExpectPrimary(region)
	res, err := poller.AwaitTerminal(ctx, id, deadline, r.policy.NewBackOff())
	out.Polls = res.Polls
	out.TransientErrors = res.TransientErrors
	if res.Status != "" {
		out.Status = res.Status
	}

	switch {
	case err == nil && res.Status.IsSuccess():
		return finish(ResultSucceeded, "")
	case err == nil:
		return finish(ResultFailed, fmt.Sprintf("cluster entered status %s", res.Status))
	case errors.Is(err, ErrTimeoutExceeded) && res.Status.IsSuccess():
		return finish(ResultTimedOut, fmt.Sprintf("cluster available but primary still in %s after %s", res.Descriptor.CurrentPrimaryRegion, r.policy.MaxPollDeadline))
	case errors.Is(err, ErrTimeoutExceeded):
		return finish(ResultTimedOut, fmt.Sprintf("no terminal status within %s (last status %s)", r.policy.MaxPollDeadline, out.Status))
	case errors.Is(err, ErrCancelled):
		return finish(ResultCancelled, cancelReason(ctx))
	case errors.Is(err, ErrClusterGone):
		return finish(ResultFailed, ErrClusterGone.Error())
	default:
		return finish(ResultFailed, err.Error())
	}
}

// finish stores an outcome and reports it
func (o *Orchestrator) finish(ctx context.Context, r *run, out Outcome) {
	r.set(out)

	fields := []zap.Field{
		zap.String("cluster", out.Identifier.String()),
		zap.String("result", string(out.Result)),
		zap.String("target_region", out.TargetRegion),
		zap.Int("polls", out.Polls),
	}
	if out.Reason != "" {
		fields = append(fields, zap.String("reason", out.Reason))
	}
	if out.Succeeded() {
		r.logger.Info("cluster sequence finished", fields...)
	} else {
		r.logger.Warn("cluster sequence finished", fields...)
	}

	o.notify(ctx, r, Event{
		RunID:        r.id,
		Kind:         r.kind,
		Phase:        PhaseFinished,
		Cluster:      out.Identifier,
		SourceRegion: out.SourceRegion,
		TargetRegion: out.TargetRegion,
		Outcome:      &out,
		Time:         time.Now().UTC(),
	})
}

func (o *Orchestrator) notify(ctx context.Context, r *run, e Event) {
	r.pending.Add(1)
	o.dispatch.enqueue(ctx, e, r.pending.Done)
}

// ListTopologies returns every global cluster with its replication flows
func (o *Orchestrator) ListTopologies(ctx context.Context) ([]cluster.Topology, error) {
	list, err := o.inventory.List(ctx, o.policy.TransientRetryLimit, o.policy.RetryDelay)
	if err != nil {
		return nil, err
	}
	out := make([]cluster.Topology, len(list))
	for i, d := range list {
		out[i] = cluster.NewTopology(d)
	}
	return out, nil
}

// DescribeTopology returns one cluster's current state and replication flows
func (o *Orchestrator) DescribeTopology(ctx context.Context, id cluster.Identifier) (cluster.Topology, error) {
	d, err := o.cp.DescribeCluster(ctx, id)
	if err != nil {
		return cluster.Topology{}, fmt.Errorf("describe %s: %w", id, err)
	}
	return cluster.NewTopology(d), nil
}

// dedupe drops repeated identifiers, keeping first-seen order
func dedupe(ids []cluster.Identifier) []cluster.Identifier {
	seen := make(map[cluster.Identifier]bool, len(ids))
	out := make([]cluster.Identifier, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
