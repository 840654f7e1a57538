package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
)

// PollResult is what a poll loop observed
type PollResult struct {
	Descriptor      cluster.Descriptor
	Status          cluster.Status
	Polls           int
	TransientErrors int
}

// Poller waits for a cluster to reach a terminal status
type Poller struct {
	cp         controlplane.ControlPlane
	retryLimit int
	target     string
	logger     *zap.Logger
}

// NewPoller creates a poller that gives up after retryLimit transport failures
func NewPoller(cp controlplane.ControlPlane, retryLimit int, logger *zap.Logger) *Poller {
	if retryLimit < 1 {
		retryLimit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{cp: cp, retryLimit: retryLimit, logger: logger}
}

// ExpectPrimary makes an available status count only once the primary is
// reported in region. An available read with the primary elsewhere is
// treated as still converging.
func (p *Poller) ExpectPrimary(region string) *Poller {
	p.target = region
	return p
}

func (p *Poller) converged(desc cluster.Descriptor) bool {
	if !desc.Status.IsTerminal() {
		return false
	}
	if !desc.Status.IsSuccess() || p.target == "" {
		return true
	}
	primary := desc.CurrentPrimaryRegion
	return primary == "" || primary == cluster.UnknownRegion || primary == p.target
}

// AwaitTerminal polls id until it reports a terminal status, the deadline
// passes, the context ends, or transport failures reach the retry limit.
// The first poll is immediate; later waits come from bo and are clipped
// so no poll starts after the deadline.
//
// A nil error means a terminal status was observed; the caller inspects
// PollResult.Status to tell success from failure. Errors wrap
// ErrTimeoutExceeded, ErrCancelled, ErrClusterGone or ErrTransientLimit.
// Errors that are not transport failures end the loop at once.
func (p *Poller) AwaitTerminal(ctx context.Context, id cluster.Identifier, deadline time.Time, bo backoff.BackOff) (PollResult, error) {
	var res PollResult
	log := p.logger.With(zap.String("cluster", id.String()))

	for {
		if ctx.Err() != nil {
			return res, cancelledError(ctx)
		}
		if !time.Now().Before(deadline) {
			return res, fmt.Errorf("%s after %d polls: %w", id, res.Polls, ErrTimeoutExceeded)
		}

		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		desc, err := p.cp.DescribeCluster(pollCtx, id)
		cancel()
		res.Polls++

		switch {
		case err == nil:
			res.Descriptor = desc
			res.Status = desc.Status
			if p.converged(desc) {
				log.Debug("terminal status observed",
					zap.String("status", string(desc.Status)),
					zap.Int("polls", res.Polls))
				return res, nil
			}
			if desc.Status.IsSuccess() {
				log.Debug("available before primary moved",
					zap.String("primary_region", desc.CurrentPrimaryRegion),
					zap.String("target_region", p.target))
			}
		case errors.Is(err, controlplane.ErrClusterNotFound):
			return res, fmt.Errorf("%s: %w", id, ErrClusterGone)
		case ctx.Err() != nil:
			return res, cancelledError(ctx)
		case errors.Is(err, context.DeadlineExceeded) && (!time.Now().Before(deadline) || errors.Is(err, controlplane.ErrRateLimited)):
			return res, fmt.Errorf("%s after %d polls: %w", id, res.Polls, ErrTimeoutExceeded)
		case !controlplane.IsTransport(err):
			return res, fmt.Errorf("describe %s: %w", id, err)
		default:
			res.TransientErrors++
			if res.TransientErrors >= p.retryLimit {
				return res, fmt.Errorf("%s: %w: %w", id, ErrTransientLimit, err)
			}
			log.Warn("status poll failed",
				zap.Int("transient_errors", res.TransientErrors),
				zap.Int("limit", p.retryLimit),
				zap.Error(err))
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return res, fmt.Errorf("%s after %d polls: %w", id, res.Polls, ErrTimeoutExceeded)
		}
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return res, cancelledError(ctx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
