package controlplane

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// ErrRateLimited marks a call that could not get a token before its
// context deadline. It always wraps context.DeadlineExceeded.
var ErrRateLimited = errors.New("rate limit token unavailable before deadline")

// RateLimited bounds the request rate towards a control plane. Every
// concurrent failover sequence shares the same limiter so a large batch
// cannot trip the remote's API throttling on its own.
type RateLimited struct {
	next    ControlPlane
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of ratePerSecond and burst
func NewRateLimited(next ControlPlane, ratePerSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// ListGlobalClusters waits for a token, then lists
func (r *RateLimited) ListGlobalClusters(ctx context.Context) ([]cluster.Descriptor, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.ListGlobalClusters(ctx)
}

// DescribeCluster waits for a token, then describes
func (r *RateLimited) DescribeCluster(ctx context.Context, id cluster.Identifier) (cluster.Descriptor, error) {
	if err := r.wait(ctx); err != nil {
		return cluster.Descriptor{}, err
	}
	return r.next.DescribeCluster(ctx, id)
}

// RequestFailover waits for a token, then submits the failover
func (r *RateLimited) RequestFailover(ctx context.Context, id cluster.Identifier, targetRegion string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.RequestFailover(ctx, id, targetRegion)
}

// wait reports a token that cannot arrive before the context deadline as
// ErrRateLimited wrapping context.DeadlineExceeded. The call would expire
// anyway, so callers treat it as the deadline passing.
func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w: %v", ErrRateLimited, context.DeadlineExceeded, err)
	}
	return nil
}
