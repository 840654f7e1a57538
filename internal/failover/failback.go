package failover

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// FailbackRequest asks for the named clusters to return to the region
// their last successful failover moved them from.
type FailbackRequest struct {
	Identifiers []cluster.Identifier
	FailFast    bool
	Policy      *Policy
}

// Validate checks the request shape
func (r FailbackRequest) Validate() error {
	return validateCommon(r.Identifiers, r.Policy)
}

// FailbackAll reverses the last successful failover of each named cluster
func (o *Orchestrator) FailbackAll(ctx context.Context, req FailbackRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ids := dedupe(req.Identifiers)
	targets := make([]target, len(ids))
	for i, id := range ids {
		targets[i] = o.failbackTarget(ctx, id)
	}
	return o.execute(ctx, KindFailback, "", targets, req.FailFast, o.effectivePolicy(req.Policy))
}

func (o *Orchestrator) failbackTarget(ctx context.Context, id cluster.Identifier) target {
	if o.history == nil {
		return target{id: id, failed: ErrNoHistory.Error()}
	}
	ev, ok, err := o.history.LastSucceeded(ctx, id, KindFailover)
	switch {
	case err != nil:
		o.logger.Warn("failback history lookup failed", zap.String("cluster", id.String()), zap.Error(err))
		return target{id: id, failed: fmt.Sprintf("history lookup: %v", err)}
	case !ok || ev.SourceRegion == "" || ev.SourceRegion == cluster.UnknownRegion:
		return target{id: id, failed: ErrNoHistory.Error()}
	}
	return target{id: id, region: ev.SourceRegion}
}
