package failover

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
)

// Inventory reads the control plane's global clusters once per run
type Inventory struct {
	cp     controlplane.ControlPlane
	logger *zap.Logger
}

// NewInventory creates an inventory reader
func NewInventory(cp controlplane.ControlPlane, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{cp: cp, logger: logger}
}

// List returns all global clusters. Transport failures are retried up to
// attempts times with exponential delay starting at delay.
func (i *Inventory) List(ctx context.Context, attempts int, delay time.Duration) ([]cluster.Descriptor, error) {
	if attempts < 1 {
		attempts = 1
	}

	var list []cluster.Descriptor
	err := retry.Do(
		func() error {
			var err error
			list, err = i.cp.ListGlobalClusters(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(controlplane.IsTransport),
		retry.OnRetry(func(n uint, err error) {
			i.logger.Warn("inventory read failed, retrying",
				zap.Uint("attempt", n+1),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("list global clusters: %w", err)
	}
	return list, nil
}

// Snapshot indexes List by identifier
func (i *Inventory) Snapshot(ctx context.Context, attempts int, delay time.Duration) (map[cluster.Identifier]cluster.Descriptor, error) {
	list, err := i.List(ctx, attempts, delay)
	if err != nil {
		return nil, err
	}
	snap := make(map[cluster.Identifier]cluster.Descriptor, len(list))
	for _, d := range list {
		snap[d.Identifier] = d
	}
	i.logger.Debug("inventory snapshot", zap.Int("clusters", len(snap)))
	return snap, nil
}
