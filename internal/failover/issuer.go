package failover

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
)

// Issuer submits failover commands. One Issuer serves one orchestration
// call and refuses to submit twice for the same cluster.
type Issuer struct {
	cp     controlplane.ControlPlane
	logger *zap.Logger

	mu     sync.Mutex
	issued map[cluster.Identifier]bool
}

// NewIssuer creates an issuer for a single run
func NewIssuer(cp controlplane.ControlPlane, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{cp: cp, logger: logger, issued: make(map[cluster.Identifier]bool)}
}

// Issue asks the control plane to move id's primary to targetRegion.
// A nil return means the command was accepted, not that it completed.
func (i *Issuer) Issue(ctx context.Context, id cluster.Identifier, targetRegion string) error {
	i.mu.Lock()
	if i.issued[id] {
		i.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrAlreadyIssued)
	}
	i.issued[id] = true
	i.mu.Unlock()

	if err := i.cp.RequestFailover(ctx, id, targetRegion); err != nil {
		i.logger.Warn("failover command not accepted",
			zap.String("cluster", id.String()),
			zap.String("target_region", targetRegion),
			zap.Error(err))
		return err
	}

	i.logger.Info("failover command accepted",
		zap.String("cluster", id.String()),
		zap.String("target_region", targetRegion))
	return nil
}
