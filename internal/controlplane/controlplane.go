// Package controlplane is the transport edge towards the cloud control plane
// that owns global database clusters.
package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairForge/globalfailover/internal/cluster"
)

//go:generate mockgen -destination=mocks/mock_controlplane.go -package=mocks -source=controlplane.go ControlPlane

// ControlPlane is the remote API consumed by the orchestrator. Implementations
// must be safe for concurrent use: one handle is shared by every in-flight
// failover sequence.
type ControlPlane interface {
	// ListGlobalClusters returns the full inventory, exhausting any pagination.
	ListGlobalClusters(ctx context.Context) ([]cluster.Descriptor, error)
	// DescribeCluster reads a single cluster. Returns ErrClusterNotFound when absent.
	DescribeCluster(ctx context.Context, id cluster.Identifier) (cluster.Descriptor, error)
	// RequestFailover asks the remote to promote the member in targetRegion.
	// It only confirms acceptance, not completion.
	RequestFailover(ctx context.Context, id cluster.Identifier, targetRegion string) error
}

// ErrClusterNotFound is returned when the control plane has no such cluster
var ErrClusterNotFound = errors.New("global cluster not found")

// TransportError is a communication failure with the control plane. It is
// the only error class the orchestrator retries.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CommandRejectedError is returned when the remote refused a failover request
type CommandRejectedError struct {
	Cluster cluster.Identifier
	Code    string
	Message string
}

func (e *CommandRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("failover of %s rejected: %s: %s", e.Cluster, e.Code, e.Message)
	}
	return fmt.Sprintf("failover of %s rejected: %s", e.Cluster, e.Message)
}

// IsTransport reports whether err is (or wraps) a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejected reports whether err is (or wraps) a CommandRejectedError
func IsRejected(err error) bool {
	var re *CommandRejectedError
	return errors.As(err, &re)
}
