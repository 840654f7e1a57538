package failover

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairForge/globalfailover/internal/cluster"
)

var (
	// ErrInvalidRequest is returned for requests that cannot be orchestrated
	ErrInvalidRequest = errors.New("invalid failover request")
	// ErrTimeoutExceeded means the poll deadline passed before a terminal status
	ErrTimeoutExceeded = errors.New("convergence deadline exceeded")
	// ErrCancelled means the caller abandoned the wait
	ErrCancelled = errors.New("orchestration cancelled")
	// ErrClusterGone means the cluster disappeared from the control plane mid-poll
	ErrClusterGone = errors.New("cluster no longer present")
	// ErrTransientLimit means polling hit too many transport failures
	ErrTransientLimit = errors.New("transient error limit reached")
	// ErrAlreadyIssued guards the one-command-per-call invariant
	ErrAlreadyIssued = errors.New("failover command already issued in this run")
	// ErrNoHistory means failback has no prior failover to reverse
	ErrNoHistory = errors.New("no failover history")

	// errSequencePanicked stops a batch whose sequence crashed
	errSequencePanicked = errors.New("cluster sequence panicked")
)

// batchAbortedError is the cancellation cause used by fail-fast batches
type batchAbortedError struct {
	cause cluster.Identifier
}

func (e *batchAbortedError) Error() string {
	return fmt.Sprintf("batch aborted after %s did not succeed", e.cause)
}

// cancelledError wraps ErrCancelled with the context's cancellation cause
func cancelledError(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// cancelReason renders a cancellation for an outcome
func cancelReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	var aborted *batchAbortedError
	switch {
	case errors.As(cause, &aborted):
		return aborted.Error()
	case errors.Is(cause, context.DeadlineExceeded):
		return "orchestration deadline exceeded"
	default:
		return ErrCancelled.Error()
	}
}
