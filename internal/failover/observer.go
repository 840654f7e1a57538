package failover

import (
	"context"
	"time"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// Phase marks where in a sequence an event was emitted
type Phase string

const (
	PhaseInitiated Phase = "initiated"
	PhaseFinished  Phase = "finished"
)

// Event describes one step of one cluster's sequence
type Event struct {
	RunID        string             `json:"run_id"`
	Kind         Kind               `json:"kind"`
	Phase        Phase              `json:"phase"`
	Cluster      cluster.Identifier `json:"cluster"`
	SourceRegion string             `json:"source_region,omitempty"`
	TargetRegion string             `json:"target_region"`
	Outcome      *Outcome           `json:"outcome,omitempty"`
	Time         time.Time          `json:"time"`
}

// Status is "initiated" for accepted commands and the result otherwise
func (e Event) Status() string {
	if e.Outcome == nil {
		return string(PhaseInitiated)
	}
	return string(e.Outcome.Result)
}

// Observer is told about accepted commands and final outcomes. The context
// is detached from orchestration cancellation so a cancelled run still
// reports its outcomes, and carries the observer timeout. Observers must
// not change outcomes.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// History finds the last successful sequence of a kind for a cluster
type History interface {
	LastSucceeded(ctx context.Context, id cluster.Identifier, kind Kind) (Event, bool, error)
}
