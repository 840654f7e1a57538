package failover

import (
	"sort"
	"time"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// Result classifies how one cluster's sequence ended
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultNotFound  Result = "not_found"
	ResultTimedOut  Result = "timed_out"
	ResultFailed    Result = "failed"
	ResultCancelled Result = "cancelled"
)

// Kind says which direction a run moved primaries
type Kind string

const (
	KindFailover Kind = "failover"
	KindFailback Kind = "failback"
)

// Outcome is the final record for one requested cluster
type Outcome struct {
	Identifier      cluster.Identifier `json:"identifier"`
	Result          Result             `json:"result"`
	Reason          string             `json:"reason,omitempty"`
	Status          cluster.Status     `json:"status,omitempty"`
	SourceRegion    string             `json:"source_region,omitempty"`
	TargetRegion    string             `json:"target_region"`
	CommandIssued   bool               `json:"command_issued"`
	Polls           int                `json:"polls"`
	TransientErrors int                `json:"transient_errors,omitempty"`
	Duration        time.Duration      `json:"duration_ns"`
}

// Succeeded reports whether the cluster reached an available primary in the target region
func (o Outcome) Succeeded() bool {
	return o.Result == ResultSucceeded
}

// BatchResult maps every requested identifier to exactly one outcome
type BatchResult struct {
	RunID        string                         `json:"run_id"`
	Kind         Kind                           `json:"kind"`
	TargetRegion string                         `json:"target_region,omitempty"`
	StartedAt    time.Time                      `json:"started_at"`
	FinishedAt   time.Time                      `json:"finished_at"`
	Outcomes     map[cluster.Identifier]Outcome `json:"outcomes"`
}

// Identifiers returns the outcome keys in lexical order
func (b *BatchResult) Identifiers() []cluster.Identifier {
	ids := make([]cluster.Identifier, 0, len(b.Outcomes))
	for id := range b.Outcomes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Counts tallies outcomes by result
func (b *BatchResult) Counts() map[Result]int {
	counts := make(map[Result]int)
	for _, o := range b.Outcomes {
		counts[o.Result]++
	}
	return counts
}

// AllSucceeded is true when the batch is non-empty and nothing failed
func (b *BatchResult) AllSucceeded() bool {
	if len(b.Outcomes) == 0 {
		return false
	}
	for _, o := range b.Outcomes {
		if !o.Succeeded() {
			return false
		}
	}
	return true
}
