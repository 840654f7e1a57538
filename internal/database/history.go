package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/failover"
)

// List limits
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Record is one persisted failover event
type Record struct {
	ID           int64              `json:"id"`
	RunID        string             `json:"run_id"`
	ClusterID    cluster.Identifier `json:"cluster_id"`
	EventType    failover.Kind      `json:"event_type"`
	Status       string             `json:"status"`
	SourceRegion string             `json:"source_region"`
	TargetRegion string             `json:"target_region"`
	Reason       string             `json:"reason,omitempty"`
	Polls        int                `json:"polls"`
	Timestamp    time.Time          `json:"timestamp"`
}

// RecordFromEvent flattens an orchestration event
func RecordFromEvent(e failover.Event) Record {
	r := Record{
		RunID:        e.RunID,
		ClusterID:    e.Cluster,
		EventType:    e.Kind,
		Status:       e.Status(),
		SourceRegion: e.SourceRegion,
		TargetRegion: e.TargetRegion,
		Timestamp:    e.Time,
	}
	if e.Outcome != nil {
		r.Reason = e.Outcome.Reason
		r.Polls = e.Outcome.Polls
	}
	return r
}

// Event rebuilds the orchestration event a record came from
func (r Record) Event() failover.Event {
	e := failover.Event{
		RunID:        r.RunID,
		Kind:         r.EventType,
		Phase:        failover.PhaseInitiated,
		Cluster:      r.ClusterID,
		SourceRegion: r.SourceRegion,
		TargetRegion: r.TargetRegion,
		Time:         r.Timestamp,
	}
	if r.Status != string(failover.PhaseInitiated) {
		e.Phase = failover.PhaseFinished
		e.Outcome = &failover.Outcome{
			Identifier:   r.ClusterID,
			Result:       failover.Result(r.Status),
			Reason:       r.Reason,
			SourceRegion: r.SourceRegion,
			TargetRegion: r.TargetRegion,
			Polls:        r.Polls,
		}
	}
	return e
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Cluster cluster.Identifier
	Kind    failover.Kind
	Status  string
	Limit   int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

func (f Filter) matches(r Record) bool {
	if f.Cluster != "" && r.ClusterID != f.Cluster {
		return false
	}
	if f.Kind != "" && r.EventType != f.Kind {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Store persists failover history. Lists are newest first.
type Store interface {
	Save(ctx context.Context, r *Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	LastSucceeded(ctx context.Context, id cluster.Identifier, kind failover.Kind) (failover.Event, bool, error)
}

var (
	_ Store            = (*MemoryHistory)(nil)
	_ failover.History = (*MemoryHistory)(nil)
)

// MemoryHistory keeps history in process
type MemoryHistory struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// NewMemoryHistory creates an empty store
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{nextID: 1}
}

// Save appends r, assigning its ID and a timestamp when unset
func (h *MemoryHistory) Save(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	r.ID = h.nextID
	h.nextID++
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	h.records = append(h.records, *r)
	return nil
}

// List returns matching records, newest first
func (h *MemoryHistory) List(ctx context.Context, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, 0)
	for i := len(h.records) - 1; i >= 0; i-- {
		if f.matches(h.records[i]) {
			out = append(out, h.records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// LastSucceeded returns the newest succeeded event of kind for id
func (h *MemoryHistory) LastSucceeded(ctx context.Context, id cluster.Identifier, kind failover.Kind) (failover.Event, bool, error) {
	list, err := h.List(ctx, Filter{Cluster: id, Kind: kind, Status: string(failover.ResultSucceeded), Limit: 1})
	if err != nil || len(list) == 0 {
		return failover.Event{}, false, err
	}
	return list[0].Event(), true, nil
}
