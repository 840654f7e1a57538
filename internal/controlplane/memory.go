package controlplane

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// Step is one scripted response to DescribeCluster
type Step struct {
	Status cluster.Status
	Err    error
	// Gone removes the cluster before answering, as if deleted externally
	Gone bool
}

// StatusSteps builds a script of plain status responses
func StatusSteps(statuses ...cluster.Status) []Step {
	steps := make([]Step, len(statuses))
	for i, s := range statuses {
		steps[i] = Step{Status: s}
	}
	return steps
}

type memCluster struct {
	desc        cluster.Descriptor
	script      []Step
	failoverErr error

	pendingRegion string
	pendingPolls  int

	failoverCalls int
	describeTimes []time.Time
}

// Memory is an in-process control plane. Clusters converge either by
// script or, without one, a fixed number of describe calls after a
// failover is accepted. Used for local dry runs and tests.
type Memory struct {
	mu            sync.Mutex
	clusters      map[cluster.Identifier]*memCluster
	listErrs      []error
	listCalls     int
	convergeAfter int
}

// NewMemory creates an empty in-memory control plane
func NewMemory() *Memory {
	return &Memory{
		clusters:      make(map[cluster.Identifier]*memCluster),
		convergeAfter: 2,
	}
}

// SetConvergeAfter sets how many describe calls an unscripted failover
// reports failing-over before completing.
func (m *Memory) SetConvergeAfter(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convergeAfter = polls
}

// Add registers or replaces a cluster
func (m *Memory) Add(desc cluster.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if desc.Status == "" {
		desc.Status = cluster.StatusAvailable
	}
	if desc.CurrentPrimaryRegion == "" {
		desc.CurrentPrimaryRegion = cluster.UnknownRegion
		if w, ok := desc.Writer(); ok {
			desc.CurrentPrimaryRegion = w.Region
		}
	}
	m.clusters[desc.Identifier] = &memCluster{desc: cloneDescriptor(desc)}
}

// Remove deletes a cluster
func (m *Memory) Remove(id cluster.Identifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clusters, id)
}

// Script queues DescribeCluster responses for a cluster
func (m *Memory) Script(id cluster.Identifier, steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clusters[id]; ok {
		c.script = append(c.script, steps...)
	}
}

// FailFailover makes RequestFailover for id return err
func (m *Memory) FailFailover(id cluster.Identifier, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clusters[id]; ok {
		c.failoverErr = err
	}
}

// FailList queues errors returned by successive ListGlobalClusters calls
func (m *Memory) FailList(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErrs = append(m.listErrs, errs...)
}

// ListCalls returns how many times the inventory was listed
func (m *Memory) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// FailoverCalls returns how many failover requests reached id
func (m *Memory) FailoverCalls(id cluster.Identifier) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clusters[id]; ok {
		return c.failoverCalls
	}
	return 0
}

// DescribeCalls returns how many times id was described
func (m *Memory) DescribeCalls(id cluster.Identifier) int {
	return len(m.DescribeTimes(id))
}

// DescribeTimes returns when each describe of id happened
func (m *Memory) DescribeTimes(id cluster.Identifier) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clusters[id]; ok {
		return append([]time.Time(nil), c.describeTimes...)
	}
	return nil
}

// ListGlobalClusters returns every cluster sorted by identifier
func (m *Memory) ListGlobalClusters(ctx context.Context) ([]cluster.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if len(m.listErrs) > 0 {
		err := m.listErrs[0]
		m.listErrs = m.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make([]cluster.Descriptor, 0, len(m.clusters))
	for _, c := range m.clusters {
		out = append(out, cloneDescriptor(c.desc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// DescribeCluster answers from the script first, then from the simulated
// convergence state.
func (m *Memory) DescribeCluster(ctx context.Context, id cluster.Identifier) (cluster.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Descriptor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clusters[id]
	if !ok {
		return cluster.Descriptor{}, fmt.Errorf("%s: %w", id, ErrClusterNotFound)
	}
	c.describeTimes = append(c.describeTimes, time.Now())

	if len(c.script) > 0 {
		step := c.script[0]
		c.script = c.script[1:]
		switch {
		case step.Gone:
			delete(m.clusters, id)
			return cluster.Descriptor{}, fmt.Errorf("%s: %w", id, ErrClusterNotFound)
		case step.Err != nil:
			return cluster.Descriptor{}, step.Err
		}
		c.desc.Status = step.Status
		c.desc.RawStatus = string(step.Status)
		if step.Status.IsSuccess() {
			c.promote()
		}
		return cloneDescriptor(c.desc), nil
	}

	if c.pendingRegion != "" {
		c.pendingPolls--
		if c.pendingPolls <= 0 {
			c.desc.Status = cluster.StatusAvailable
			c.desc.RawStatus = string(cluster.StatusAvailable)
			c.promote()
		}
	}
	return cloneDescriptor(c.desc), nil
}

// RequestFailover validates the target like the RDS adapter and starts a
// simulated failover.
func (m *Memory) RequestFailover(ctx context.Context, id cluster.Identifier, targetRegion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clusters[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrClusterNotFound)
	}
	c.failoverCalls++

	if c.failoverErr != nil {
		return c.failoverErr
	}
	if c.pendingRegion != "" || c.desc.Status == cluster.StatusFailingOver {
		return &CommandRejectedError{Cluster: id, Code: "InvalidGlobalClusterStateFault", Message: "failover already in progress"}
	}
	if len(c.desc.Members) > 0 {
		if c.desc.CurrentPrimaryRegion == targetRegion {
			return &CommandRejectedError{Cluster: id, Code: "AlreadyPrimary", Message: fmt.Sprintf("primary is already in %s", targetRegion)}
		}
		if _, ok := c.desc.MemberInRegion(targetRegion); !ok {
			return &CommandRejectedError{Cluster: id, Code: "NoTargetMember", Message: fmt.Sprintf("no secondary cluster in %s", targetRegion)}
		}
	}

	c.pendingRegion = targetRegion
	c.pendingPolls = m.convergeAfter + 1
	c.desc.Status = cluster.StatusFailingOver
	c.desc.RawStatus = string(cluster.StatusFailingOver)
	return nil
}

// promote makes the pending target region the writer
func (c *memCluster) promote() {
	if c.pendingRegion == "" {
		return
	}
	for i := range c.desc.Members {
		c.desc.Members[i].Writer = c.desc.Members[i].Region == c.pendingRegion
	}
	c.desc.CurrentPrimaryRegion = c.pendingRegion
	c.pendingRegion = ""
	c.pendingPolls = 0
}

func cloneDescriptor(d cluster.Descriptor) cluster.Descriptor {
	d.Members = append([]cluster.Member(nil), d.Members...)
	return d
}
