package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/FairForge/globalfailover/internal/cluster"
	"github.com/FairForge/globalfailover/internal/controlplane"
	"github.com/FairForge/globalfailover/internal/controlplane/mocks"
)

func fastPolicy() *Policy {
	return &Policy{
		PollInterval:        time.Millisecond,
		MaxPollDeadline:     2 * time.Second,
		TransientRetryLimit: 3,
		Parallelism:         4,
		RetryDelay:          time.Millisecond,
	}
}

func twoRegion(id string) cluster.Descriptor {
	return cluster.Descriptor{
		Identifier: cluster.Identifier(id),
		Members: []cluster.Member{
			cluster.NewMember("arn:aws:rds:us-east-1:123456789012:cluster:"+id+"-east", true),
			cluster.NewMember("arn:aws:rds:us-west-2:123456789012:cluster:"+id+"-west", false),
		},
	}
}

// eventLog records observer events
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) forCluster(id cluster.Identifier) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Cluster == id {
			out = append(out, e)
		}
	}
	return out
}

func TestFailoverAll_Succeeds(t *testing.T) {
	// Arrange
	m := controlplane.NewMemory()
	m.SetConvergeAfter(2)
	m.Add(twoRegion("orders"))
	log := &eventLog{}
	orch := New(m, WithObserver(log))

	// Act
	result, err := orch.FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"orders"},
		TargetRegion: "us-west-2",
		Policy:       fastPolicy(),
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	out := result.Outcomes["orders"]
	assert.Equal(t, ResultSucceeded, out.Result)
	assert.Equal(t, "us-east-1", out.SourceRegion)
	assert.Equal(t, "us-west-2", out.TargetRegion)
	assert.Equal(t, cluster.StatusAvailable, out.Status)
	assert.True(t, out.CommandIssued)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 1, m.FailoverCalls("orders"))
	assert.Equal(t, 3, m.DescribeCalls("orders"))
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, KindFailover, result.Kind)
	assert.True(t, result.AllSucceeded())

	events := log.forCluster("orders")
	require.Len(t, events, 2)
	assert.Equal(t, PhaseInitiated, events[0].Phase)
	assert.Equal(t, "initiated", events[0].Status())
	assert.Equal(t, PhaseFinished, events[1].Phase)
	assert.Equal(t, "succeeded", events[1].Status())
	assert.Equal(t, result.RunID, events[1].RunID)
}

func TestFailoverAll_OneOutcomePerIdentifier(t *testing.T) {
	m := controlplane.NewMemory()
	m.Add(twoRegion("a"))
	m.Add(twoRegion("b"))
	orch := New(m)

	result, err := orch.FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"b", "a", "ghost", "a", "b"},
		TargetRegion: "us-west-2",
		Policy:       fastPolicy(),
	})

	require.NoError(t, err)
	assert.Equal(t, []cluster.Identifier{"a", "b", "ghost"}, result.Identifiers())
	assert.Equal(t, ResultNotFound, result.Outcomes["ghost"].Result)
	assert.False(t, result.Outcomes["ghost"].CommandIssued)
	assert.Equal(t, 1, m.FailoverCalls("a"), "duplicates collapse to one command")
	assert.Equal(t, 1, m.FailoverCalls("b"))
	assert.Equal(t, 1, m.ListCalls(), "one inventory snapshot per call")
	assert.Equal(t, map[Result]int{ResultSucceeded: 2, ResultNotFound: 1}, result.Counts())
	assert.False(t, result.AllSucceeded())
}

func TestFailoverAll_NotFoundNeverIssues(t *testing.T) {
	ctrl := gomock.NewController(t)
	cp := mocks.NewMockControlPlane(ctrl)

	cp.EXPECT().ListGlobalClusters(gomock.Any()).Return([]cluster.Descriptor{
		{Identifier: "orders", Status: cluster.StatusAvailable, CurrentPrimaryRegion: cluster.UnknownRegion},
	}, nil).Times(1)
	cp.EXPECT().RequestFailover(gomock.Any(), cluster.Identifier("ghost"), gomock.Any()).Times(0)
	cp.EXPECT().DescribeCluster(gomock.Any(), cluster.Identifier("ghost")).Times(0)
	cp.EXPECT().RequestFailover(gomock.Any(), cluster.Identifier("orders"), "eu-west-1").Return(nil).Times(1)
	cp.EXPECT().DescribeCluster(gomock.Any(), cluster.Identifier("orders")).Return(cluster.Descriptor{
		Identifier: "orders", Status: cluster.StatusAvailable, CurrentPrimaryRegion: cluster.UnknownRegion,
	}, nil).Times(1)

	orch := New(cp)
	result, err := orch.FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"ghost", "orders"},
		TargetRegion: "eu-west-1",
		Policy:       fastPolicy(),
	})

	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, result.Outcomes["ghost"].Result)
	assert.Equal(t, ResultSucceeded, result.Outcomes["orders"].Result)
}

func TestFailoverAll_CommandRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	cp := mocks.NewMockControlPlane(ctrl)

	rejected := &controlplane.CommandRejectedError{Cluster: "orders", Code: "InvalidGlobalClusterStateFault", Message: "global cluster is busy"}
	cp.EXPECT().ListGlobalClusters(gomock.Any()).Return([]cluster.Descriptor{twoRegion("orders")}, nil)
	cp.EXPECT().RequestFailover(gomock.Any(), cluster.Identifier("orders"), "us-west-2").Return(rejected).Times(1)
	cp.EXPECT().DescribeCluster(gomock.Any(), gomock.Any()).Times(0)

	result, err := New(cp).FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"orders"},
		TargetRegion: "us-west-2",
		Policy:       fastPolicy(),
	})

	require.NoError(t, err)
	out := result.Outcomes["orders"]
	assert.Equal(t, ResultFailed, out.Result)
	assert.Contains(t, out.Reason, "global cluster is busy")
	assert.False(t, out.CommandIssued)
	assert.Zero(t, out.Polls)
}

func TestFailoverAll_TerminalOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		steps  []controlplane.Step
		policy *Policy
		result Result
		reason string
	}{
		{
			name:   "unavailable status fails",
			steps:  controlplane.StatusSteps(cluster.StatusFailingOver, cluster.StatusUnavailable),
			policy: fastPolicy(),
			result: ResultFailed,
			reason: "unavailable",
		},
		{
			name:   "cluster deleted while polling",
			steps:  []controlplane.Step{{Status: cluster.StatusFailingOver}, {Gone: true}},
			policy: fastPolicy(),
			result: ResultFailed,
			reason: "cluster no longer present",
		},
		{
			name:   "transport errors at the limit fail",
			steps:  []controlplane.Step{{Err: transportErr()}, {Err: transportErr()}, {Err: transportErr()}},
			policy: fastPolicy(),
			result: ResultFailed,
			reason: "connection reset",
		},
		{
			name:   "transport errors below the limit are absorbed",
			steps:  []controlplane.Step{{Err: transportErr()}, {Err: transportErr()}, {Status: cluster.StatusAvailable}},
			policy: fastPolicy(),
			result: ResultSucceeded,
		},
		{
			name:   "no terminal status before the deadline",
			steps:  controlplane.StatusSteps(repeat(cluster.StatusFailingOver, 1000)...),
			policy: &Policy{PollInterval: 5 * time.Millisecond, MaxPollDeadline: 40 * time.Millisecond},
			result: ResultTimedOut,
			reason: "failing-over",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := controlplane.NewMemory()
			m.Add(cluster.Descriptor{Identifier: "orders"})
			m.Script("orders", tt.steps...)

			result, err := New(m).FailoverAll(context.Background(), Request{
				Identifiers:  []cluster.Identifier{"orders"},
				TargetRegion: "us-west-2",
				Policy:       tt.policy,
			})

			require.NoError(t, err)
			out := result.Outcomes["orders"]
			assert.Equal(t, tt.result, out.Result)
			if tt.reason != "" {
				assert.Contains(t, out.Reason, tt.reason)
			}
			assert.Equal(t, 1, m.FailoverCalls("orders"), "exactly one command")
		})
	}
}

func repeat(s cluster.Status, n int) []cluster.Status {
	out := make([]cluster.Status, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// mixedPlane holds c1..c4 with different fates; c5 is absent
func mixedPlane() *controlplane.Memory {
	m := controlplane.NewMemory()
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		m.Add(cluster.Descriptor{Identifier: cluster.Identifier(id)})
	}
	m.Script("c1", controlplane.StatusSteps(cluster.StatusFailingOver, cluster.StatusAvailable)...)
	m.Script("c2", controlplane.StatusSteps(cluster.StatusModifying, cluster.StatusUnavailable)...)
	m.Script("c3", controlplane.Step{Err: transportErr()}, controlplane.Step{Err: transportErr()}, controlplane.Step{Err: transportErr()})
	m.FailFailover("c4", &controlplane.CommandRejectedError{Cluster: "c4", Message: "not allowed"})
	return m
}

func TestFailoverAll_ConcurrencyDoesNotChangeOutcomes(t *testing.T) {
	ids := []cluster.Identifier{"c1", "c2", "c3", "c4", "c5"}

	run := func(parallelism int) *BatchResult {
		p := fastPolicy()
		p.Parallelism = parallelism
		result, err := New(mixedPlane()).FailoverAll(context.Background(), Request{
			Identifiers:  ids,
			TargetRegion: "us-west-2",
			Policy:       p,
		})
		require.NoError(t, err)
		return result
	}

	sequential := run(1)
	concurrent := run(2)

	require.Len(t, concurrent.Outcomes, len(ids))
	for _, id := range ids {
		assert.Equal(t, sequential.Outcomes[id].Result, concurrent.Outcomes[id].Result, id)
		assert.Equal(t, sequential.Outcomes[id].Reason, concurrent.Outcomes[id].Reason, id)
	}
	assert.Equal(t, ResultSucceeded, concurrent.Outcomes["c1"].Result)
	assert.Equal(t, ResultFailed, concurrent.Outcomes["c2"].Result)
	assert.Equal(t, ResultFailed, concurrent.Outcomes["c3"].Result)
	assert.Equal(t, ResultFailed, concurrent.Outcomes["c4"].Result)
	assert.Equal(t, ResultNotFound, concurrent.Outcomes["c5"].Result)
}

// gate counts concurrent failover requests and holds each one briefly
type gate struct {
	controlplane.ControlPlane
	mu      sync.Mutex
	current int
	max     int
}

func (g *gate) RequestFailover(ctx context.Context, id cluster.Identifier, region string) error {
	g.mu.Lock()
	g.current++
	if g.current > g.max {
		g.max = g.current
	}
	g.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()
	return g.ControlPlane.RequestFailover(ctx, id, region)
}

func TestFailoverAll_ParallelismBound(t *testing.T) {
	m := controlplane.NewMemory()
	m.SetConvergeAfter(0)
	ids := []cluster.Identifier{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		m.Add(cluster.Descriptor{Identifier: id})
	}
	g := &gate{ControlPlane: m}
	p := fastPolicy()
	p.Parallelism = 2

	result, err := New(g).FailoverAll(context.Background(), Request{Identifiers: ids, TargetRegion: "us-west-2", Policy: p})

	require.NoError(t, err)
	assert.True(t, result.AllSucceeded())
	assert.LessOrEqual(t, g.max, 2)
	assert.GreaterOrEqual(t, g.max, 1)
}

func TestFailoverAll_Cancellation(t *testing.T) {
	m := controlplane.NewMemory()
	m.SetConvergeAfter(1_000_000)
	m.Add(cluster.Descriptor{Identifier: "done"})
	m.Add(cluster.Descriptor{Identifier: "broken"})
	m.Add(cluster.Descriptor{Identifier: "stuck"})
	m.Script("done", controlplane.StatusSteps(cluster.StatusAvailable)...)
	m.Script("broken", controlplane.StatusSteps(cluster.StatusUnavailable)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		result *BatchResult
		err    error
	}
	finished := make(chan runResult, 1)
	go func() {
		p := fastPolicy()
		p.MaxPollDeadline = time.Minute
		result, err := New(m).FailoverAll(ctx, Request{
			Identifiers:  []cluster.Identifier{"done", "broken", "stuck"},
			TargetRegion: "us-west-2",
			Policy:       p,
		})
		finished <- runResult{result, err}
	}()

	require.Eventually(t, func() bool { return m.DescribeCalls("stuck") >= 3 }, 5*time.Second, time.Millisecond)
	cancel()

	var got runResult
	select {
	case got = <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestration did not return after cancellation")
	}

	require.NoError(t, got.err)
	require.Len(t, got.result.Outcomes, 3)
	assert.Equal(t, ResultSucceeded, got.result.Outcomes["done"].Result)
	assert.Equal(t, ResultFailed, got.result.Outcomes["broken"].Result)
	stuck := got.result.Outcomes["stuck"]
	assert.Equal(t, ResultCancelled, stuck.Result)
	assert.True(t, stuck.CommandIssued)
	assert.Equal(t, ErrCancelled.Error(), stuck.Reason)
}

func TestFailoverAll_CancelledBeforeStartIssuesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := gomock.NewController(t)
	cp := mocks.NewMockControlPlane(ctrl)
	cp.EXPECT().ListGlobalClusters(gomock.Any()).Return([]cluster.Descriptor{{Identifier: "orders"}}, nil).AnyTimes()
	cp.EXPECT().RequestFailover(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	result, err := New(cp).FailoverAll(ctx, Request{Identifiers: []cluster.Identifier{"orders"}, TargetRegion: "us-west-2", Policy: fastPolicy()})

	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, result.Outcomes["orders"].Result)
	assert.False(t, result.Outcomes["orders"].CommandIssued)
}

func TestFailoverAll_FailFast(t *testing.T) {
	t.Run("first failure cancels the rest", func(t *testing.T) {
		m := controlplane.NewMemory()
		for _, id := range []cluster.Identifier{"bad", "x", "y"} {
			m.Add(cluster.Descriptor{Identifier: id})
		}
		m.Script("bad", controlplane.StatusSteps(cluster.StatusUnavailable)...)
		p := fastPolicy()
		p.Parallelism = 1

		result, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"bad", "x", "y"},
			TargetRegion: "us-west-2",
			FailFast:     true,
			Policy:       p,
		})

		require.NoError(t, err)
		require.Len(t, result.Outcomes, 3)
		assert.Equal(t, ResultFailed, result.Outcomes["bad"].Result)
		for _, id := range []cluster.Identifier{"x", "y"} {
			assert.Equal(t, ResultCancelled, result.Outcomes[id].Result, id)
			assert.Contains(t, result.Outcomes[id].Reason, "bad")
			assert.Zero(t, m.FailoverCalls(id), "no command for %s", id)
		}
	})

	t.Run("missing cluster aborts before any command", func(t *testing.T) {
		m := controlplane.NewMemory()
		m.Add(cluster.Descriptor{Identifier: "orders"})

		result, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"orders", "ghost"},
			TargetRegion: "us-west-2",
			FailFast:     true,
			Policy:       fastPolicy(),
		})

		require.NoError(t, err)
		assert.Equal(t, ResultNotFound, result.Outcomes["ghost"].Result)
		assert.Equal(t, ResultCancelled, result.Outcomes["orders"].Result)
		assert.Zero(t, m.FailoverCalls("orders"))
	})

	t.Run("without fail-fast siblings continue", func(t *testing.T) {
		m := controlplane.NewMemory()
		m.Add(cluster.Descriptor{Identifier: "bad"})
		m.Add(cluster.Descriptor{Identifier: "good"})
		m.Script("bad", controlplane.StatusSteps(cluster.StatusUnavailable)...)
		m.Script("good", controlplane.StatusSteps(cluster.StatusFailingOver, cluster.StatusAvailable)...)
		p := fastPolicy()
		p.Parallelism = 1

		result, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"bad", "good"},
			TargetRegion: "us-west-2",
			Policy:       p,
		})

		require.NoError(t, err)
		assert.Equal(t, ResultFailed, result.Outcomes["bad"].Result)
		assert.Equal(t, ResultSucceeded, result.Outcomes["good"].Result)
	})
}

func TestFailoverAll_Inventory(t *testing.T) {
	t.Run("transient list failures are retried", func(t *testing.T) {
		m := controlplane.NewMemory()
		m.Add(cluster.Descriptor{Identifier: "orders"})
		m.FailList(transportErr(), transportErr())

		result, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"orders"},
			TargetRegion: "us-west-2",
			Policy:       fastPolicy(),
		})

		require.NoError(t, err)
		assert.Equal(t, ResultSucceeded, result.Outcomes["orders"].Result)
		assert.Equal(t, 3, m.ListCalls())
	})

	t.Run("unreadable inventory fails the call", func(t *testing.T) {
		m := controlplane.NewMemory()
		m.Add(cluster.Descriptor{Identifier: "orders"})
		m.FailList(transportErr(), transportErr(), transportErr())

		result, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"orders"},
			TargetRegion: "us-west-2",
			Policy:       fastPolicy(),
		})

		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, controlplane.IsTransport(err))
		assert.Equal(t, 3, m.ListCalls())
		assert.Zero(t, m.FailoverCalls("orders"))
	})

	t.Run("non-transport list errors are not retried", func(t *testing.T) {
		m := controlplane.NewMemory()
		m.FailList(errors.New("access denied"))

		_, err := New(m).FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"orders"},
			TargetRegion: "us-west-2",
			Policy:       fastPolicy(),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
		assert.Equal(t, 1, m.ListCalls())
	})
}

func TestFailoverAll_Validation(t *testing.T) {
	m := controlplane.NewMemory()
	orch := New(m)

	_, err := orch.FailoverAll(context.Background(), Request{Identifiers: []cluster.Identifier{"a"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = orch.FailoverAll(context.Background(), Request{Identifiers: []cluster.Identifier{"a", " "}, TargetRegion: "us-west-2"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = orch.FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"a"},
		TargetRegion: "us-west-2",
		Policy:       &Policy{MaxPollDeadline: -time.Second},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	result, err := orch.FailoverAll(context.Background(), Request{TargetRegion: "us-west-2"})
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.Zero(t, m.ListCalls())
}

func TestTopologies(t *testing.T) {
	m := controlplane.NewMemory()
	m.Add(twoRegion("orders"))
	orch := New(m, WithPolicy(*fastPolicy()))

	list, err := orch.ListTopologies(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Flows, 1)
	assert.Equal(t, "us-east-1", list[0].Flows[0].SourceRegion)
	assert.Equal(t, "us-west-2", list[0].Flows[0].TargetRegion)

	topo, err := orch.DescribeTopology(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", topo.CurrentPrimaryRegion)

	_, err = orch.DescribeTopology(context.Background(), "ghost")
	assert.ErrorIs(t, err, controlplane.ErrClusterNotFound)
}

func TestFailoverAll_StaleAvailableReadKeepsPolling(t *testing.T) {
	m := controlplane.NewMemory()
	m.SetConvergeAfter(1_000_000)
	m.Add(twoRegion("orders"))
	m.Script("orders", controlplane.StatusSteps(cluster.StatusAvailable)...)
	stale := &staleFirstRead{Memory: m}

	result, err := New(stale).FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"orders"},
		TargetRegion: "us-west-2",
		Policy:       fastPolicy(),
	})

	require.NoError(t, err)
	out := result.Outcomes["orders"]
	assert.Equal(t, ResultSucceeded, out.Result, out.Reason)
	assert.Equal(t, 2, out.Polls)
	assert.Equal(t, 1, m.FailoverCalls("orders"))
}

func TestFailoverAll_PrimaryNeverMovesTimesOut(t *testing.T) {
	m := controlplane.NewMemory()
	m.Add(twoRegion("orders"))
	stale := &neverPromotes{Memory: m}
	p := fastPolicy()
	p.MaxPollDeadline = 30 * time.Millisecond

	result, err := New(stale).FailoverAll(context.Background(), Request{
		Identifiers:  []cluster.Identifier{"orders"},
		TargetRegion: "us-west-2",
		Policy:       p,
	})

	require.NoError(t, err)
	out := result.Outcomes["orders"]
	assert.Equal(t, ResultTimedOut, out.Result)
	assert.Equal(t, "cluster available but primary still in us-east-1 after 30ms", out.Reason)
	assert.Greater(t, out.Polls, 1)
}

// neverPromotes accepts failovers but keeps reporting the old primary
type neverPromotes struct {
	*controlplane.Memory
}

func (n *neverPromotes) RequestFailover(context.Context, cluster.Identifier, string) error {
	return nil
}

func TestFailoverAll_SlowObserverDoesNotStallSequences(t *testing.T) {
	// Arrange
	m := controlplane.NewMemory()
	m.SetConvergeAfter(1_000_000)
	ids := []cluster.Identifier{"a", "b", "c", "d"}
	for _, id := range ids {
		m.Add(twoRegion(string(id)))
	}
	release := make(chan struct{})
	log := &eventLog{}
	slow := ObserverFunc(func(ctx context.Context, e Event) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		log.Observe(ctx, e)
	})
	orch := New(m, WithObserver(slow), WithObserverTimeout(time.Minute))

	p := fastPolicy()
	p.Parallelism = 2
	p.PollInterval = 5 * time.Millisecond
	p.MaxPollDeadline = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	// Act
	start := time.Now()
	result, err := orch.FailoverAll(ctx, Request{Identifiers: ids, TargetRegion: "us-west-2", Policy: p})
	elapsed := time.Since(start)

	// Assert
	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	require.Len(t, result.Outcomes, 4)
	issued := 0
	for _, id := range ids {
		out := result.Outcomes[id]
		assert.Equal(t, ResultCancelled, out.Result, id)
		if out.CommandIssued {
			issued++
			assert.GreaterOrEqual(t, out.Polls, 1, "%s polled before the cancel", id)
		}
	}
	assert.Equal(t, 2, issued)

	close(release)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	require.NoError(t, orch.Close(closeCtx))
	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Len(t, log.events, issued+len(ids))
}

func TestFailoverAll_DeadlineStartsAtAcceptance(t *testing.T) {
	m := controlplane.NewMemory()
	m.SetConvergeAfter(1_000_000)
	m.Add(twoRegion("orders"))
	release := make(chan struct{})
	defer close(release)
	blocked := ObserverFunc(func(ctx context.Context, _ Event) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	orch := New(m, WithObserver(blocked), WithObserverTimeout(time.Minute))

	p := fastPolicy()
	p.PollInterval = 5 * time.Millisecond
	p.MaxPollDeadline = 50 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	result, err := orch.FailoverAll(ctx, Request{Identifiers: []cluster.Identifier{"orders"}, TargetRegion: "us-west-2", Policy: p})

	require.NoError(t, err)
	out := result.Outcomes["orders"]
	assert.Equal(t, ResultTimedOut, out.Result)
	assert.Less(t, out.Duration, 400*time.Millisecond)
	assert.Greater(t, out.Polls, 1)
}

// crashingPlane panics when asked to fail over
type crashingPlane struct {
	*controlplane.Memory
}

func (c *crashingPlane) RequestFailover(context.Context, cluster.Identifier, string) error {
	panic("boom")
}

func TestFailoverAll_SequencePanicReachesCaller(t *testing.T) {
	m := controlplane.NewMemory()
	m.Add(twoRegion("orders"))
	orch := New(&crashingPlane{Memory: m})

	assert.PanicsWithError(t, "sequence for orders panicked: boom", func() {
		_, _ = orch.FailoverAll(context.Background(), Request{
			Identifiers:  []cluster.Identifier{"orders"},
			TargetRegion: "us-west-2",
			Policy:       fastPolicy(),
		})
	})
}
