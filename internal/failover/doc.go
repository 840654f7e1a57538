// Package failover drives disaster-recovery failover of multi-region global
// database clusters.
//
// # Overview
//
// For each requested cluster the orchestrator runs one sequence:
//   - resolve the identifier against a single inventory snapshot
//   - issue exactly one failover command towards the target region
//   - poll the cluster until it reports a terminal status or the deadline passes
//
// Sequences run concurrently, bounded by the policy's parallelism. A
// failure in one cluster never aborts another unless the caller asks for
// fail-fast. Every requested identifier ends with exactly one Outcome.
//
// # Outcomes
//
//	succeeded   available with the primary in the target region
//	not_found   absent from the inventory snapshot, no command issued
//	timed_out   no terminal status, or the primary still elsewhere, within MaxPollDeadline
//	failed      command rejected, unavailable status, cluster gone, a non-transport poll error or too many transport errors
//	cancelled   the caller's context ended, or a fail-fast sibling did not succeed
//
// # Quick Start
//
//	cp, _ := controlplane.NewRDSControlPlane(ctx, controlplane.RDSConfig{Region: "us-east-1"}, logger)
//	orch := failover.New(cp,
//		failover.WithLogger(logger),
//		failover.WithPolicy(failover.Policy{PollInterval: 10 * time.Second}),
//	)
//
//	result, err := orch.FailoverAll(ctx, failover.Request{
//		Identifiers:  []cluster.Identifier{"orders", "billing"},
//		TargetRegion: "us-west-2",
//	})
//	if err != nil {
//		// invalid request or inventory unreadable
//	}
//	for _, id := range result.Identifiers() {
//		fmt.Println(id, result.Outcomes[id].Result)
//	}
//
// # Observers
//
// Observers receive an initiated event when a command is accepted and a
// finished event per outcome. The history store, event publishers and
// metrics all hang off this hook. Events are delivered on a background
// goroutine, one observer call at a time and bounded by a timeout, so a slow
// sink never delays polling. FailoverAll waits for its events to be
// delivered unless the caller's context ends first; Close drains the rest.
// FailbackAll uses a History to send each
// cluster back to the region its last successful failover left.
package failover
