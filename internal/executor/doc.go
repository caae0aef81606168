// Package executor specifies the partition-executor collaborator: the
// distributed engine that, given a per-partition function, runs it once
// per partition, relaunches it on failure, and eventually materializes
// the per-partition return values.
//
// # Contract
//
// The rest of the system depends only on this interface and its
// documented guarantees:
//
//   - Submit is fire-and-forget: it returns once the work is launched,
//     not once it completes.
//   - Execution is at-least-once per partition, with no ordering
//     guarantee between partitions or attempts.
//   - A failed partition is relaunched by the executor itself. The
//     coordination layer performs no launch retries and no partition
//     supervision of its own; it only accepts whatever registrations
//     eventually arrive.
//   - The Handle resolves into one Result per partition once all
//     partitions complete, which is how a capture-enabled session
//     obtains its result collection.
//
// # Local Executor
//
// Local satisfies the contract in-process with one goroutine per
// partition, recovering panics and relaunching up to a configured
// budget. It stands in for a real distributed engine in tests, demos,
// and single-machine runs.
package executor
