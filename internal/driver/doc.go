// Package driver implements the driver-side orchestrator: a Cluster
// that launches short-lived network-addressable servers across the
// partitions of a dataset, discovers where each one landed, and
// collects optional result payloads when they shut down.
//
// # Lifecycle
//
// A Cluster moves through a small state machine:
//
//	NEW ──start──▶ RUNNING ──stop──▶ STOPPED ──start──▶ RUNNING ─▶ …
//	                  │                                    │
//	                  └───────── (STOPPING, transient) ◀───┘
//
// Start is valid in NEW or STOPPED and opens a fresh session: a new
// session token, a new coordinator with an empty registration table,
// and a new executor submission. Registrations and results from a
// previous session are discarded, never reused. Stop is valid only in
// RUNNING; it broadcasts shutdown, tolerates and reports partial
// failures, and leaves the cluster restartable.
//
// # Concurrency
//
// A RUNNING session keeps two concurrently live legs: the
// coordinator's accept loop, and the executor submission whose
// partitions register as they come up. Neither blocks the other: a
// slow shutdown broadcast never stalls a relaunching partition's
// registration, and vice versa. Stop coordinates both through the
// session context: cancellation tells abandoned workers to wind down,
// and a bounded grace period caps how long Stop waits for the
// submission to resolve.
//
// # Results
//
// With WithCaptureResults, the payload each partition server produces
// at shutdown is materialized through the executor's result handle and
// exposed by Results. The handle is valid until the next Start.
package driver
