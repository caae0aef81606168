// Package coordinator implements the driver-side control plane for a
// partgrid cluster session: the registration table that tracks where
// each partition server landed, the HTTP service partition servers
// register with, and the broadcast-shutdown primitive the driver uses
// to terminate a session.
//
// # Overview
//
// The underlying partition executor hides placement: a per-partition
// function is shipped to the cluster, runs somewhere, and may be
// relaunched somewhere else after a failure. The coordinator reopens
// that visibility. Every partition server, once it is bound and ready,
// posts its (partition, host, port) triple to the coordinator; clients
// then read a snapshot of the table to talk to partitions directly.
//
// # Architecture
//
//	┌────────────────────────────────────────┐
//	│             COORDINATOR                │
//	├────────────────────────────────────────┤
//	│                                        │
//	│  ┌──────────────────────────────────┐  │
//	│  │   Registry                       │  │
//	│  │   - partition → (host, port)     │  │
//	│  │   - concurrent, last-write-wins  │  │
//	│  └──────────────────────────────────┘  │
//	│                                        │
//	│  ┌──────────────────────────────────┐  │
//	│  │   HTTP surface                   │  │
//	│  │   - POST /register, /deregister  │  │
//	│  │   - GET  /hosts, /status         │  │
//	│  │   - GET  /health, /metrics       │  │
//	│  └──────────────────────────────────┘  │
//	│                                        │
//	│  ┌──────────────────────────────────┐  │
//	│  │   Shutdown broadcast             │  │
//	│  │   - parallel fan-out             │  │
//	│  │   - bounded per-host timeout     │  │
//	│  └──────────────────────────────────┘  │
//	│                                        │
//	│  ┌──────────────────────────────────┐  │
//	│  │   Pinger (optional)              │  │
//	│  │   - periodic /control/ping sweep │  │
//	│  │   - observational only           │  │
//	│  └──────────────────────────────────┘  │
//	│                                        │
//	└────────────────────────────────────────┘
//
// # Registration Semantics
//
// Registration traffic is concurrent, unordered, and at-least-once.
// The executor gives no arrival-order guarantee, and a relaunched
// partition re-registers under the same index from a new host/port.
// The registry therefore upserts: a later registration for an index
// replaces the earlier one, and a repeat registration is idempotent.
// A transient window with two live instances for one index is accepted;
// the table simply reflects whichever registered last.
//
// Only malformed input is rejected (negative index, empty host, port
// out of range), with a synchronous 400 that affects no other
// partition. When a token is configured, register, deregister, and
// shutdown requests missing it are rejected with 403, which keeps
// servers from a previous or foreign session out of the table.
//
// # Shutdown Broadcast
//
// ShutdownAll snapshots the table and posts /control/shutdown to every
// host in parallel. Each request is bounded by the configured per-host
// timeout; a host that fails to acknowledge is recorded as timed out
// and treated as already gone, never retried, and never allowed to
// stall the rest of the broadcast. Acknowledged hosts are removed from
// the table. The per-host outcomes are returned in aggregate so the
// caller can report partial shutdown without failing the operation.
//
// # Lifecycle
//
// The coordinator's listener is tied to the session: Start binds it and
// returns once registrations can be accepted, Stop drains it with a
// bounded context. A bind failure is surfaced synchronously from Start
// and leaves the coordinator stopped. The same instance can be started
// again, but a fresh session should build a fresh Coordinator so no
// registrations leak across sessions.
//
// # See Also
//
// Related packages:
//   - internal/cluster: wire types and HTTP helpers
//   - internal/partition: the worker-side contract
//   - internal/driver: the session state machine that owns a Coordinator
package coordinator
