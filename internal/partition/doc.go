// Package partition implements the worker-side contract every launched
// partition server must honor: register on startup, serve until told to
// stop, optionally produce a result payload on exit.
//
// # Contract
//
// A partition server is launched by the partition executor, once per
// partition, with at-least-once semantics. Run drives the full
// lifecycle of one instance:
//
//  1. Bind a listener (ephemeral port unless configured).
//  2. Init the Server with the partition's row iterator and config.
//  3. Install the control routes (/control/shutdown, /control/ping,
//     /health) and the Server's app routes under /app.
//  4. Register (partition, host, port) with the coordinator, retrying
//     to cover coordinator startup and transient failures.
//  5. Serve until /control/shutdown arrives or the context is
//     canceled.
//  6. Drain in-flight requests, call Result exactly once, and return
//     the optional payload.
//
// If the instance's process dies instead, recovery is entirely the
// executor's: it relaunches the partition function, and the fresh
// instance re-registers under the same index from wherever it landed.
// Nothing here retries launches or supervises peers.
//
// # Isolation
//
// Each instance serves on its own listener and owns its partition's
// state exclusively. Partitions share no memory; the only cross-
// partition path is indirect, through the coordinator for discovery or
// through clients calling partition endpoints directly.
//
// # Built-in Server
//
// KVServer is the concrete built-in variant: it loads "key=value" rows
// into an in-memory MemoryStore, serves them under /app/store, and
// reports store statistics as its shutdown payload. Custom servers
// implement the Server interface, usually embedding Base for the
// optional hooks.
package partition
