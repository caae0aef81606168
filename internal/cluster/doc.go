// Package cluster defines the control-plane wire contract shared by the
// coordinator and partition servers, plus small HTTP and network helpers
// used on both sides.
//
// # Wire Contract
//
// All control-plane traffic is JSON over HTTP:
//
//	POST /register    RegisterRequest  -> Ack
//	POST /deregister  DeregisterRequest -> Ack
//	GET  /hosts       -> HostsResponse
//	GET  /status      -> StatusResponse
//
// Worker-side control routes served by every partition server:
//
//	POST /control/shutdown -> Ack      (graceful termination)
//	GET  /control/ping     -> 200 OK   (reachability probe)
//	GET  /health           -> 200 OK
//
// The contract is deliberately transport-thin: a registration is a
// (partition, host, port) triple, a host snapshot is a map keyed by
// partition index, and a broadcast shutdown reports a per-host
// ShutdownResult. Registrations are transient; nothing here is ever
// persisted.
//
// # Helpers
//
// PostJSON and GetJSON wrap the shared http.Client with JSON
// encode/decode and non-2xx status handling. Hostname and FreePort
// support partition servers that bind ephemeral ports and advertise a
// reachable address.
package cluster
