package driver

import "time"

// Option configures optional Cluster behavior. Options are fixed for
// the lifetime of the Cluster and apply to every session it runs.
type Option func(*options)

type options struct {
	listen           string
	advertiseHost    string
	config           map[string]any
	shutdownTimeout  time.Duration
	gracePeriod      time.Duration
	pingInterval     time.Duration
	captureResults   bool
	awaitHosts       bool
	deregisterOnExit bool
}

func defaultOptions() options {
	return options{
		listen:          "127.0.0.1:0",
		shutdownTimeout: 5 * time.Second,
		gracePeriod:     10 * time.Second,
	}
}

// WithListen sets the coordinator's listen address. Port 0 picks an
// ephemeral port. Default: "127.0.0.1:0".
func WithListen(addr string) Option {
	return func(o *options) {
		o.listen = addr
	}
}

// WithAdvertiseHost overrides the host partition servers advertise to
// the coordinator, instead of the OS hostname. Useful when workers run
// on the driver machine and should be reached over loopback.
func WithAdvertiseHost(host string) Option {
	return func(o *options) {
		o.advertiseHost = host
	}
}

// WithCaptureResults enables collection of the per-partition result
// payloads produced at shutdown, retrievable through Results.
func WithCaptureResults() Option {
	return func(o *options) {
		o.captureResults = true
	}
}

// WithAwaitHosts makes Start block until every expected partition has
// registered with the coordinator.
func WithAwaitHosts() Option {
	return func(o *options) {
		o.awaitHosts = true
	}
}

// WithDeregisterOnExit makes a partition server that exits voluntarily
// (session cancellation rather than coordinator-driven shutdown) remove
// itself from the registration table on the way out.
func WithDeregisterOnExit() Option {
	return func(o *options) {
		o.deregisterOnExit = true
	}
}

// WithShutdownTimeout bounds each per-host request of the shutdown
// broadcast. Default: 5s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// WithGracePeriod bounds how long Stop waits for the executor
// submission to resolve after the shutdown broadcast. Default: 10s.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		o.gracePeriod = d
	}
}

// WithPingInterval enables the coordinator's periodic reachability
// sweep of registered hosts. Disabled by default.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		o.pingInterval = d
	}
}

// WithRuntimeConfig passes opaque configuration to every partition
// server's Init.
func WithRuntimeConfig(cfg map[string]any) Option {
	return func(o *options) {
		o.config = cfg
	}
}
