package coordinator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the coordinator's Prometheus instruments. Each
// coordinator owns a private registry so repeated start/stop cycles in
// one process never collide on metric registration.
type metrics struct {
	handler http.Handler

	registrations   prometheus.Counter
	replacements    prometheus.Counter
	registered      prometheus.Gauge
	shutdownsOK     prometheus.Counter
	shutdownsFailed prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partgrid",
			Subsystem: "coordinator",
			Name:      "registrations_total",
			Help:      "Total registration requests accepted.",
		}),
		replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partgrid",
			Subsystem: "coordinator",
			Name:      "placement_changes_total",
			Help:      "Registrations that replaced an existing entry with a new host/port.",
		}),
		registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partgrid",
			Subsystem: "coordinator",
			Name:      "registered_partitions",
			Help:      "Partitions currently present in the registration table.",
		}),
		shutdownsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partgrid",
			Subsystem: "coordinator",
			Name:      "host_shutdowns_total",
			Help:      "Partition servers that acknowledged a shutdown request.",
		}),
		shutdownsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partgrid",
			Subsystem: "coordinator",
			Name:      "host_shutdown_failures_total",
			Help:      "Shutdown requests that failed or timed out.",
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.registrations,
		m.replacements,
		m.registered,
		m.shutdownsOK,
		m.shutdownsFailed,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return m
}
