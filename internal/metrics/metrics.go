// Package metrics registers Prometheus instrumentation for the builder
// service. Collectors are package-level and registered on import, exposed by
// the server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replica_dispatches_total",
		Help: "Total number of workflow dispatches attempted",
	})
	DispatchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replica_dispatch_failures_total",
		Help: "Total number of workflow dispatches rejected upstream",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "replica_stream_sessions_active",
		Help: "Number of status streaming sessions currently open",
	})
	SessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replica_stream_sessions_total",
		Help: "Total number of status streaming sessions opened",
	})
	StatusPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replica_status_polls_total",
		Help: "Total number of run status polls performed",
	})
	ResolutionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replica_resolution_failures_total",
		Help: "Total number of sessions that exhausted the run resolution budget",
	})
)

func init() {
	prometheus.MustRegister(
		DispatchesTotal,
		DispatchFailuresTotal,
		SessionsActive,
		SessionsTotal,
		StatusPollsTotal,
		ResolutionFailuresTotal,
	)
}
