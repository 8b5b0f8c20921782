// Package metrics defines the prometheus collectors the gateway exports.
// Collectors are owned by a Metrics value registered against an explicit
// registry, so tests can build isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector used by the gateway.
type Metrics struct {
	registry *prometheus.Registry

	PoolHandlesCreated *prometheus.CounterVec
	PoolProbes         *prometheus.CounterVec
	PoolReinits        *prometheus.CounterVec
	BackendRequests    *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	BackendRetries     *prometheus.CounterVec
	LoginRedirects     prometheus.Counter
	TrackerLookups     *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PoolHandlesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pool_handles_created_total",
			Help: "Resource handles created by the pool manager.",
		}, []string{"kind"}),
		PoolProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pool_probes_total",
			Help: "Liveness probes by handle and result.",
		}, []string{"handle", "result"}),
		PoolReinits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_pool_reinitializations_total",
			Help: "Handles re-initialised after a failed probe.",
		}, []string{"handle"}),
		BackendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_backend_requests_total",
			Help: "Backend calls by method and outcome kind.",
		}, []string{"method", "outcome"}),
		BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_backend_request_seconds",
			Help:    "Backend call latency including transport retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		BackendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_backend_retries_total",
			Help: "Transport-level retries of backend calls.",
		}, []string{"method"}),
		LoginRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_login_region_redirects_total",
			Help: "Logins retried against the registered region.",
		}),
		TrackerLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_star_tracker_lookups_total",
			Help: "Star tracker set reads by relation and cache result.",
		}, []string{"relation", "result"}),
	}

	reg.MustRegister(
		m.PoolHandlesCreated,
		m.PoolProbes,
		m.PoolReinits,
		m.BackendRequests,
		m.BackendLatency,
		m.BackendRetries,
		m.LoginRedirects,
		m.TrackerLookups,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
