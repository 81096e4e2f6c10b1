// Package metrics holds the Prometheus collectors of the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Received  *prometheus.CounterVec   // by topic
	Dropped   *prometheus.CounterVec   // by reason
	Published *prometheus.CounterVec   // by kind
	Estimates *prometheus.CounterVec   // by step control class
	Duration  *prometheus.HistogramVec // by operation
	Writes    *prometheus.CounterVec   // by result
}

// New registers the collectors on a fresh registry for service.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		registry: reg,
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rootwater", Name: "messages_received_total",
			Help: "MQTT messages received.", ConstLabels: labels,
		}, []string{"topic"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rootwater", Name: "messages_dropped_total",
			Help: "Messages dropped before processing.", ConstLabels: labels,
		}, []string{"reason"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rootwater", Name: "events_published_total",
			Help: "Events published.", ConstLabels: labels,
		}, []string{"kind"}),
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rootwater", Name: "day_estimates_total",
			Help: "Daily RWU estimates by quality.", ConstLabels: labels,
		}, []string{"quality"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rootwater", Name: "operation_seconds",
			Help: "Duration of estimation and storage operations.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rootwater", Name: "influx_writes_total",
			Help: "Points handed to the Influx writer.", ConstLabels: labels,
		}, []string{"result"}),
	}
	reg.MustRegister(m.Received, m.Dropped, m.Published, m.Estimates, m.Duration, m.Writes,
		collectors.NewGoCollector())
	return m
}

// Quality classes the step control of a day.
func Quality(safe bool, skipped bool) string {
	switch {
	case skipped:
		return "skipped"
	case safe:
		return "safe"
	}
	return "rejected"
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
