// Package metrics exposes Prometheus metrics for connections, coordinator
// outcomes and geo lookups.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/roomchat-server/internal/core"
)

// Collector records server metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	authFailures  prometheus.Counter
	operations    *prometheus.CounterVec
	stepFailures  *prometheus.CounterVec
	droppedEvents prometheus.Counter
	rateLimited   prometheus.Counter
	evictions     prometheus.Counter
	geoLatency    *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics plus the Go
// and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomchat_ws_connections",
			Help: "Currently open real-time connections.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_ws_auth_failures_total",
			Help: "Connections rejected because of an invalid session token.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_operations_total",
			Help: "Completed coordinator operations by op.",
		}, []string{"op"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomchat_step_failures_total",
			Help: "Failed side effects by op and step.",
		}, []string{"op", "step"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_dropped_events_total",
			Help: "Events not delivered to slow consumers.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_rate_limited_messages_total",
			Help: "Inbound messages dropped by the per-connection rate limiter.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomchat_slow_consumer_evictions_total",
			Help: "Connections closed because their event queue overflowed.",
		}),
		geoLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomchat_geo_lookup_seconds",
			Help:    "Latency of IP location lookups.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.connections,
		c.authFailures,
		c.operations,
		c.stepFailures,
		c.droppedEvents,
		c.rateLimited,
		c.evictions,
		c.geoLatency,
	)
	return c
}

// ObserveOutcome implements core.Observer.
func (c *Collector) ObserveOutcome(out core.Outcome) {
	op := string(out.Op)
	c.operations.WithLabelValues(op).Inc()
	for _, s := range out.Steps {
		if s.Err != nil {
			c.stepFailures.WithLabelValues(op, string(s.Step)).Inc()
		}
	}
	if out.Dropped > 0 {
		c.droppedEvents.Add(float64(out.Dropped))
	}
}

// RecordGeoLookup implements geo.Observer.
func (c *Collector) RecordGeoLookup(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.geoLatency.WithLabelValues(result).Observe(d.Seconds())
}

// ConnectionOpened increments the open connection gauge.
func (c *Collector) ConnectionOpened() { c.connections.Inc() }

// ConnectionClosed decrements the open connection gauge.
func (c *Collector) ConnectionClosed() { c.connections.Dec() }

// AuthFailed counts a rejected handshake.
func (c *Collector) AuthFailed() { c.authFailures.Inc() }

// RateLimited counts a dropped inbound message.
func (c *Collector) RateLimited() { c.rateLimited.Inc() }

// SlowConsumerEvicted counts a connection dropped for a full event queue.
func (c *Collector) SlowConsumerEvicted() { c.evictions.Inc() }

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the Prometheus scrape handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
