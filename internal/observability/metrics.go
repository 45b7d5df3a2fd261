// Package observability provides a centralized Prometheus metrics
// collector for the kernel's subsystems: the bus, the tool registry,
// the external tool protocol client, and the broker.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.BusPublishedCounter.WithLabelValues("topic.a").Inc()
//	metrics.RegistryInvokeDurationVec.WithLabelValues("echo").Observe(float64(time.Since(start).Milliseconds()))
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the kernel registers.
type Metrics struct {
	// BusPublishedCounter counts events published, by topic.
	BusPublishedCounter *prometheus.CounterVec
	// BusDeliveredCounter counts events delivered to a subscriber, by topic.
	BusDeliveredCounter *prometheus.CounterVec
	// BusDroppedCounter counts events dropped for a subscriber, by topic and qos.
	BusDroppedCounter *prometheus.CounterVec
	// BusBacklogGauge tracks pending events per topic.
	BusBacklogGauge *prometheus.GaugeVec

	// RegistryInvocationCounter counts tool invocations, by tool and status.
	RegistryInvocationCounter *prometheus.CounterVec
	// RegistryErrorCounter counts tool errors, by tool and error kind.
	RegistryErrorCounter *prometheus.CounterVec
	// RegistryTimeoutCounter counts tool timeouts, by tool.
	RegistryTimeoutCounter *prometheus.CounterVec
	// RegistryInvokeDurationVec measures invocation latency in milliseconds, by tool.
	RegistryInvokeDurationVec *prometheus.HistogramVec

	// MCPCallCounter counts external tool protocol calls, by server and status.
	MCPCallCounter *prometheus.CounterVec
	// MCPCallDurationVec measures external tool call latency in seconds, by server.
	MCPCallDurationVec *prometheus.HistogramVec
	// MCPConnectedGauge tracks whether a server is currently connected (0/1).
	MCPConnectedGauge *prometheus.GaugeVec

	// BrokerCacheHitCounter counts idempotency cache hits.
	BrokerCacheHitCounter prometheus.Counter
	// BrokerCacheMissCounter counts idempotency cache misses.
	BrokerCacheMissCounter prometheus.Counter
	// BrokerCacheSizeGauge tracks the current idempotency cache size.
	BrokerCacheSizeGauge prometheus.Gauge

	// AgentDropCounter counts events dropped by an agent at TTL exhaustion.
	AgentDropCounter *prometheus.CounterVec
	// AgentFailedCounter counts agents that transitioned to Failed.
	AgentFailedCounter *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics collector. Calling
// it twice in the same process panics (promauto registers against the
// default registry), matching the teacher's singleton usage pattern.
func NewMetrics() *Metrics {
	return &Metrics{
		BusPublishedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_bus_published_total",
				Help: "Total number of events published, by topic",
			},
			[]string{"topic"},
		),
		BusDeliveredCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_bus_delivered_total",
				Help: "Total number of events delivered to a subscriber, by topic",
			},
			[]string{"topic"},
		),
		BusDroppedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_bus_dropped_total",
				Help: "Total number of events dropped for a subscriber, by topic and qos",
			},
			[]string{"topic", "qos"},
		),
		BusBacklogGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loom_bus_backlog",
				Help: "Pending events per topic across all subscriptions",
			},
			[]string{"topic"},
		),

		RegistryInvocationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_registry_invocations_total",
				Help: "Total number of tool invocations, by tool and status",
			},
			[]string{"tool", "status"},
		),
		RegistryErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_registry_errors_total",
				Help: "Total number of tool errors, by tool and error kind",
			},
			[]string{"tool", "error"},
		),
		RegistryTimeoutCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_registry_timeouts_total",
				Help: "Total number of tool timeouts, by tool",
			},
			[]string{"tool"},
		),
		RegistryInvokeDurationVec: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_registry_invoke_latency_ms",
				Help:    "Tool invocation latency in milliseconds, by tool",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
			},
			[]string{"tool"},
		),

		MCPCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_mcp_calls_total",
				Help: "Total number of external tool protocol calls, by server and status",
			},
			[]string{"server", "status"},
		),
		MCPCallDurationVec: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_mcp_call_duration_seconds",
				Help:    "External tool call duration in seconds, by server",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"server"},
		),
		MCPConnectedGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loom_mcp_connected",
				Help: "Whether an external tool server is connected (1) or not (0)",
			},
			[]string{"server"},
		),

		BrokerCacheHitCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loom_broker_cache_hits_total",
				Help: "Total number of broker idempotency cache hits",
			},
		),
		BrokerCacheMissCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loom_broker_cache_misses_total",
				Help: "Total number of broker idempotency cache misses",
			},
		),
		BrokerCacheSizeGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "loom_broker_cache_size",
				Help: "Current number of entries in the broker idempotency cache",
			},
		),

		AgentDropCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_agent_dropped_events_total",
				Help: "Total number of events dropped by an agent at TTL exhaustion, by agent",
			},
			[]string{"agent"},
		),
		AgentFailedCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_agent_failures_total",
				Help: "Total number of agents that transitioned to Failed, by agent",
			},
			[]string{"agent"},
		),
	}
}
