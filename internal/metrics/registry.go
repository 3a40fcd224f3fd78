// Package metrics provides Prometheus metrics for the condition worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the service.
type Registry struct {
	// Cycle metrics
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	CyclePauses   *prometheus.CounterVec

	// Gateway metrics
	GatewayConnects       *prometheus.CounterVec
	GatewayConnectLatency prometheus.Histogram
	ConnectedGateways     prometheus.Gauge

	// Sensor metrics
	SensorReadErrors *prometheus.CounterVec
	SensorRetries    prometheus.Counter
	ParameterErrors  prometheus.Counter

	// Condition metrics
	ConditionTransitions *prometheus.CounterVec
	SnapshotRuns         prometheus.Counter
	DailyRuns            *prometheus.CounterVec

	// Persistence metrics
	PersistenceErrors prometheus.Counter
	LogHistoryRows    prometheus.Counter

	// Event metrics
	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered
// on the default registerer.
func NewRegistry() *Registry {
	return &Registry{
		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "polling",
			Name:      "cycles_total",
			Help:      "Total number of completed poll cycles",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worker",
			Subsystem: "polling",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CyclePauses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "polling",
			Name:      "cycle_pauses_total",
			Help:      "Cycles paused before polling, by reason",
		}, []string{"reason"}),

		GatewayConnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "gateway",
			Name:      "connects_total",
			Help:      "Gateway connection attempts by outcome",
		}, []string{"status"}),
		GatewayConnectLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worker",
			Subsystem: "gateway",
			Name:      "connect_latency_seconds",
			Help:      "Gateway connection establishment latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ConnectedGateways: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "worker",
			Subsystem: "gateway",
			Name:      "connected",
			Help:      "Number of currently connected gateways",
		}),

		SensorReadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "sensor",
			Name:      "read_errors_total",
			Help:      "Sensor reads that exhausted all retries",
		}, []string{"machine", "role"}),
		SensorRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "sensor",
			Name:      "retries_total",
			Help:      "Total sensor read retry attempts",
		}),
		ParameterErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "sensor",
			Name:      "parameter_errors_total",
			Help:      "Individual parameter read or parse failures",
		}),

		ConditionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "condition",
			Name:      "transitions_total",
			Help:      "Persisted condition transitions by new condition",
		}, []string{"condition"}),
		SnapshotRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "condition",
			Name:      "snapshot_runs_total",
			Help:      "Snapshot cron executions",
		}),
		DailyRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "daily",
			Name:      "runs_total",
			Help:      "Daily roll-up executions by outcome",
		}, []string{"status"}),

		PersistenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "persistence",
			Name:      "errors_total",
			Help:      "Failed persistence operations",
		}),
		LogHistoryRows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "persistence",
			Name:      "log_history_rows_total",
			Help:      "Log history rows written",
		}),

		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Condition events published to MQTT",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "worker",
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Condition events that failed to publish",
		}),
	}
}

// RecordGatewayConnect records a connection attempt outcome and latency.
func (r *Registry) RecordGatewayConnect(success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	r.GatewayConnects.WithLabelValues(status).Inc()
	r.GatewayConnectLatency.Observe(seconds)
}

// RecordCycle records a completed poll cycle.
func (r *Registry) RecordCycle(seconds float64) {
	r.CyclesTotal.Inc()
	r.CycleDuration.Observe(seconds)
}

// RecordCyclePause records a pre-cycle pause (license, config, machines).
func (r *Registry) RecordCyclePause(reason string) {
	r.CyclePauses.WithLabelValues(reason).Inc()
}

// RecordSensorReadError records a sensor read that exhausted retries.
func (r *Registry) RecordSensorReadError(machine, role string) {
	r.SensorReadErrors.WithLabelValues(machine, role).Inc()
}

// RecordSensorRetry records one retry attempt.
func (r *Registry) RecordSensorRetry() {
	r.SensorRetries.Inc()
}

// RecordParameterError records one per-parameter failure.
func (r *Registry) RecordParameterError() {
	r.ParameterErrors.Inc()
}

// RecordConditionTransition records a persisted transition.
func (r *Registry) RecordConditionTransition(condition string) {
	r.ConditionTransitions.WithLabelValues(condition).Inc()
}

// RecordDailyRun records a daily roll-up execution.
func (r *Registry) RecordDailyRun(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.DailyRuns.WithLabelValues(status).Inc()
}
