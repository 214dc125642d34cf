// Package metrics exposes scheduler activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jobfire"

type Metrics struct {
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Conflicts         *prometheus.CounterVec
	Retries           *prometheus.CounterVec
	Running           prometheus.Gauge
	ArmedTimers       prometheus.Gauge
	StoreWriteRetries prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Finished executions by job type, terminal status and trigger source",
			},
			[]string{"job_type", "status", "source"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Handler wall time by job type",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"job_type"},
		),
		Conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_conflicts_total",
				Help:      "Fire requests refused because the job was already running",
			},
			[]string{"source"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry coordinator decisions",
			},
			[]string{"decision"},
		),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_executions",
			Help:      "Executions currently inside a handler",
		}),
		ArmedTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_timers",
			Help:      "Jobs with an armed fire timer",
		}),
		StoreWriteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_retries_total",
			Help:      "Retried terminal execution writes",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Executions, m.ExecutionDuration, m.Conflicts, m.Retries, m.Running, m.ArmedTimers, m.StoreWriteRetries)
	}
	return m
}

func (m *Metrics) ObserveExecution(jobType, status, source string, d time.Duration) {
	m.Executions.WithLabelValues(jobType, status, source).Inc()
	m.ExecutionDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) Conflict(source string) {
	m.Conflicts.WithLabelValues(source).Inc()
}

func (m *Metrics) RetryDecision(decision string) {
	m.Retries.WithLabelValues(decision).Inc()
}
