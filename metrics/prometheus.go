// Package metrics exports goftp pool and processor measurements to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/darshan-rambhia/goftp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goftp"

// poolMetrics is the Prometheus implementation of goftp.Metrics.
type poolMetrics struct {
	sessionsCreated   prometheus.Counter
	sessionsDestroyed *prometheus.CounterVec
	acquisitions      *prometheus.CounterVec
	acquireDuration   prometheus.Histogram
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	idleSessions      prometheus.Gauge
	inUseSessions     prometheus.Gauge
}

// NewPrometheus registers the goftp collectors on reg and returns a
// goftp.Metrics that feeds them. Registering twice on the same registry panics.
func NewPrometheus(reg prometheus.Registerer) goftp.Metrics {
	factory := promauto.With(reg)

	return &poolMetrics{
		sessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of FTP sessions opened by the pool",
			},
		),
		sessionsDestroyed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_destroyed_total",
				Help:      "Total number of FTP sessions closed by the pool, by reason",
			},
			[]string{"reason"},
		),
		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquisitions_total",
				Help:      "Total number of session acquisitions, by result",
			},
			[]string{"result"},
		),
		acquireDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "acquire_duration_seconds",
				Help:      "Time spent acquiring a session, including retries",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					5,     // 5s
					30,    // 30s
				},
			},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of processor operations, by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of processor operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		idleSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_idle_sessions",
				Help:      "Current number of idle sessions in the pool",
			},
		),
		inUseSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_in_use_sessions",
				Help:      "Current number of borrowed sessions",
			},
		),
	}
}

func (m *poolMetrics) SessionCreated() {
	m.sessionsCreated.Inc()
}

func (m *poolMetrics) SessionDestroyed(reason string) {
	m.sessionsDestroyed.WithLabelValues(reason).Inc()
}

func (m *poolMetrics) Acquired(d time.Duration, err error) {
	m.acquisitions.WithLabelValues(acquireResult(err)).Inc()
	m.acquireDuration.Observe(d.Seconds())
}

func (m *poolMetrics) PoolSize(idle, inUse int) {
	m.idleSessions.Set(float64(idle))
	m.inUseSessions.Set(float64(inUse))
}

func (m *poolMetrics) Operation(op string, d time.Duration, err error) {
	m.operations.WithLabelValues(op, operationStatus(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func acquireResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, goftp.ErrTimeout):
		return "timeout"
	case errors.Is(err, goftp.ErrPoolClosed):
		return "closed"
	case errors.Is(err, goftp.ErrPoolExhausted):
		return "exhausted"
	default:
		return "error"
	}
}

func operationStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, goftp.ErrNotFound):
		return "not_found"
	case errors.Is(err, goftp.ErrPoolExhausted), errors.Is(err, goftp.ErrTimeout):
		return "unavailable"
	default:
		return "error"
	}
}
