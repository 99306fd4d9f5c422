package core

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder counts registry operations and their latency.
type PrometheusMetricsRecorder struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder creates the collectors and registers them with
// reg. A nil registerer leaves them unregistered.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "creaturecore",
				Subsystem: "registry",
				Name:      "transitions_total",
				Help:      "Registry transitions by operation and outcome.",
			},
			[]string{"operation", "success"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "creaturecore",
				Subsystem: "registry",
				Name:      "transition_duration_seconds",
				Help:      "Registry transition duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "success"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{rec.transitions, rec.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	label := strconv.FormatBool(success)
	r.transitions.WithLabelValues(operation, label).Inc()
	r.duration.WithLabelValues(operation, label).Observe(duration.Seconds())
}

// Collectors exposes the underlying collectors for tests and custom registries.
func (r *PrometheusMetricsRecorder) Collectors() (*prometheus.CounterVec, *prometheus.HistogramVec) {
	return r.transitions, r.duration
}
