// Package metrics exports service and engine timings to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "territorycore"

// Recorder implements the Observe contract shared by the CRUD service and the
// aggregation engine.
type Recorder struct {
	registry   *prometheus.Registry
	durations  *prometheus.HistogramVec
	operations *prometheus.CounterVec
	lastPass   prometheus.Gauge
}

// NewRecorder registers the collectors on a fresh registry. An empty
// namespace uses DefaultNamespace.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations and engine passes.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations and engine passes by outcome.",
		}, []string{"operation", "status"}),
		lastPass: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful operation.",
		}),
	}
}

// Observe records one operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
		r.lastPass.SetToCurrentTime()
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.operations.WithLabelValues(operation, status).Inc()
}

// Registry exposes the registry for scraping or tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
