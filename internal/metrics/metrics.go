// Package metrics provides Prometheus metrics collection for the model server.
// It defines the evaluation, registry and transport metrics exposed via the
// Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the model server.
type Metrics struct {
	// Evaluation metrics
	Evaluations        *prometheus.CounterVec   // Evaluations per model and kind (value, gradient, hessian)
	EvaluationFailures *prometheus.CounterVec   // Failed evaluations per model and kind
	EvaluationLatency  *prometheus.HistogramVec // Evaluation latency per kind

	// Model metrics
	ModelsLoaded       prometheus.Gauge       // Number of models currently served
	RegistryOperations *prometheus.CounterVec // Registry operations per kind (add, rollback, delete)

	// Transport metrics
	HTTPRequests   *prometheus.CounterVec // HTTP requests per path and status code
	StreamSessions prometheus.Gauge       // Open websocket evaluation sessions

	// System metrics
	ErrorsTotal prometheus.Counter // Model server requests answered with an error
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otpmml_evaluations_total",
			Help: "Total number of model evaluations",
		}, []string{"model", "kind"}),
		EvaluationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otpmml_evaluation_failures_total",
			Help: "Total number of failed model evaluations",
		}, []string{"model", "kind"}),
		EvaluationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "otpmml_evaluation_latency_seconds",
			Help:    "Model evaluation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"kind"}),
		ModelsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "otpmml_models_loaded",
			Help: "Number of models currently served",
		}),
		RegistryOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otpmml_registry_operations_total",
			Help: "Total number of model registry operations",
		}, []string{"op"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otpmml_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "code"}),
		StreamSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "otpmml_stream_sessions",
			Help: "Number of open websocket evaluation sessions",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "otpmml_errors_total",
			Help: "Total number of model server requests answered with an error",
		}),
	}
}
