package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_EvaluationTracking(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.EvaluationInc("beam", "value")
	wrapper.EvaluationInc("beam", "value")
	wrapper.EvaluationInc("beam", "gradient")

	if v := testutil.ToFloat64(metrics.Evaluations.WithLabelValues("beam", "value")); v != 2 {
		t.Errorf("Expected 2 value evaluations, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Evaluations.WithLabelValues("beam", "gradient")); v != 1 {
		t.Errorf("Expected 1 gradient evaluation, got %f", v)
	}

	wrapper.EvaluationErrorInc("beam", "hessian")
	if v := testutil.ToFloat64(metrics.EvaluationFailures.WithLabelValues("beam", "hessian")); v != 1 {
		t.Errorf("Expected 1 failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 0 {
		t.Errorf("Expected errors_total 0 for evaluation failures, got %f", v)
	}

	wrapper.EvaluationDuration("beam", "value", 3*time.Millisecond)
	if n := testutil.CollectAndCount(metrics.EvaluationLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	models := wrapper.ModelsLoaded()
	models.Set(3)
	if v := testutil.ToFloat64(metrics.ModelsLoaded); v != 3 {
		t.Errorf("Expected gauge value 3, got %f", v)
	}
	models.Add(-1)
	if v := testutil.ToFloat64(metrics.ModelsLoaded); v != 2 {
		t.Errorf("Expected gauge value 2 after add, got %f", v)
	}

	sessions := wrapper.StreamSessions()
	sessions.Add(1)
	sessions.Add(1)
	sessions.Add(-1)
	if v := testutil.ToFloat64(metrics.StreamSessions); v != 1 {
		t.Errorf("Expected 1 open session, got %f", v)
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.RegistryOperation("add").Inc()
	wrapper.RegistryOperation("add").Inc()
	wrapper.RegistryOperation("rollback").Inc()
	if v := testutil.ToFloat64(metrics.RegistryOperations.WithLabelValues("add")); v != 2 {
		t.Errorf("Expected 2 add operations, got %f", v)
	}

	wrapper.HTTPRequest("/predict", 200)
	wrapper.HTTPRequest("/predict", 400)
	wrapper.HTTPRequest("/predict", 200)
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "200")); v != 2 {
		t.Errorf("Expected 2 successful requests, got %f", v)
	}

	wrapper.ErrorsTotal().Inc()
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected errors_total 1, got %f", v)
	}

	wrapper.EvaluationLatency("value").Observe(0.01)
	if n := testutil.CollectAndCount(metrics.EvaluationLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewWithRegistry(registry)
}
