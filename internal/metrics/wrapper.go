package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper adapts Metrics to the small tracker interfaces of the
// model and server packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) EvaluationInc(model, kind string) {
	w.m.Evaluations.WithLabelValues(model, kind).Inc()
}

func (w *MetricsWrapper) EvaluationErrorInc(model, kind string) {
	w.m.EvaluationFailures.WithLabelValues(model, kind).Inc()
}

func (w *MetricsWrapper) EvaluationDuration(model, kind string, d time.Duration) {
	w.EvaluationLatency(kind).Observe(d.Seconds())
}

func (w *MetricsWrapper) ModelsLoaded() MetricsGauge {
	return &GaugeWrapper{w.m.ModelsLoaded}
}

func (w *MetricsWrapper) StreamSessions() MetricsGauge {
	return &GaugeWrapper{w.m.StreamSessions}
}

func (w *MetricsWrapper) RegistryOperation(op string) MetricsCounter {
	return &CounterWrapper{w.m.RegistryOperations.WithLabelValues(op)}
}

func (w *MetricsWrapper) HTTPRequest(path string, code int) {
	w.m.HTTPRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}

// ErrorsTotal counts the requests the model server answers with an error.
func (w *MetricsWrapper) ErrorsTotal() MetricsCounter {
	return &CounterWrapper{w.m.ErrorsTotal}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Observer
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}

// EvaluationLatency returns the latency histogram of one evaluation kind.
func (w *MetricsWrapper) EvaluationLatency(kind string) MetricsHistogram {
	return &HistogramWrapper{w.m.EvaluationLatency.WithLabelValues(kind)}
}
