// Package server exposes PMML models over HTTP: JSON endpoints for values,
// gradients and hessians, a websocket for row by row evaluation and the
// Prometheus metrics.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"otpmml/internal/function"
	"otpmml/internal/metrics"
	"otpmml/internal/nnet"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// MetricsTracker receives evaluation and transport events.
type MetricsTracker interface {
	nnet.MetricsTracker
	ModelsLoaded() metrics.MetricsGauge
	StreamSessions() metrics.MetricsGauge
	HTTPRequest(path string, code int)
	ErrorsTotal() metrics.MetricsCounter
}

// maxMessageBytes bounds request bodies and websocket messages.
const maxMessageBytes = 1 << 20

// PredictRequest asks for the values of a model at every input row.
type PredictRequest struct {
	Model  string      `json:"model"`
	Inputs [][]float64 `json:"inputs"`
}

// PredictResponse holds one output row per input row.
type PredictResponse struct {
	Model       string      `json:"model"`
	OutputNames []string    `json:"output_names,omitempty"`
	Outputs     [][]float64 `json:"outputs"`
}

// PointRequest asks for the derivatives of a model at one point.
type PointRequest struct {
	Model string    `json:"model"`
	Point []float64 `json:"point"`
}

// GradientResponse holds the inputs x outputs gradient matrix.
type GradientResponse struct {
	Model    string      `json:"model"`
	Gradient [][]float64 `json:"gradient"`
}

// HessianResponse holds one inputs x inputs matrix per output.
type HessianResponse struct {
	Model   string        `json:"model"`
	Hessian [][][]float64 `json:"hessian"`
}

// StreamRequest is one websocket message: a single input row.
type StreamRequest struct {
	Model string    `json:"model"`
	Input []float64 `json:"input"`
}

// StreamResponse answers a StreamRequest with either an output or an error.
type StreamResponse struct {
	Output []float64 `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string `json:"status"`
	Models int    `json:"models"`
}

// Server serves the loaded models.
type Server struct {
	models   *catalog
	metrics  MetricsTracker
	upgrader websocket.Upgrader
	gatherer prometheus.Gatherer
	server   *http.Server
	timeout  time.Duration
}

// New creates a server listening on port once started. A nil tracker
// disables metrics collection; /metrics is only mounted with a tracker.
func New(port int, timeout time.Duration, tracker MetricsTracker) *Server {
	s := &Server{
		models:   newCatalog(),
		metrics:  tracker,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		timeout:  timeout,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/models", s.handleModels)
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/gradient", s.handleGradient)
	mux.HandleFunc("/hessian", s.handleHessian)
	mux.HandleFunc("/stream", s.handleStream)
	if s.metrics != nil {
		if s.gatherer != nil {
			mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		} else {
			mux.Handle("/metrics", promhttp.Handler())
		}
	}
	return s.instrument(mux)
}

// SetGatherer serves /metrics from g instead of the default registry.
func (s *Server) SetGatherer(g prometheus.Gatherer) { s.gatherer = g }

// Start serves HTTP requests until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown model server")
		}
	}()

	s.server.Handler = s.Handler()
	log.Info().Str("addr", s.server.Addr).Int("models", s.models.size()).Msg("starting model server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Models lists the served models sorted by name.
func (s *Server) Models() []ModelInfo { return s.models.list() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (c net.Conn, rw *bufio.ReadWriter, err error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequest(r.URL.Path, rec.status)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.countError()
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownModel):
		status = http.StatusNotFound
	case errors.Is(err, errTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, function.ErrDimension), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("evaluation failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) countError() {
	if s.metrics != nil {
		s.metrics.ErrorsTotal().Inc()
	}
}

var (
	errBadRequest = errors.New("bad request")
	errTooLarge   = errors.New("request too large")
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes: %w", tooLarge.Limit, errTooLarge)
		}
		return fmt.Errorf("invalid request: %v: %w", err, errBadRequest)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Models: s.models.size()})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.models.list())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Inputs) == 0 {
		s.writeError(w, fmt.Errorf("inputs cannot be empty: %w", errBadRequest))
		return
	}
	m, err := s.models.get(req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := PredictResponse{Model: req.Model, OutputNames: m.info.Outputs, Outputs: make([][]float64, len(req.Inputs))}
	for i, x := range req.Inputs {
		y, err := m.fn.Evaluate(x)
		if err != nil {
			s.writeError(w, fmt.Errorf("row %d: %w", i, err))
			return
		}
		resp.Outputs[i] = y
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pointRequest(w http.ResponseWriter, r *http.Request) (*model, []float64, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	var req PointRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return nil, nil, false
	}
	m, err := s.models.get(req.Model)
	if err != nil {
		s.writeError(w, err)
		return nil, nil, false
	}
	return m, req.Point, true
}

func (s *Server) handleGradient(w http.ResponseWriter, r *http.Request) {
	m, x, ok := s.pointRequest(w, r)
	if !ok {
		return
	}
	g, err := m.fn.Gradient(x)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GradientResponse{Model: m.info.Name, Gradient: rows(g)})
}

func (s *Server) handleHessian(w http.ResponseWriter, r *http.Request) {
	m, x, ok := s.pointRequest(w, r)
	if !ok {
		return
	}
	h, err := m.fn.Hessian(x)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([][][]float64, len(h))
	for k, hk := range h {
		out[k] = rows(hk)
	}
	writeJSON(w, http.StatusOK, HessianResponse{Model: m.info.Name, Hessian: out})
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		sessions := s.metrics.StreamSessions()
		sessions.Add(1)
		defer sessions.Add(-1)
	}
	conn.SetReadLimit(maxMessageBytes)
	log.Debug().Str("remote", r.RemoteAddr).Msg("stream session opened")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("stream session closed unexpectedly")
			}
			return
		}

		var resp StreamResponse
		var req StreamRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			resp.Error = fmt.Sprintf("invalid request: %v", err)
		} else if m, err := s.models.get(req.Model); err != nil {
			resp.Error = err.Error()
		} else if y, err := m.fn.Evaluate(req.Input); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Output = y
		}
		if resp.Error != "" {
			s.countError()
		}

		conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug().Err(err).Msg("stream write failed")
			return
		}
	}
}
