package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"otpmml/internal/metrics"
	"otpmml/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *metrics.Metrics, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	s := New(0, 5*time.Second, metrics.NewWrapper(m))
	s.SetGatherer(reg)

	_, err := s.LoadFile(filepath.Join("testdata", "network.pmml"))
	require.NoError(t, err)
	_, err = s.LoadFile(filepath.Join("testdata", "linear_regression.pmml"))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, m, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_LoadFile(t *testing.T) {
	s, m, _ := newTestServer(t)

	models := s.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "Deflection", models[0].Name)
	assert.Equal(t, registry.KindNeuralNetwork, models[0].Kind)
	assert.Equal(t, []string{"x1", "x2"}, models[0].Inputs)
	assert.Equal(t, "LinReg", models[1].Name)
	assert.Equal(t, registry.KindRegressionModel, models[1].Kind)
	assert.Equal(t, []string{"y"}, models[1].Outputs)
	assert.Equal(t, "Logistic", models[2].Name)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ModelsLoaded))

	_, err := s.LoadFile(filepath.Join("testdata", "missing.pmml"))
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Models)
}

func TestServer_Models(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var models []ModelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&models))
	assert.Len(t, models, 3)

	resp2 := postJSON(t, ts.URL+"/models", map[string]string{})
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestServer_Predict(t *testing.T) {
	_, m, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/predict", PredictRequest{
		Model:  "Deflection",
		Inputs: [][]float64{{4, 1}, {-2, 9}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out PredictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Outputs, 2)
	assert.InDelta(t, 216.91198321592205, out.Outputs[0][0], 1e-10)
	assert.InDelta(t, 144.86377843798013, out.Outputs[1][0], 1e-10)
	assert.Equal(t, []string{"y"}, out.OutputNames)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("Deflection", "value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/predict", "200")))
}

func TestServer_PredictRegression(t *testing.T) {
	_, m, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/predict", PredictRequest{Model: "LinReg", Inputs: [][]float64{{1, 2}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out PredictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.InDelta(t, 1.5+2-1, out.Outputs[0][0], 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("LinReg", "value")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EvaluationLatency))
}

func TestServer_PredictBodyTooLarge(t *testing.T) {
	_, m, ts := newTestServer(t)

	body := `{"model":"Deflection","inputs":[[` + strings.Repeat("1,", maxMessageBytes/2) + `1]]}`
	resp, err := http.Post(ts.URL+"/predict", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Contains(t, e.Error, "exceeds")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("Deflection", "value")))
}

func TestServer_PredictErrors(t *testing.T) {
	_, m, ts := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"unknown model", PredictRequest{Model: "nope", Inputs: [][]float64{{1}}}, http.StatusNotFound},
		{"wrong dimension", PredictRequest{Model: "Deflection", Inputs: [][]float64{{1, 2, 3}}}, http.StatusBadRequest},
		{"no inputs", PredictRequest{Model: "Deflection"}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/predict", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			var e ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationFailures.WithLabelValues("Deflection", "value")))
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(m.ErrorsTotal))

	resp, err := http.Get(ts.URL + "/predict")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Gradient(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/gradient", PointRequest{Model: "LinReg", Point: []float64{0, 0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out GradientResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Gradient, 2)
	assert.InDelta(t, 2, out.Gradient[0][0], 1e-12)
	assert.InDelta(t, -0.5, out.Gradient[1][0], 1e-12)

	resp = postJSON(t, ts.URL+"/gradient", PointRequest{Model: "Logistic", Point: []float64{0.3}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Gradient, 1)
	assert.Len(t, out.Gradient[0], 2)
}

func TestServer_Hessian(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/hessian", PointRequest{Model: "Deflection", Point: []float64{4, 1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out HessianResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Hessian, 1)
	require.Len(t, out.Hessian[0], 2)
	assert.InDelta(t, out.Hessian[0][0][1], out.Hessian[0][1][0], 1e-12)

	resp = postJSON(t, ts.URL+"/hessian", PointRequest{Model: "LinReg", Point: []float64{1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	postJSON(t, ts.URL+"/predict", PredictRequest{Model: "Logistic", Inputs: [][]float64{{0.3}}})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `otpmml_evaluations_total{kind="value",model="Logistic"} 1`)
}

func TestServer_WithoutMetrics(t *testing.T) {
	s := New(0, 5*time.Second, nil)
	_, err := s.LoadFile(filepath.Join("testdata", "linear_regression.pmml"))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Stream(t *testing.T) {
	_, m, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	requests := []StreamRequest{
		{Model: "Deflection", Input: []float64{4, 1}},
		{Model: "Deflection", Input: []float64{4}},
		{Model: "nope", Input: []float64{1}},
		{Model: "LinReg", Input: []float64{1, 2}},
	}
	var responses []StreamResponse
	for _, req := range requests {
		require.NoError(t, conn.WriteJSON(req))
		var resp StreamResponse
		require.NoError(t, conn.ReadJSON(&resp))
		responses = append(responses, resp)
	}

	assert.InDelta(t, 216.91198321592205, responses[0].Output[0], 1e-10)
	assert.Empty(t, responses[0].Error)
	assert.Contains(t, responses[1].Error, "dimension")
	assert.Contains(t, responses[2].Error, "unknown model")
	assert.InDelta(t, 2.5, responses[3].Output[0], 1e-12)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Contains(t, resp.Error, "invalid request")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamSessions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestServer_LoadRegistry(t *testing.T) {
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	net, err := os.ReadFile(filepath.Join("testdata", "network.pmml"))
	require.NoError(t, err)
	lin, err := os.ReadFile(filepath.Join("testdata", "linear_regression.pmml"))
	require.NoError(t, err)
	_, err = reg.Add("nets", net)
	require.NoError(t, err)
	_, err = reg.Add("plane", lin)
	require.NoError(t, err)

	s := New(0, 5*time.Second, nil)
	loaded, err := s.LoadRegistry(reg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"nets/Deflection", "nets/Logistic", "plane"}, loaded)

	models := s.Models()
	require.Len(t, models, 3)
	assert.Equal(t, "registry:plane@1", models[2].Source)
}

func TestServer_RegistryModelsUseServedNameInMetrics(t *testing.T) {
	reg, err := registry.New(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	net, err := os.ReadFile(filepath.Join("testdata", "network.pmml"))
	require.NoError(t, err)
	lin, err := os.ReadFile(filepath.Join("testdata", "linear_regression.pmml"))
	require.NoError(t, err)
	_, err = reg.Add("nets", net)
	require.NoError(t, err)
	_, err = reg.Add("plane", lin)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(promReg)
	s := New(0, 5*time.Second, metrics.NewWrapper(m))
	_, err = s.LoadRegistry(reg)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, req := range []PredictRequest{
		{Model: "nets/Deflection", Inputs: [][]float64{{4, 1}}},
		{Model: "plane", Inputs: [][]float64{{1, 2}}},
	} {
		resp := postJSON(t, ts.URL+"/predict", req)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("nets/Deflection", "value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("plane", "value")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("Deflection", "value")))
}
