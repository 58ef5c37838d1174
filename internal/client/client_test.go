package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"otpmml/internal/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	s := server.New(0, 5*time.Second, nil)
	_, err := s.LoadFile(filepath.Join("testdata", "network.pmml"))
	require.NoError(t, err)
	_, err = s.LoadFile(filepath.Join("testdata", "linear_regression.pmml"))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", 2*time.Second)
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t)

	health, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Models)
}

func TestClient_Models(t *testing.T) {
	c := newTestClient(t)

	models, err := c.Models()
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "Deflection", models[0].Name)
	assert.Equal(t, []string{"x1", "x2"}, models[0].Inputs)
}

func TestClient_Predict(t *testing.T) {
	c := newTestClient(t)

	out, err := c.Predict("Deflection", [][]float64{{4, 1}, {-2, 9}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 216.91198321592205, out[0][0], 1e-10)
	assert.InDelta(t, 144.86377843798013, out[1][0], 1e-10)

	out, err = c.Predict("Logistic", [][]float64{{0.3}})
	require.NoError(t, err)
	assert.InDelta(t, 0.549833997312478, out[0][0], 1e-12)
	assert.InDelta(t, 0.401312339887548, out[0][1], 1e-12)
}

func TestClient_Derivatives(t *testing.T) {
	c := newTestClient(t)

	g, err := c.Gradient("LinReg", []float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}, {-0.5}}, g)

	h, err := c.Hessian("LinReg", []float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, [][][]float64{{{0, 0}, {0, 0}}}, h)
}

func TestClient_RemoteErrors(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Predict("nope", [][]float64{{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemote))
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "unknown model")

	_, err = c.Gradient("Deflection", []float64{1})
	assert.True(t, errors.Is(err, ErrRemote))
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	c := New(url, time.Second)
	_, err := c.Health()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRemote))
}

func TestClient_Stream(t *testing.T) {
	c := newTestClient(t)

	out, err := c.Stream(context.Background(), "Deflection", [][]float64{{4, 1}, {-2, 9}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 216.91198321592205, out[0][0], 1e-10)
	assert.InDelta(t, 144.86377843798013, out[1][0], 1e-10)

	_, err = c.Stream(context.Background(), "Deflection", [][]float64{{4, 1}, {4}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemote))
	assert.Contains(t, err.Error(), "row 1")
}

func TestClient_StreamURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/stream", New("http://localhost:8080", 0).streamURL())
	assert.Equal(t, "wss://models.example.com/stream", New("https://models.example.com/", 0).streamURL())
}
