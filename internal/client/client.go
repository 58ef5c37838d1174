// Package client talks to a running model server.
package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"otpmml/internal/server"

	"github.com/go-resty/resty/v2"
)

// ErrRemote is returned when the server answers a request with an error.
var ErrRemote = errors.New("model server error")

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*server.ErrorResponse); ok && e.Error != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode(), e.Error)
		}
		return fmt.Errorf("%w: status %d, body: %s", ErrRemote, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Health returns the server status.
func (c *Client) Health() (*server.HealthResponse, error) {
	var health server.HealthResponse
	resp, err := c.rest.R().
		SetResult(&health).
		SetError(&server.ErrorResponse{}).
		Get(c.base + "/health")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &health, nil
}

// Models lists the served models.
func (c *Client) Models() ([]server.ModelInfo, error) {
	var models []server.ModelInfo
	resp, err := c.rest.R().
		SetResult(&models).
		SetError(&server.ErrorResponse{}).
		Get(c.base + "/models")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return models, nil
}

// Predict evaluates model at every input row.
func (c *Client) Predict(model string, inputs [][]float64) ([][]float64, error) {
	var out server.PredictResponse
	resp, err := c.rest.R().
		SetBody(server.PredictRequest{Model: model, Inputs: inputs}).
		SetResult(&out).
		SetError(&server.ErrorResponse{}).
		Post(c.base + "/predict")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Outputs, nil
}

// Gradient returns the inputs x outputs gradient of model at point.
func (c *Client) Gradient(model string, point []float64) ([][]float64, error) {
	var out server.GradientResponse
	resp, err := c.rest.R().
		SetBody(server.PointRequest{Model: model, Point: point}).
		SetResult(&out).
		SetError(&server.ErrorResponse{}).
		Post(c.base + "/gradient")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Gradient, nil
}

// Hessian returns one inputs x inputs matrix per output of model at point.
func (c *Client) Hessian(model string, point []float64) ([][][]float64, error) {
	var out server.HessianResponse
	resp, err := c.rest.R().
		SetBody(server.PointRequest{Model: model, Point: point}).
		SetResult(&out).
		SetError(&server.ErrorResponse{}).
		Post(c.base + "/hessian")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Hessian, nil
}
