package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/aqiserve/internal/features"
	"github.com/lox/aqiserve/internal/httputil"
)

// APIError is an error reported by the prediction service. StatusCode is 200
// when the service runs with legacy error statuses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prediction service: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running prediction service.
type Client struct {
	baseURL string
	http    *http.Client

	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            httputil.NewClient(),
		InitialInterval: 250 * time.Millisecond,
		MaxElapsedTime:  30 * time.Second,
	}
}

type predictResponse struct {
	AQIPrediction *float64 `json:"AQI_prediction"`
	Error         string   `json:"error"`
}

// Predict sends one feature vector and returns the predicted AQI.
func (c *Client) Predict(ctx context.Context, v features.Vector) (float64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	var out predictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", payload, &out); err != nil {
		return 0, err
	}
	if out.Error != "" {
		return 0, &APIError{StatusCode: http.StatusOK, Message: out.Error}
	}
	if out.AQIPrediction == nil {
		return 0, fmt.Errorf("prediction service: response has no AQI_prediction")
	}
	return *out.AQIPrediction, nil
}

// Health returns nil once the service reports status ok.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("prediction service: health status %q", out.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body []byte
	operation := func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = b
			return nil
		case retryable(resp.StatusCode):
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		default:
			return backoff.Permanent(apiError(resp.StatusCode, b))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.InitialInterval
	bo.MaxElapsedTime = c.MaxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func apiError(status int, body []byte) *APIError {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return &APIError{StatusCode: status, Message: e.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
