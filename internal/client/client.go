// Package client is a small HTTP client for a running shotapi service.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrUnexpectedStatus is wrapped by APIError.
var ErrUnexpectedStatus = errors.New("unexpected status")

// APIError is a non-2xx response decoded from the service's error envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shotapi: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return ErrUnexpectedStatus }

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// Capture is a capture returned by the service.
type Capture struct {
	Payload     []byte
	ContentType string
	CacheStatus string
	Key         string
}

// Config points the client at a service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Client talks to the service over HTTP.
type Client struct {
	http *resty.Client
}

// New creates a Client. Retries apply only to 502, 503 and 504 responses.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "shotapi-cli").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			switch r.StatusCode() {
			case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		})
	if cfg.APIKey != "" {
		c.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Client{http: c}
}

// Capture requests a capture with the given query parameters.
func (c *Client) Capture(ctx context.Context, params map[string]string) (Capture, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetError(&errorEnvelope{}).
		Get("/screenshot")
	if err != nil {
		return Capture{}, fmt.Errorf("request capture: %w", err)
	}
	if resp.IsError() {
		return Capture{}, apiError(resp)
	}
	return Capture{
		Payload:     resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		CacheStatus: resp.Header().Get("X-Cache"),
		Key:         resp.Header().Get("X-Cache-Key"),
	}, nil
}

// ClearCache empties the service's cache. It needs the API key.
func (c *Client) ClearCache(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorEnvelope{}).
		Post("/clear-cache")
	if err != nil {
		return fmt.Errorf("request clear-cache: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&errorEnvelope{}).Get("/health")
	if err != nil {
		return fmt.Errorf("request health: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	if env, ok := resp.Error().(*errorEnvelope); ok && env.Error.Message != "" {
		e.Message = env.Error.Message
	}
	return e
}
