package wipeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/wipewatch/internal/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRetries   = 3
	defaultBaseDelay = 500 * time.Millisecond
	userAgent        = "WipeWatch/1.0"
)

// Client talks to the wipewatch backend: paged listings, account
// mutations and house ads.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries     int
	baseRetryDelay time.Duration
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the number of retries on 5xx and the first backoff delay
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseRetryDelay = baseDelay
	}
}

// NewClient creates a new backend API client
func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:         logger,
		maxRetries:     defaultRetries,
		baseRetryDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken updates the session token
func (c *Client) SetToken(token string) {
	c.token = token
}

type request struct {
	method         string
	path           string
	query          url.Values
	body           interface{}
	idempotencyKey string
}

// do performs an authenticated request.
// Retries with exponential backoff on 5xx; the idempotency key is resent
// unchanged so the backend can collapse duplicates.
func (c *Client) do(ctx context.Context, r request) ([]byte, int, error) {
	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL = reqURL + "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}

		if attempt > 0 {
			delay := c.baseRetryDelay * time.Duration(1<<(attempt-1)) // 500ms, 1s, 2s
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, reqURL, bodyReader)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", r.idempotencyKey)
		}

		c.logger.Debug("api request", "method", r.method, "url", reqURL, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			c.logger.Warn("api request failed", "error", err, "url", reqURL)
			return nil, 0, fmt.Errorf("%w: %v", domain.ErrServerOffline, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("%w: failed to read response: %v", domain.ErrServerOffline, err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, resp.StatusCode, domain.ErrAuthFailed

		case resp.StatusCode == http.StatusConflict:
			return nil, resp.StatusCode, domain.ErrConflict

		case resp.StatusCode >= 500 && resp.StatusCode < 600:
			lastErr = fmt.Errorf("%w: status %d", domain.ErrServer, resp.StatusCode)
			c.logger.Warn("api server error, will retry",
				"status", resp.StatusCode,
				"body", string(body),
				"attempt", attempt,
				"maxRetries", c.maxRetries,
				"path", r.path,
			)
			continue

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, resp.StatusCode, nil

		default:
			c.logger.Error("api request error", "status", resp.StatusCode, "body", string(body))
			return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}
	}

	c.logger.Error("api request failed after retries",
		"error", lastErr,
		"url", reqURL,
		"path", r.path,
	)
	return nil, 0, lastErr
}

// StatusError is an unexpected 4xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// isNotFound reports whether err is a 404 response
func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func decode(body []byte, dest interface{}) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", domain.ErrServer, err)
	}
	return nil
}
