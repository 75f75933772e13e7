// Package upstream is the shared HTTP plumbing of the external service
// clients: bounded exponential retry behind a circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultTimeout      = 60 * time.Second
	maxErrorBodyBytes   = 512
	maxResponseBytes    = 16 << 20
)

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("upstream: service temporarily unavailable")

// StatusError carries a non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Config describes one upstream service.
type Config struct {
	Name         string
	HTTPClient   *http.Client
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       *zap.Logger
}

// Client executes requests against one upstream service.
type Client struct {
	name         string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	maxAttempts  int
	initialDelay time.Duration
	logger       *zap.Logger
}

// New builds a client with its own circuit breaker.
func New(cfg Config) *Client {
	client := &Client{
		name:         cfg.Name,
		httpClient:   cfg.HTTPClient,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		logger:       cfg.Logger,
	}
	if client.name == "" {
		client.name = "upstream"
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.maxAttempts <= 0 {
		client.maxAttempts = defaultMaxAttempts
	}
	if client.initialDelay <= 0 {
		client.initialDelay = defaultInitialDelay
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}

	logger := client.logger
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        client.name,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return !statusErr.Retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return client
}

// Name returns the service name used in errors and logs.
func (c *Client) Name() string {
	return c.name
}

// Do sends the request produced by newRequest and returns the body of a 2xx
// response. newRequest is called once per attempt. Transport errors, 429 and
// 5xx are retried with exponential backoff; other statuses fail with
// *StatusError immediately.
func (c *Client) Do(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (int, []byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.attempt(ctx, newRequest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, nil, fmt.Errorf("%s: %w", c.name, ErrUnavailable)
	}
	if err != nil {
		return 0, nil, err
	}
	resp := result.(response)
	return resp.status, resp.body, nil
}

type response struct {
	status int
	body   []byte
}

func (c *Client) attempt(ctx context.Context, newRequest func(ctx context.Context) (*http.Request, error)) (response, error) {
	delay := c.initialDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.Debug("retrying upstream call",
				zap.String("service", c.name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return response{}, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		request, err := newRequest(ctx)
		if err != nil {
			return response{}, fmt.Errorf("%s: build request: %w", c.name, err)
		}
		httpResponse, err := c.httpClient.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return response{}, ctx.Err()
			}
			lastErr = fmt.Errorf("%s: request failed: %w", c.name, err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBytes))
		httpResponse.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%s: read response: %w", c.name, err)
			continue
		}

		if httpResponse.StatusCode >= 200 && httpResponse.StatusCode < 300 {
			return response{status: httpResponse.StatusCode, body: body}, nil
		}

		statusErr := &StatusError{Service: c.name, StatusCode: httpResponse.StatusCode, Body: truncate(body)}
		if !statusErr.Retryable() {
			return response{}, statusErr
		}
		lastErr = statusErr
	}
	return response{}, fmt.Errorf("%s: giving up after %d attempts: %w", c.name, c.maxAttempts, lastErr)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes]) + "..."
	}
	return string(body)
}
