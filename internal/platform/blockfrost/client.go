// Package blockfrost is the REST client for the Blockfrost Cardano API. It
// serves transaction confirmation lookups and policy asset enumeration.
package blockfrost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/empowa-tech/marketplace/internal/domain"
)

// NetworkURL returns the API root for a Cardano network name.
func NetworkURL(network string) string {
	return fmt.Sprintf("https://cardano-%s.blockfrost.io/api/v0", network)
}

// Config holds client parameters. BaseURL takes precedence over Network.
type Config struct {
	ProjectID        string
	Network          string
	BaseURL          string
	Timeout          time.Duration
	RequestsPerSec   float64
	Burst            int
	BreakerFailures  int
	BreakerOpenDelay time.Duration
}

// Client calls the Blockfrost API with a client-side throttle and a circuit
// breaker. Requests are never retried; callers decide what a failure means.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// New creates a Client from cfg, filling zero values with safe defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		network := cfg.Network
		if network == "" {
			network = "mainnet"
		}
		baseURL = NetworkURL(network)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := uint32(5)
	if cfg.BreakerFailures > 0 {
		failures = uint32(cfg.BreakerFailures)
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		projectID:  cfg.ProjectID,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "blockfrost",
			MaxRequests: 1,
			Timeout:     openDelay,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			// A missing transaction or asset is an answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// doGet issues an authenticated GET through the limiter and breaker and
// returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("project_id", c.projectID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if err := checkHTTPStatus(resp.StatusCode, data); err != nil {
			return nil, err
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := apiMessage(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
