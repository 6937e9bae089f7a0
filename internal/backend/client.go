package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	ErrTransport        = errors.New("backend transport failure")
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrDecode           = errors.New("malformed backend response")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	errNoHTTPClient     = errors.New("http client not configured")
	errUnknownMode      = errors.New("no endpoint for mode")

	// errCanceled marks requests cut short by their own context; the breaker
	// does not count them as backend failures.
	errCanceled = errors.New("request canceled")
)

// BreakerConfig controls when the breaker trips and how long it stays open.
type BreakerConfig struct {
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Client fetches provider results from the backend weather-aggregation service.
// Every mode has its own endpoint and its own circuit breaker so that one
// failing mode never short-circuits the other.
type Client struct {
	httpClient *http.Client
	endpoints  map[weather.Mode]string
	breakers   map[weather.Mode]*gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a backend client for the given endpoints.
func NewClient(
	httpClient *http.Client,
	endpoints map[weather.Mode]string,
	cfg BreakerConfig,
	logger *zap.Logger,
) *Client {
	breakers := make(map[weather.Mode]*gobreaker.CircuitBreaker, len(endpoints))
	for mode := range endpoints {
		breakers[mode] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend-" + string(mode),
			MaxRequests: 1,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, errCanceled)
			},
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}

	return &Client{
		httpClient: httpClient,
		endpoints:  endpoints,
		breakers:   breakers,
		logger:     logger,
	}
}

// Fetch issues GET against the endpoint for mode and decodes the JSON array body.
// Failures wrap ErrTransport, ErrUnexpectedStatus, ErrDecode or ErrCircuitOpen.
// A done ctx yields an ErrTransport that also wraps ctx.Err() and is not
// counted against the breaker.
func (c *Client) Fetch(ctx context.Context, mode weather.Mode) ([]weather.ProviderResult, error) {
	if c.httpClient == nil {
		return nil, errNoHTTPClient
	}
	url, ok := c.endpoints[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownMode, mode)
	}

	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	result, err := c.breakers[mode].Execute(func() (interface{}, error) {
		results, err := c.get(ctx, url)
		if err != nil && ctx.Err() != nil {
			return nil, canceled(ctx.Err())
		}
		return results, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	results, ok := result.([]weather.ProviderResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return results, nil
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrTransport, errCanceled, err)
}

func (c *Client) get(ctx context.Context, url string) ([]weather.ProviderResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close response body", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var results []weather.ProviderResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if results == nil {
		// A `null` body counts as an empty list.
		results = []weather.ProviderResult{}
	}
	return results, nil
}
