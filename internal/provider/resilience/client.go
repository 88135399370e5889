package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without contacting the upstream while its
// breaker is open or its half-open probe quota is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name is the upstream name used by the breaker and the registry.
	Name string

	// Timeout bounds a single HTTP attempt. Default: 10s
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a failure status or
	// transport error. Zero sends each request once.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential retry backoff.
	// Defaults: 100ms and 5s
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, tracks this client's health.
	Registry *Registry

	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
}

// DefaultClientConfig allows three retries behind the default breaker.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

// UpstreamClientConfig is the configuration every geocoding, feature and
// routing adapter uses: one attempt per request, the default breaker and
// health tracking in registry.
func UpstreamClientConfig(name string, timeout time.Duration, registry *Registry) ClientConfig {
	cfg := DefaultClientConfig(name)
	cfg.Timeout = timeout
	cfg.MaxRetries = 0
	cfg.Registry = registry
	return cfg
}

// StatusError is a response status that counts as an upstream failure:
// any 5xx, or 429 when the upstream is throttling us.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsFailureStatus reports whether an upstream status should count against
// its breaker.
func IsFailureStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

// Doer sends HTTP requests. Adapters accept any Doer so tests can pass a
// plain *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the Doer adapters use in production: one upstream, one breaker.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	cfg      ClientConfig
	registry *Registry
}

// NewClient creates a Client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cb := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cb = *cfg.CircuitBreaker
	}

	c := &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker:  NewCircuitBreaker[*http.Response](cb), //nolint:bodyclose // type param, not response
		cfg:      cfg,
		registry: cfg.Registry,
	}

	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Do sends req through the breaker. A failure status that survives every
// retry is returned as a response, not an error, so adapters can map the
// upstream's own error body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req.Context(), req)

	if c.registry != nil {
		switch {
		case err != nil:
			c.registry.RecordFailure(c.name, err)
		case IsFailureStatus(resp.StatusCode):
			c.registry.RecordFailure(c.name, &StatusError{StatusCode: resp.StatusCode})
		default:
			c.registry.RecordSuccess(c.name)
		}
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil && last != resp {
			last.Body.Close()
		}
		last = resp
	}

	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by keep or the caller
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if IsFailureStatus(r.StatusCode) {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case resp != nil:
			keep(resp)
		}
		return err
	}

	if err := backoff.Retry(attempt, policy); err != nil {
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker counters.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

var _ Doer = (*Client)(nil)
