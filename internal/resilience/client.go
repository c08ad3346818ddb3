package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Client performs JSON GETs with retries and one circuit breaker per host.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	retry          RetryConfig
	breakerTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithBreakerTimeout sets how long an open breaker rejects calls.
func WithBreakerTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.breakerTimeout = d }
}

// NewClient creates a Client. httpClient may be nil.
func NewClient(httpClient *http.Client, userAgent string, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		httpClient:     httpClient,
		userAgent:      userAgent,
		retry:          DefaultRetryConfig(),
		breakerTimeout: 2 * time.Minute,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches rawURL and decodes the body into out. Transient failures
// are retried; a 4xx other than 408/429 is returned immediately as a
// *StatusError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrapf(err, "resilience: parse %s", rawURL)
	}
	cb := c.breaker(u.Host)

	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(u.Host, u.Path)
	}

	return Do(ctx, cfg, func(ctx context.Context) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, c.get(ctx, rawURL, header, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return eris.Wrapf(ErrCircuitOpen, "resilience: %s", u.Host)
		}
		return err
	})
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "resilience: create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &StatusError{StatusCode: resp.StatusCode, URL: rawURL, Body: string(body)}
		if IsTransientHTTPStatus(resp.StatusCode) {
			return NewTransientError(se, resp.StatusCode)
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "resilience: decode %s", rawURL)
	}
	return nil
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only upstream trouble opens the breaker; a 404 is a valid answer.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("resilience: breaker state change",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.breakers[host] = cb
	return cb
}
