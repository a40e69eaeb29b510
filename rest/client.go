package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/signature"
)

const (
	DefaultBaseURL = "https://api.binance.com/api/v3"

	DefaultTimeout = 30 * time.Second
)

// Client issues plain, unsigned GET requests against the REST API. Requests
// are never retried; callers pace long jobs themselves on top of the
// client's token bucket.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rateLimiter

	burst  int
	refill time.Duration

	closeOnce sync.Once
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the token bucket size and refill interval.
func WithRateLimit(burst int, refill time.Duration) Option {
	return func(c *Client) {
		c.burst = burst
		c.refill = refill
	}
}

func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
		burst:      DefaultRateBurst,
		refill:     DefaultRateRefill,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = newRateLimiter(c.burst, c.refill)

	return c
}

// Close stops the token bucket refill. The client must not be used afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(c.limiter.stop)
}

// Get requests baseURL+path. Params are sent as the canonical sorted query
// string, so values must already be URL safe.
func (c *Client) Get(ctx context.Context, path string, params map[string]any) (json.RawMessage, error) {
	url := c.baseURL + path
	if len(params) > 0 {
		url += "?" + signature.Canonicalize(params)
	}

	if err := c.limiter.acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("REST request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	var apiErr *APIError
	_ = json.Unmarshal(body, &apiErr)

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: body}
		if apiErr.populated() {
			httpErr.API = apiErr
		}
		return nil, httpErr
	}

	if apiErr.populated() {
		return nil, apiErr
	}

	return json.RawMessage(body), nil
}
