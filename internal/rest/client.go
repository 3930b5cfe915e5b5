package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stellarlinkco/cordkit/internal/cache"
	"github.com/stellarlinkco/cordkit/internal/config"
)

var logger = log.WithPrefix("rest")

const (
	defaultMaxAttempts = 3
	userAgent          = "cordkit (https://github.com/stellarlinkco/cordkit, 1.0)"
)

// HTTPClient is the part of *http.Client the REST client needs.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

type Client struct {
	baseURL     string
	token       string
	httpClient  HTTPClient
	store       cache.Store
	settings    cache.Settings
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCache serves GET requests from store while their route's TTL allows.
func WithCache(store cache.Store, settings cache.Settings) Option {
	return func(cl *Client) {
		cl.store = store
		cl.settings = settings
	}
}

func WithMaxAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxAttempts = n
		}
	}
}

func New(cfg config.APIConfig, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("rest: token is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultAPIBaseURL
	}
	version := cfg.Version
	if version <= 0 {
		version = config.DefaultAPIVersion
	}

	timeout := 15 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse api timeout: %w", err)
		}
		timeout = d
	}

	c := &Client{
		baseURL:     fmt.Sprintf("%s/v%d", baseURL, version),
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status     int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) IsRetryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type errorBody struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// request sends one API call. route is the path template used for cache
// settings ("/channels/{channel.id}/messages"); path is the concrete path.
func (c *Client) request(ctx context.Context, method, route, path string, body, out any) error {
	cacheKey := method + " " + path
	ttl := c.settings.TTL(method + " " + route)
	cacheable := method == http.MethodGet && c.store != nil && ttl > 0

	if cacheable {
		data, ok, err := c.store.Get(cacheKey)
		if err != nil {
			logger.Warn("cache read failed", "key", cacheKey, "err", err)
		} else if ok {
			logger.Debug("cache hit", "key", cacheKey)
			return decode(data, out)
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", method, route, err)
		}
	}

	data, err := c.sendWithRetry(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if cacheable {
		if err := c.store.Set(cacheKey, data, ttl); err != nil {
			logger.Warn("cache write failed", "key", cacheKey, "err", err)
		}
	}
	return decode(data, out)
}

func (c *Client) sendWithRetry(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		data, err := c.sendOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}

		lastErr = err
		if !c.shouldRetry(err) || attempt == c.maxAttempts {
			return nil, err
		}

		backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > backoff {
			backoff = apiErr.RetryAfter
		}
		logger.Debug("retrying request", "method", method, "path", path, "attempt", attempt, "backoff", backoff, "err", err)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}

func (c *Client) sendOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var body errorBody
		if json.Unmarshal(raw, &body) == nil && body.Message != "" {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
			apiErr.RetryAfter = time.Duration(body.RetryAfter * float64(time.Second))
		}
		return nil, apiErr
	}
	return raw, nil
}

func decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
