package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"adimporter/shared/config"
	"adimporter/workers/importer/internal/domain"
)

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
	MaxBytes   int64
}

// DefaultConfig returns default HTTP client configuration
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		UserAgent:  "ad-creative-importer/1.0",
		MaxBytes:   200 << 20,
	}
}

// ConfigFrom maps the shared HTTP settings onto a ClientConfig.
func ConfigFrom(cfg config.HTTPConfig) ClientConfig {
	return ClientConfig{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
		MaxBytes:   cfg.MaxAssetBytes,
	}
}

// ErrTooLarge is returned when an asset exceeds MaxBytes.
var ErrTooLarge = errors.New("asset exceeds maximum size")

// StatusError reports a non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Gate admits one network attempt. (*limiter.Limiter).Do satisfies it.
type Gate func(ctx context.Context, fn func(ctx context.Context) error) error

func ungated(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Option customizes a Client.
type Option func(*Client)

// WithGate runs every attempt through gate. Backoff between attempts happens
// outside it, so a failing host holds no slot while waiting to retry.
func WithGate(gate Gate) Option {
	return func(c *Client) {
		if gate != nil {
			c.gate = gate
		}
	}
}

// Client implements the domain.HTTPClient port
type Client struct {
	client *http.Client
	config ClientConfig
	gate   Gate
}

// NewClient creates a new HTTP client
func NewClient(config ClientConfig, opts ...Option) *Client {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	c := &Client{
		// per-attempt deadlines come from the request context
		client: &http.Client{},
		config: config,
		gate:   ungated,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches url into memory. Transport errors and 5xx responses are
// retried with linear backoff; every attempt is bounded by the configured
// timeout.
func (c *Client) Download(ctx context.Context, url string) (*domain.Asset, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var (
			asset *domain.Asset
			retry bool
		)
		err := c.gate(ctx, func(ctx context.Context) error {
			var err error
			asset, retry, err = c.attempt(ctx, url)
			return err
		})
		if err == nil {
			return asset, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string) (*domain.Asset, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, true, &StatusError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.config.MaxBytes {
		return nil, false, ErrTooLarge
	}

	return &domain.Asset{
		URL:         url,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, false, nil
}
