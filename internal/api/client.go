// Package api talks to the support backend's REST interface. It owns request
// plumbing only: timeouts, bounded retries for transient network failures,
// bearer auth, and JSON decoding. Resource normalization lives in
// internal/gateway.
package api

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

	"github.com/atendo/inboxsync/internal/retry"
)

// ErrNotFound is returned for 404 responses. Callers treat absence as a valid
// lookup result, not a failure.
var ErrNotFound = errors.New("api: not found")

// StatusError is a non-404 HTTP error status. It is never retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Body)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	// Token is sent as a bearer Authorization header when non-empty.
	Token   string
	Timeout time.Duration
	Retry   retry.Config
	Logger  *slog.Logger
}

// Client is a thin JSON HTTP client. Transient network and timeout errors are
// retried with exponential backoff; error statuses surface immediately.
type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	retry  retry.Config
	logger *slog.Logger

	// Observe, when set, is called once per retried attempt.
	Observe func()
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("api: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		token:  cfg.Token,
		retry:  cfg.Retry,
		logger: logger,
	}, nil
}

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("api: invalid path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
	}

	attempt := 0
	return retry.Do(ctx, c.retry, func() error {
		attempt++
		if attempt > 1 {
			if c.Observe != nil {
				c.Observe()
			}
			c.logger.Debug("retrying request", "method", method, "url", target.String(), "attempt", attempt)
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Network or timeout failure: eligible for retry.
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(ErrNotFound)
		case resp.StatusCode >= 400:
			return retry.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))})
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return retry.Permanent(fmt.Errorf("api: decode response: %w", err))
			}
		}
		return nil
	})
}
