// Package contactclient submits the contact form to the API from a client
// process, mirroring the browser form: local rate pre-check, local
// validation, and bounded retries on timeouts.
package contactclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mopstar/mopstar-api/internal/contact"
)

// ErrNetworkTimeout means every attempt timed out, failed in transport or
// got 503 back.
var ErrNetworkTimeout = errors.New("network timeout")

const (
	DefaultAttemptTimeout = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second

	maxResponseBytes = 64 << 10
)

// ClientConfig configures a Client. Zero values take the defaults.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://api.mopstarcleaning.com.
	BaseURL string
	// AttemptTimeout bounds each HTTP attempt.
	AttemptTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Negative
	// disables retries.
	MaxRetries int
	// RetryDelay is the delay before the first retry; it doubles after that.
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// Response is the API's reply to a submission.
type Response struct {
	StatusCode int    `json:"-"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	// RetryAfter is set from the Retry-After header on 429 replies.
	RetryAfter time.Duration `json:"-"`
}

// Client posts contact requests to the API.
type Client struct {
	endpoint string
	cfg      ClientConfig
	http     *http.Client
	sleep    func(context.Context, time.Duration) error
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("contactclient: base URL is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/api/contact",
		cfg:      cfg,
		http:     hc,
		sleep:    sleepWithContext,
	}, nil
}

// Submit posts req. Timeouts, transport errors and 503 replies are retried
// up to MaxRetries times, waiting RetryDelay * 2^(retry-1) between them;
// after that it returns ErrNetworkTimeout. Any other reply is returned as a
// Response, whatever its status.
func (c *Client) Submit(ctx context.Context, req contact.Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryDelay << (attempt - 2)
			slog.Debug("retrying contact submission", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return Response{}, err
			}
		}

		resp, err := c.post(ctx, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			lastErr = err
		case resp.StatusCode == http.StatusServiceUnavailable:
			lastErr = fmt.Errorf("server unavailable: %s", resp.Message)
		default:
			return resp, nil
		}
	}
	return Response{}, fmt.Errorf("%w: %w", ErrNetworkTimeout, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	out := Response{StatusCode: res.StatusCode}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		out.Message = strings.TrimSpace(string(data))
	}
	if res.StatusCode == http.StatusTooManyRequests {
		if secs, err := time.ParseDuration(res.Header.Get("Retry-After") + "s"); err == nil {
			out.RetryAfter = secs
		}
	}
	return out, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
