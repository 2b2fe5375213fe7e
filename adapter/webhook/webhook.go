// Package webhook POSTs session events as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/iox"
	"github.com/justapithecus/heliwatch/retry"
	"github.com/justapithecus/heliwatch/types"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// Config configures the webhook adapter.
type Config struct {
	URL     string
	Headers map[string]string
	// Timeout bounds one request (default 10s).
	Timeout time.Duration
	// Retries after the first attempt. 5xx and transport errors are retried.
	Retries int
	// Backoff before the first retry, doubled per retry (default 500ms).
	Backoff time.Duration
}

// Adapter publishes session events via HTTP POST.
type Adapter struct {
	url     string
	headers http.Header
	client  *http.Client
	policy  retry.Policy
}

// New creates a webhook adapter. The URL is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("User-Agent", "heliwatch/"+types.Version)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	return &Adapter{
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy,
	}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Publish POSTs event. A 4xx response fails without retrying.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	err = a.policy.Do(ctx, func(ctx context.Context) error {
		err := a.post(ctx, body)
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: %s: %w", event.EventType, err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header = a.headers.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	// drained for connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
