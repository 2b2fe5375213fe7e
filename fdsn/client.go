// Package fdsn implements an FDSN dataselect web service client, the
// historical query service used for backfill.
//
// Transient failures (5xx responses and network errors) are retried with
// exponential backoff. 4xx responses fail immediately. "No data" (204, or
// 404 with nodata=404) is reported as ErrNoData.
package fdsn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/justapithecus/heliwatch/iox"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/mseed"
	"github.com/justapithecus/heliwatch/retry"
	"github.com/justapithecus/heliwatch/types"
)

// DefaultBaseURL is the EarthScope (formerly IRIS) FDSN web service host.
const DefaultBaseURL = "https://service.iris.edu"

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 2

// dataselectPath is the dataselect query endpoint, version 1.
const dataselectPath = "/fdsnws/dataselect/1/query"

// timeFormat is the FDSN time format (UTC, no zone designator).
const timeFormat = "2006-01-02T15:04:05.000000"

// ErrNoData is returned when the service has no data for the request.
var ErrNoData = errors.New("fdsn: no data")

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether the status may succeed on retry.
func (e *StatusError) Retriable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Config configures the client.
type Config struct {
	// BaseURL is the service host, e.g. https://service.iris.edu (default).
	BaseURL string
	// Timeout is the per-request timeout (default 60s).
	Timeout time.Duration
	// Retries is the number of retry attempts on transient failure (default 2).
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt
	// (default 500ms).
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client queries FDSN dataselect for miniSEED.
type Client struct {
	config Config
	client *http.Client
	logger *log.Logger
	policy retry.Policy
}

// New creates a client. Retries must be >= 0.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fdsn: invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("fdsn: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug("retrying dataselect query", map[string]any{
			"attempt": attempt,
			"backoff": delay.String(),
			"error":   err.Error(),
		})
	}
	return &Client{config: cfg, client: client, logger: logger, policy: policy}, nil
}

// QueryURL returns the dataselect URL for channel and window.
// An empty location code is sent as "--".
func (c *Client) QueryURL(channel types.ChannelID, window types.TimeWindow) string {
	loc := channel.Location
	if loc == "" {
		loc = "--"
	}
	q := url.Values{}
	q.Set("net", channel.Network)
	q.Set("sta", channel.Station)
	q.Set("loc", loc)
	q.Set("cha", channel.Channel)
	q.Set("start", window.Start.UTC().Format(timeFormat))
	q.Set("end", window.End.UTC().Format(timeFormat))
	q.Set("nodata", "404")
	return c.config.BaseURL + dataselectPath + "?" + q.Encode()
}

// Query fetches the waveform for channel in window and returns merged
// segments. Returns ErrNoData (wrapped) when the service has nothing.
func (c *Client) Query(ctx context.Context, channel types.ChannelID, window types.TimeWindow) ([]*types.Segment, error) {
	if err := channel.Validate(); err != nil {
		return nil, fmt.Errorf("fdsn: %w", err)
	}
	target := c.QueryURL(channel, window)

	var segments []*types.Segment
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		segments, err = c.doRequest(ctx, target)
		if err == nil {
			return nil
		}
		var se *StatusError
		switch {
		case errors.Is(err, ErrNoData),
			errors.As(err, &se) && !se.Retriable(),
			errors.Is(err, mseed.ErrMalformedHeader),
			errors.Is(err, mseed.ErrUnsupportedEncoding):
			return retry.Permanent(err)
		}
		return err
	})
	if errors.Is(err, ErrNoData) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("fdsn: %w", err)
	}
	return segments, nil
}

// doRequest performs one GET and decodes the body.
func (c *Client) doRequest(ctx context.Context, target string) ([]*types.Segment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "heliwatch/"+types.Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrNoData
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	records, err := mseed.ReadRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	segments := mseed.Merge(mseed.Segments(records))
	c.logger.Debug("dataselect query complete", map[string]any{
		"records":  len(records),
		"segments": len(segments),
	})
	return segments, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
