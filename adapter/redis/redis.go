// Package redis publishes session events and live segments over Redis
// pub/sub.
//
// Events go out as JSON on one channel. Segments go out msgpack-encoded on
// a second channel so downstream consumers can mirror the display.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/retry"
	"github.com/justapithecus/heliwatch/types"
)

// Defaults applied by New.
const (
	DefaultChannel        = "heliwatch:session"
	DefaultSegmentChannel = "heliwatch:segments"
	DefaultTimeout        = 5 * time.Second
	DefaultRetries        = 3
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db].
	URL            string
	Channel        string
	SegmentChannel string
	// Timeout bounds one PUBLISH (default 5s).
	Timeout time.Duration
	Retries int
	// Backoff before the first retry, doubled per retry (default 500ms).
	Backoff time.Duration
}

// SegmentMessage is the msgpack payload published for each live segment.
type SegmentMessage struct {
	StreamID string         `msgpack:"stream_id"`
	Segment  *types.Segment `msgpack:"segment"`
}

// Adapter publishes via Redis PUBLISH.
type Adapter struct {
	client         *goredis.Client
	channel        string
	segmentChannel string
	timeout        time.Duration
	policy         retry.Policy
}

// New parses the URL and applies defaults. It does not dial; go-redis
// connects lazily on first use.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	policy := retry.Policy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}

	a := &Adapter{
		client:         goredis.NewClient(opts),
		channel:        cfg.Channel,
		segmentChannel: cfg.SegmentChannel,
		timeout:        cfg.Timeout,
		policy:         policy,
	}
	if a.channel == "" {
		a.channel = DefaultChannel
	}
	if a.segmentChannel == "" {
		a.segmentChannel = DefaultSegmentChannel
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a, nil
}

// Publish sends event as JSON on the event channel.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	return a.publish(ctx, a.channel, body)
}

// PublishSegment sends seg msgpack-encoded on the segment channel.
func (a *Adapter) PublishSegment(ctx context.Context, seg *types.Segment) error {
	if seg == nil {
		return errors.New("redis: nil segment")
	}
	body, err := msgpack.Marshal(&SegmentMessage{
		StreamID: seg.Channel.StreamID(types.EncodingMiniSEED),
		Segment:  seg,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal segment: %w", err)
	}
	return a.publish(ctx, a.segmentChannel, body)
}

func (a *Adapter) publish(ctx context.Context, channel string, body []byte) error {
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.client.Publish(ctx, channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var (
	_ adapter.Adapter          = (*Adapter)(nil)
	_ adapter.SegmentPublisher = (*Adapter)(nil)
)
