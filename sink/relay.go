package sink

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/types"
)

const (
	// DefaultRelayQueue bounds segments waiting to be published.
	DefaultRelayQueue = 256
	// DefaultRelayTimeout bounds one publish.
	DefaultRelayTimeout = 5 * time.Second
)

// RelayConfig configures a Relay.
type RelayConfig struct {
	Publisher adapter.SegmentPublisher
	QueueSize int
	Timeout   time.Duration
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Relay forwards segments to a SegmentPublisher from a background worker.
// AppendSegment never blocks; segments are dropped and counted when the
// queue is full.
type Relay struct {
	publisher adapter.SegmentPublisher
	timeout   time.Duration
	logger    *log.Logger
	collector *metrics.Collector

	mu     sync.Mutex
	closed bool
	queue  chan *types.Segment
	done   chan struct{}
}

// NewRelay starts a relay worker.
func NewRelay(cfg RelayConfig) *Relay {
	r := &Relay{
		publisher: cfg.Publisher,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		done:      make(chan struct{}),
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultRelayQueue
	}
	if r.timeout <= 0 {
		r.timeout = DefaultRelayTimeout
	}
	if r.logger == nil {
		r.logger = log.NewNop()
	}
	r.queue = make(chan *types.Segment, size)
	go r.run()
	return r
}

// AppendSegment enqueues seg for publishing.
func (r *Relay) AppendSegment(seg *types.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || seg == nil {
		return
	}
	select {
	case r.queue <- seg:
	default:
		r.collector.IncAdapterPublishFailure()
		r.logger.Warn("relay queue full, segment dropped", map[string]any{
			"channel": seg.Channel.String(),
		})
	}
}

// SetMarker is a no-op.
func (r *Relay) SetMarker(types.Marker) {}

// ReportError is a no-op.
func (r *Relay) ReportError(string) {}

func (r *Relay) run() {
	defer close(r.done)
	for seg := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.publisher.PublishSegment(ctx, seg)
		cancel()
		if err != nil {
			r.collector.IncAdapterPublishFailure()
			r.logger.Warn("segment relay failed", map[string]any{"error": err.Error()})
			continue
		}
		r.collector.IncAdapterPublishSuccess()
	}
}

// Close stops accepting segments and waits for queued ones to drain or
// ctx to end.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
