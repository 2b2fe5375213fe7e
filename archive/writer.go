package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/types"
)

// DefaultMaxBuffered bounds the segments held between flushes.
const DefaultMaxBuffered = 4096

// SegmentStore persists a batch of segments. *Client implements it.
type SegmentStore interface {
	WriteSegments(ctx context.Context, segs []*types.Segment) error
}

// WriterConfig configures a StreamingWriter.
type WriterConfig struct {
	// FlushCount triggers a flush after N segments accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// MaxBuffered bounds the buffer; the oldest segments are dropped past
	// it (default DefaultMaxBuffered).
	MaxBuffered int

	Logger    *log.Logger
	Collector *metrics.Collector
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerClose indicates the final flush on Close.
	FlushTriggerClose FlushTrigger = "close"
)

// ErrInvalidWriterConfig is returned when WriterConfig is invalid.
var ErrInvalidWriterConfig = errors.New("invalid archive writer config: at least one of FlushCount or FlushInterval must be set")

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("archive writer closed")

// WriterStats is a snapshot of StreamingWriter counters.
type WriterStats struct {
	Buffered        int
	Written         int64
	Dropped         int64
	Flushes         int64
	FailedFlushes   int64
	FlushByCount    int64
	FlushByInterval int64
	FlushByClose    int64
}

// StreamingWriter buffers segments and writes them in batches.
//
// A flush fires when FlushCount segments are buffered, every FlushInterval,
// and on Close. On flush failure the batch is put back at the head of the
// buffer and retried on the next trigger.
//
// Thread safety:
//   - mu guards the buffer and stats
//   - flushMu serializes flushes so the interval goroutine and the count
//     trigger never write concurrently
//   - the store is written outside mu so Write keeps appending during a flush
type StreamingWriter struct {
	store  SegmentStore
	config WriterConfig
	logger *log.Logger

	mu      sync.Mutex
	buffer  []*types.Segment
	stats   WriterStats
	stopped bool

	flushMu sync.Mutex

	stopCh chan struct{}
	loopWg sync.WaitGroup
}

// NewStreamingWriter creates a writer over store.
// Returns error if config is invalid.
func NewStreamingWriter(store SegmentStore, config WriterConfig) (*StreamingWriter, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrInvalidWriterConfig
	}
	if config.MaxBuffered <= 0 {
		config.MaxBuffered = DefaultMaxBuffered
	}
	if config.Logger == nil {
		config.Logger = log.NewNop()
	}

	w := &StreamingWriter{
		store:  store,
		config: config,
		logger: config.Logger,
		stopCh: make(chan struct{}),
	}
	if config.FlushInterval > 0 {
		w.loopWg.Add(1)
		go w.intervalLoop()
	}
	return w, nil
}

// Write buffers seg, flushing when the count threshold is reached.
// The returned error is the flush error, if one ran and failed; seg stays
// buffered either way.
func (w *StreamingWriter) Write(ctx context.Context, seg *types.Segment) error {
	if seg == nil {
		return nil
	}
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.buffer = append(w.buffer, seg)
	w.trimLocked()
	shouldFlush := w.config.FlushCount > 0 && len(w.buffer) >= w.config.FlushCount
	w.mu.Unlock()

	if shouldFlush {
		return w.flush(ctx, FlushTriggerCount)
	}
	return nil
}

// trimLocked drops the oldest segments beyond MaxBuffered. Caller holds mu.
func (w *StreamingWriter) trimLocked() {
	over := len(w.buffer) - w.config.MaxBuffered
	if over <= 0 {
		return
	}
	w.buffer = append([]*types.Segment(nil), w.buffer[over:]...)
	w.stats.Dropped += int64(over)
	w.logger.Warn("archive buffer full, oldest segments dropped", map[string]any{
		"dropped": over,
	})
}

// Flush writes everything buffered now.
func (w *StreamingWriter) Flush(ctx context.Context) error {
	return w.flush(ctx, FlushTriggerClose)
}

// flush swaps the buffer under mu, writes outside mu, and restores the
// batch on failure.
func (w *StreamingWriter) flush(ctx context.Context, trigger FlushTrigger) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.buffer
	if len(batch) == 0 {
		w.mu.Unlock()
		return nil
	}
	switch trigger {
	case FlushTriggerCount:
		w.stats.FlushByCount++
	case FlushTriggerInterval:
		w.stats.FlushByInterval++
	case FlushTriggerClose:
		w.stats.FlushByClose++
	}
	w.stats.Flushes++
	w.buffer = nil
	w.mu.Unlock()

	if err := w.store.WriteSegments(ctx, batch); err != nil {
		w.mu.Lock()
		w.stats.FailedFlushes++
		w.buffer = append(batch, w.buffer...)
		w.trimLocked()
		w.mu.Unlock()
		w.config.Collector.IncArchiveWriteFailure()
		w.logger.Error("archive flush failed", map[string]any{
			"trigger":  string(trigger),
			"segments": len(batch),
			"error":    err.Error(),
		})
		return err
	}

	w.mu.Lock()
	w.stats.Written += int64(len(batch))
	w.mu.Unlock()
	w.config.Collector.IncArchiveWriteSuccess()
	w.logger.Debug("archive flush", map[string]any{
		"trigger":  string(trigger),
		"segments": len(batch),
	})
	return nil
}

// Close stops the interval goroutine and flushes what remains.
func (w *StreamingWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	w.loopWg.Wait()
	return w.flush(ctx, FlushTriggerClose)
}

// Stats returns a consistent snapshot of writer counters.
func (w *StreamingWriter) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Buffered = len(w.buffer)
	return s
}

func (w *StreamingWriter) intervalLoop() {
	defer w.loopWg.Done()
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are logged in flush; data stays buffered.
			_ = w.flush(context.Background(), FlushTriggerInterval)
		case <-w.stopCh:
			return
		}
	}
}
