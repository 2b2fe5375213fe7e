// Package session implements the stream session controller.
//
// A Controller owns one live subscription to a push-based packet feed. It
// backfills the display from a historical query, then runs the ordered
// connect → subscribe → position → stream handshake and routes delivered
// packets to the display sink. Pause is display-only. Disconnect and
// reconnect are user driven through ToggleConnect; there is no automatic
// reconnection.
//
// Concurrency model:
//   - mu guards all session fields and is never held across I/O.
//   - opMu serializes handshakes and teardowns, so at most one
//     handshake is in flight and a teardown never overlaps one.
//   - Each handshake carries a generation number. Stop bumps the
//     generation and cancels the handshake context; a handshake that
//     resumes with a stale generation abandons forward progress.
//   - ingestMu serializes packet handling so marker and counter updates
//     are atomic per packet.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/mseed"
	"github.com/justapithecus/heliwatch/types"
)

// DefaultTeardownTimeout bounds EndStream during a disconnect.
const DefaultTeardownTimeout = 5 * time.Second

// DefaultNotifyTimeout bounds a single notifier publish.
const DefaultNotifyTimeout = 5 * time.Second

// notifyQueueSize bounds pending lifecycle notifications.
const notifyQueueSize = 16

// errNoSegments is the cause attached to an empty backfill.
var errNoSegments = errors.New("query returned no segments")

// Config configures a Controller. Transport, Query and Sink are required.
type Config struct {
	SessionID string
	Transport Transport
	Query     HistoricalQuery
	Sink      DisplaySink
	// Decoder decodes packet payloads (default mseed.DecodeSegment).
	Decoder Decoder
	// Notifier receives lifecycle events asynchronously (optional).
	Notifier  Notifier
	Logger    *log.Logger
	Collector *metrics.Collector
	// Encoding is the stream-id suffix subscribed to (default "MSEED").
	Encoding        string
	TeardownTimeout time.Duration
	NotifyTimeout   time.Duration
	// Clock returns the current time (default time.Now).
	Clock func() time.Time
}

// Status is a point-in-time view of the session.
type Status struct {
	SessionID string
	Channel   types.ChannelID
	Window    types.TimeWindow
	State     types.SessionState
	Paused    bool
	// Degraded is set when a handshake step failed: the session reports
	// Streaming but receives nothing until the user reconnects.
	Degraded  bool
	Marker    time.Time
	Packets   int64
	ServerID  string
	LastError string
}

// Controller is the stream session controller. Create with NewController;
// release with Close.
type Controller struct {
	sessionID       string
	transport       Transport
	query           HistoricalQuery
	sink            DisplaySink
	decode          Decoder
	notifier        Notifier
	logger          *log.Logger
	collector       *metrics.Collector
	encoding        string
	teardownTimeout time.Duration
	notifyTimeout   time.Duration
	now             func() time.Time

	opMu     sync.Mutex
	ingestMu sync.Mutex

	mu         sync.Mutex
	state      types.SessionState
	stopping   bool
	paused     bool
	degraded   bool
	started    bool
	closed     bool
	channel    types.ChannelID
	window     types.TimeWindow
	marker     time.Time
	packets    int64
	serverID   string
	lastErr    error
	generation uint64
	cancel     context.CancelFunc

	events     chan *adapter.SessionEvent
	notifyDone chan struct{}
}

// NewController validates cfg and returns a stopped controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.Query == nil {
		return nil, errors.New("session: historical query is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("session: display sink is required")
	}

	c := &Controller{
		sessionID:       cfg.SessionID,
		transport:       cfg.Transport,
		query:           cfg.Query,
		sink:            cfg.Sink,
		decode:          cfg.Decoder,
		notifier:        cfg.Notifier,
		logger:          cfg.Logger,
		collector:       cfg.Collector,
		encoding:        cfg.Encoding,
		teardownTimeout: cfg.TeardownTimeout,
		notifyTimeout:   cfg.NotifyTimeout,
		now:             cfg.Clock,
	}
	if c.decode == nil {
		c.decode = mseed.DecodeSegment
	}
	if c.logger == nil {
		c.logger = log.NewNop()
	}
	if c.encoding == "" {
		c.encoding = types.EncodingMiniSEED
	}
	if c.teardownTimeout <= 0 {
		c.teardownTimeout = DefaultTeardownTimeout
	}
	if c.notifyTimeout <= 0 {
		c.notifyTimeout = DefaultNotifyTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.notifier != nil {
		c.events = make(chan *adapter.SessionEvent, notifyQueueSize)
		c.notifyDone = make(chan struct{})
		go c.publishLoop()
	}
	return c, nil
}

// Start backfills window for channel and then connects.
//
// Exactly one historical query is issued. On failure, or when the query
// returns no data, Start reports a DataUnavailable error to the sink and
// returns it without streaming. On success the stream position marker
// moves to the end of the returned data, the data is appended to the sink
// and the packet counter resets. The connect error, if any, is returned.
func (c *Controller) Start(ctx context.Context, channel types.ChannelID, window types.TimeWindow) error {
	if err := channel.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	now := c.now()
	if err := window.Validate(now); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	backfill, err := window.BackfillRange(now)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state != types.SessionStopped || c.stopping:
		c.mu.Unlock()
		return ErrActive
	}
	c.mu.Unlock()

	segments, err := c.query.Query(ctx, channel, backfill)
	end := types.LatestEnd(segments)
	if err == nil && end.IsZero() {
		err = errNoSegments
	}
	if err != nil {
		e := newError(ErrDataUnavailable, "backfill", err)
		c.collector.IncBackfillFailure()
		c.mu.Lock()
		c.lastErr = e
		c.mu.Unlock()
		c.logger.Error("backfill failed", map[string]any{
			"channel": channel.String(),
			"window":  window.String(),
			"error":   err.Error(),
		})
		c.reportError(e)
		c.notify(adapter.EventDataUnavailable, e.Error())
		return e
	}
	c.collector.IncBackfillSuccess()

	c.mu.Lock()
	if c.channel != channel {
		// A different stream has its own position.
		c.marker = time.Time{}
	}
	c.channel = channel
	c.window = window
	c.started = true
	c.packets = 0
	c.lastErr = nil
	if end.After(c.marker) {
		c.marker = end
	}
	marker := c.marker
	c.mu.Unlock()
	c.collector.IncSessionStarted()

	c.ingestMu.Lock()
	for _, seg := range segments {
		if seg != nil {
			c.deliver("append_segment", func() { c.sink.AppendSegment(seg) })
		}
	}
	c.ingestMu.Unlock()

	c.logger.Info("backfill complete", map[string]any{
		"segments": len(segments),
		"marker":   marker.Format(time.RFC3339Nano),
	})

	return c.connect(ctx)
}

// ToggleConnect is the sole connect/disconnect entry point. From Stopped it
// runs the handshake; from Connecting or Streaming it tears down.
func (c *Controller) ToggleConnect(ctx context.Context) error {
	c.mu.Lock()
	closed, stopping, started, state := c.closed, c.stopping, c.started, c.state
	c.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case stopping:
		return ErrBusy
	case state == types.SessionStopped:
		if !started {
			return ErrNotStarted
		}
		return c.connect(ctx)
	default:
		return c.Stop(ctx)
	}
}

// connect runs the handshake from Stopped. Every step is ordered; after
// each one the generation is rechecked so that a handshake overtaken by
// Stop never resurrects the stream.
func (c *Controller) connect(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.stopping:
		c.mu.Unlock()
		return ErrBusy
	case c.state != types.SessionStopped:
		c.mu.Unlock()
		return nil
	}
	c.generation++
	gen := c.generation
	c.state = types.SessionConnecting
	c.degraded = false
	c.serverID = ""
	hctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	channel, marker := c.channel, c.marker
	c.mu.Unlock()
	defer cancel()

	c.collector.IncHandshakeStarted()
	pattern := channel.MatchPattern(c.encoding)
	c.logger.Info("connecting", map[string]any{"pattern": pattern})

	serverID, err := c.transport.Connect(hctx)
	if err != nil {
		return c.handshakeFailed(gen, "connect", err)
	}
	if !c.setServerID(gen, serverID) {
		return c.handshakeAborted("connect")
	}
	c.logger.Debug("id response", map[string]any{"server_id": serverID})

	resp, err := c.transport.Subscribe(hctx, pattern)
	if err != nil {
		return c.handshakeFailed(gen, "subscribe", err)
	}
	if !c.isCurrent(gen) {
		return c.handshakeAborted("subscribe")
	}
	c.logger.Debug("match response", map[string]any{"response": resp})

	if !marker.IsZero() {
		err := c.transport.PositionAfter(hctx, marker)
		if !c.isCurrent(gen) {
			return c.handshakeAborted("position")
		}
		switch {
		case err == nil:
		case IsPositionNotFound(err):
			c.collector.IncPositionNotFound()
			c.logger.Info("resume position not found, streaming from server position", map[string]any{
				"marker": marker.Format(time.RFC3339Nano),
				"error":  newError(ErrPositionNotFound, "position", err).Error(),
			})
		default:
			return c.handshakeFailed(gen, "position", err)
		}
	}

	if err := c.transport.Stream(hctx); err != nil {
		return c.handshakeFailed(gen, "stream", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return c.handshakeAborted("stream")
	}
	c.state = types.SessionStreaming
	c.cancel = nil
	c.mu.Unlock()

	c.collector.IncHandshakeCompleted()
	c.logger.Info("streaming", map[string]any{"server_id": serverID})
	c.notify(adapter.EventConnected, "")
	return nil
}

// handshakeFailed leaves the session degraded: Streaming but idle.
func (c *Controller) handshakeFailed(gen uint64, op string, err error) error {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return c.handshakeAborted(op)
	}
	e := newError(ErrConnection, op, err)
	c.state = types.SessionStreaming
	c.degraded = true
	c.lastErr = e
	c.cancel = nil
	c.mu.Unlock()

	c.collector.IncHandshakeFailed()
	c.logger.Error("handshake failed", map[string]any{"step": op, "error": err.Error()})
	c.reportError(e)
	c.notify(adapter.EventDegraded, e.Error())
	return e
}

func (c *Controller) handshakeAborted(op string) error {
	c.collector.IncHandshakeAborted()
	c.logger.Info("handshake abandoned after disconnect", map[string]any{"step": op})
	return nil
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Controller) setServerID(gen uint64, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.serverID = id
	return true
}

// Stop tears the session down: it cancels any in-flight handshake, then
// issues EndStream and Close on the transport in that order, tolerating
// failures, and enters Stopped. Stopping a stopped session makes no
// transport calls.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == types.SessionStopped || c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.teardown(ctx)

	c.mu.Lock()
	c.state = types.SessionStopped
	c.stopping = false
	c.degraded = false
	c.serverID = ""
	packets := c.packets
	c.mu.Unlock()

	c.collector.IncDisconnect()
	c.logger.Info("disconnected", map[string]any{"packets": packets})
	c.notify(adapter.EventDisconnected, "")
	return nil
}

// teardown is best effort and outlives caller cancellation.
func (c *Controller) teardown(ctx context.Context) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.teardownTimeout)
	defer cancel()

	if err := c.transport.EndStream(tctx); err != nil {
		c.logger.Debug("end stream failed", map[string]any{"error": err.Error()})
	}
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("close failed", map[string]any{"error": err.Error()})
	}
}

// TogglePause flips display suppression and returns the new paused flag.
// Packets keep advancing the marker and counter while paused; suppressed
// segments are not replayed on resume.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	c.paused = !c.paused
	paused := c.paused
	c.mu.Unlock()
	c.logger.Info("pause toggled", map[string]any{"paused": paused})
	return paused
}

// Run feeds transport packets to HandlePacket until ctx is done or the
// packet channel closes.
func (c *Controller) Run(ctx context.Context) error {
	packets := c.transport.Packets()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			c.HandlePacket(pkt)
		}
	}
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		SessionID: c.sessionID,
		Channel:   c.channel,
		Window:    c.window,
		State:     c.state,
		Paused:    c.paused,
		Degraded:  c.degraded,
		Marker:    c.marker,
		Packets:   c.packets,
		ServerID:  c.serverID,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Close stops the session and flushes pending notifications, waiting at
// most until ctx is done. Closing twice is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	_ = c.Stop(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.events != nil {
		close(c.events)
	}
	c.mu.Unlock()

	if c.notifyDone == nil {
		return nil
	}
	select {
	case <-c.notifyDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: pending notifications: %w", ctx.Err())
	}
}

// deliver calls a sink method, recovering panics so that a faulty sink
// cannot end the session. Reports whether fn completed.
func (c *Controller) deliver(op string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.collector.IncSinkPanic()
			c.logger.Error("display sink panicked", map[string]any{
				"op":    op,
				"panic": fmt.Sprint(r),
			})
			ok = false
		}
	}()
	fn()
	return true
}

func (c *Controller) reportError(err error) {
	msg := err.Error()
	c.deliver("report_error", func() { c.sink.ReportError(msg) })
}
