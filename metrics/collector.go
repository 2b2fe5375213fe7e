// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters for a single live session. It is a leaf
// package with no internal dependencies so that every layer (session,
// transport, archive, adapters) can record into it. All increment methods are
// nil-receiver safe: callers that were not given a collector simply record
// nothing.
package metrics

import "sync"

// Snapshot is a point-in-time copy of every counter plus the session's
// dimension labels.
type Snapshot struct {
	// Session lifecycle
	SessionsStarted int64
	BackfillSuccess int64
	BackfillFailure int64

	// Handshake
	HandshakesStarted   int64
	HandshakesCompleted int64
	HandshakesFailed    int64
	HandshakesAborted   int64
	PositionNotFound    int64
	Disconnects         int64

	// Ingestion
	PacketsAccepted    int64
	PacketsMalformed   int64
	SegmentsAppended   int64
	SegmentsSuppressed int64
	SinkPanics         int64

	// Transport
	FrameDecodeErrors int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Adapter
	AdapterPublishSuccess int64
	AdapterPublishFailure int64

	// Dimensions, fixed at construction.
	SessionID      string
	Channel        string
	Transport      string
	StorageBackend string
}

// Collector accumulates metrics during a single session.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when archiving is disabled.
func NewCollector(sessionID, channel, transport, storageBackend string) *Collector {
	return &Collector{s: Snapshot{
		SessionID:      sessionID,
		Channel:        channel,
		Transport:      transport,
		StorageBackend: storageBackend,
	}}
}

// inc bumps the counter that field selects.
func (c *Collector) inc(field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s)++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters. A nil collector
// returns the zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// IncSessionStarted records a Start call.
func (c *Collector) IncSessionStarted() {
	c.inc(func(s *Snapshot) *int64 { return &s.SessionsStarted })
}

// IncBackfillSuccess records a historical query that returned data.
func (c *Collector) IncBackfillSuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.BackfillSuccess })
}

// IncBackfillFailure records a historical query that failed.
func (c *Collector) IncBackfillFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.BackfillFailure })
}

// IncHandshakeStarted records the start of a connect/subscribe/position/stream handshake.
func (c *Collector) IncHandshakeStarted() {
	c.inc(func(s *Snapshot) *int64 { return &s.HandshakesStarted })
}

// IncHandshakeCompleted records a handshake that reached STREAM.
func (c *Collector) IncHandshakeCompleted() {
	c.inc(func(s *Snapshot) *int64 { return &s.HandshakesCompleted })
}

// IncHandshakeFailed records a handshake that failed with a connection error.
func (c *Collector) IncHandshakeFailed() {
	c.inc(func(s *Snapshot) *int64 { return &s.HandshakesFailed })
}

// IncHandshakeAborted records a handshake abandoned because the session was stopped.
func (c *Collector) IncHandshakeAborted() {
	c.inc(func(s *Snapshot) *int64 { return &s.HandshakesAborted })
}

// IncPositionNotFound records a swallowed "packet not found" reply to POSITION.
func (c *Collector) IncPositionNotFound() {
	c.inc(func(s *Snapshot) *int64 { return &s.PositionNotFound })
}

// IncDisconnect records a transition into the stopped state.
func (c *Collector) IncDisconnect() {
	c.inc(func(s *Snapshot) *int64 { return &s.Disconnects })
}

// IncPacketAccepted records a packet that advanced the stream position.
func (c *Collector) IncPacketAccepted() {
	c.inc(func(s *Snapshot) *int64 { return &s.PacketsAccepted })
}

// IncPacketMalformed records a discarded packet.
func (c *Collector) IncPacketMalformed() {
	c.inc(func(s *Snapshot) *int64 { return &s.PacketsMalformed })
}

// IncSegmentAppended records a segment forwarded to the display sink.
func (c *Collector) IncSegmentAppended() {
	c.inc(func(s *Snapshot) *int64 { return &s.SegmentsAppended })
}

// IncSegmentSuppressed records a segment withheld while paused.
func (c *Collector) IncSegmentSuppressed() {
	c.inc(func(s *Snapshot) *int64 { return &s.SegmentsSuppressed })
}

// IncSinkPanic records a recovered panic raised by a display sink.
func (c *Collector) IncSinkPanic() {
	c.inc(func(s *Snapshot) *int64 { return &s.SinkPanics })
}

// IncFrameDecodeError records a DataLink frame that could not be decoded.
func (c *Collector) IncFrameDecodeError() {
	c.inc(func(s *Snapshot) *int64 { return &s.FrameDecodeErrors })
}

// IncArchiveWriteSuccess records a successful archive flush.
func (c *Collector) IncArchiveWriteSuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.ArchiveWriteSuccess })
}

// IncArchiveWriteFailure records a failed archive flush.
func (c *Collector) IncArchiveWriteFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.ArchiveWriteFailure })
}

// IncAdapterPublishSuccess records a delivered adapter notification.
func (c *Collector) IncAdapterPublishSuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.AdapterPublishSuccess })
}

// IncAdapterPublishFailure records an adapter notification that failed after retries.
func (c *Collector) IncAdapterPublishFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.AdapterPublishFailure })
}
