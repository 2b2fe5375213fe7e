package session

import (
	"fmt"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

// HandlePacket ingests one delivered packet.
//
// Packets that are not miniSEED, or that fail to decode, are logged and
// discarded without touching session state. A decoded packet increments
// the packet counter and moves the stream position marker forward to the
// segment end (never backwards). Unless paused, the segment is appended to
// the sink followed by a current-time marker.
//
// Packets are accepted in any state so that data already in flight when a
// disconnect begins is not lost.
func (c *Controller) HandlePacket(pkt *types.Packet) {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	seg, err := c.decodePacket(pkt)
	if err != nil {
		e := newError(ErrMalformedPacket, "ingest", err)
		c.collector.IncPacketMalformed()
		fields := map[string]any{"error": e.Error()}
		if pkt != nil {
			fields["stream_id"] = pkt.StreamID
			fields["packet_id"] = pkt.PacketID
		}
		c.logger.Warn("packet discarded", fields)
		return
	}

	c.mu.Lock()
	c.packets++
	if end := seg.End(); end.After(c.marker) {
		c.marker = end
	}
	paused := c.paused
	c.mu.Unlock()
	c.collector.IncPacketAccepted()

	if paused {
		c.collector.IncSegmentSuppressed()
		return
	}
	if c.deliver("append_segment", func() { c.sink.AppendSegment(seg) }) {
		c.collector.IncSegmentAppended()
	}
	now := types.NowMarker(c.now())
	c.deliver("set_marker", func() { c.sink.SetMarker(now) })
}

func (c *Controller) decodePacket(pkt *types.Packet) (seg *types.Segment, err error) {
	if pkt == nil {
		return nil, fmt.Errorf("nil packet")
	}
	if !pkt.IsMiniSEED() {
		return nil, fmt.Errorf("unsupported format for stream %q", pkt.StreamID)
	}
	defer func() {
		if r := recover(); r != nil {
			seg, err = nil, fmt.Errorf("decoder panicked: %v", r)
		}
	}()
	seg, err = c.decode(pkt.Data)
	if err != nil {
		return nil, err
	}
	if seg == nil || seg.Start.IsZero() {
		return nil, fmt.Errorf("decoded segment has no start time")
	}
	return seg, nil
}

// Marker returns the current stream position marker. The marker belongs to
// the session's current channel: it only moves forward while the channel is
// unchanged, and Start with a different channel begins it anew.
func (c *Controller) Marker() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marker
}
