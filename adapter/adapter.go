// Package adapter defines the notification boundary for session lifecycle
// events and live segments.
//
// Adapters publish to downstream systems (HTTP webhooks, Redis pub/sub).
// The session owns adapter lifecycle; users provide configuration only.
// Adapter failures are logged and counted, never surfaced to the session.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

// Session event types.
const (
	// EventConnected is published when a handshake reaches STREAM.
	EventConnected = "session_connected"
	// EventDisconnected is published after a user-requested teardown.
	EventDisconnected = "session_disconnected"
	// EventDegraded is published when a handshake step fails and the session
	// is left connected but idle.
	EventDegraded = "session_degraded"
	// EventDataUnavailable is published when the backfill query fails.
	EventDataUnavailable = "data_unavailable"
)

// SessionEvent is the payload published on session lifecycle transitions.
type SessionEvent struct {
	EventType   string `json:"event_type" msgpack:"event_type"`
	SessionID   string `json:"session_id" msgpack:"session_id"`
	Channel     string `json:"channel" msgpack:"channel"`
	State       string `json:"state" msgpack:"state"`
	ServerID    string `json:"server_id,omitempty" msgpack:"server_id,omitempty"`
	Message     string `json:"message,omitempty" msgpack:"message,omitempty"`
	PacketCount int64  `json:"packet_count" msgpack:"packet_count"`
	Marker      string `json:"marker,omitempty" msgpack:"marker,omitempty"` // ISO 8601, stream position
	Timestamp   string `json:"timestamp" msgpack:"timestamp"`               // ISO 8601
}

// FormatTime renders t the way SessionEvent fields expect.
// The zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Adapter publishes session events to a downstream system.
type Adapter interface {
	// Publish sends a session event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionEvent) error

	// Close releases adapter resources.
	Close() error
}

// SegmentPublisher relays live segments to a downstream system.
type SegmentPublisher interface {
	PublishSegment(ctx context.Context, seg *types.Segment) error
}
