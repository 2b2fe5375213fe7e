package session

import (
	"context"
	"time"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/types"
)

// Transport is a push-based packet source. Each method is one step of the
// handshake or teardown; packets arrive on Packets() after Stream until
// EndStream. *datalink.Client implements it.
type Transport interface {
	// Connect opens a session and returns the server identifier.
	Connect(ctx context.Context) (string, error)
	// Subscribe registers interest in streams matching pattern.
	Subscribe(ctx context.Context, pattern string) (string, error)
	// PositionAfter requests delivery strictly after t.
	PositionAfter(ctx context.Context, t time.Time) error
	// Stream begins continuous delivery.
	Stream(ctx context.Context) error
	// EndStream stops delivery. Best effort.
	EndStream(ctx context.Context) error
	// Close closes the session. Best effort.
	Close() error
	// Packets delivers packets; the channel lives as long as the transport.
	Packets() <-chan *types.Packet
}

// HistoricalQuery returns previously recorded segments for a channel and window.
type HistoricalQuery interface {
	Query(ctx context.Context, channel types.ChannelID, window types.TimeWindow) ([]*types.Segment, error)
}

// DisplaySink consumes segments, markers and error messages.
// It never feeds back into the session.
type DisplaySink interface {
	AppendSegment(seg *types.Segment)
	SetMarker(m types.Marker)
	ReportError(message string)
}

// Decoder turns a packet payload into a segment.
type Decoder func(data []byte) (*types.Segment, error)

// Notifier receives lifecycle events. adapter.Adapter implements it.
type Notifier interface {
	Publish(ctx context.Context, event *adapter.SessionEvent) error
}
