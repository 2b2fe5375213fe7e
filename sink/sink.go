// Package sink provides display sinks for a live session.
//
// A sink receives decoded segments, display markers and user-facing error
// messages. It never feeds back into the session. Implementations:
//   - Helicorder: in-memory drum display rendered by the TUI
//   - Multi: fan-out to several sinks
//   - Recorder: records calls for inspection
//   - Relay: forwards segments to a downstream publisher
//   - Archive: forwards segments to durable storage
//   - Logging: logs what it receives (headless mode)
package sink

import (
	"github.com/justapithecus/heliwatch/types"
)

// Display consumes segments, markers and error messages.
type Display interface {
	AppendSegment(seg *types.Segment)
	SetMarker(m types.Marker)
	ReportError(message string)
}

// Multi fans each call out to every sink in order.
type Multi []Display

// NewMulti returns a Multi over the non-nil sinks.
func NewMulti(sinks ...Display) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// AppendSegment forwards seg to every sink.
func (m Multi) AppendSegment(seg *types.Segment) {
	for _, s := range m {
		s.AppendSegment(seg)
	}
}

// SetMarker forwards mk to every sink.
func (m Multi) SetMarker(mk types.Marker) {
	for _, s := range m {
		s.SetMarker(mk)
	}
}

// ReportError forwards msg to every sink.
func (m Multi) ReportError(msg string) {
	for _, s := range m {
		s.ReportError(msg)
	}
}
