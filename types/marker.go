package types

import "time"

// Marker kinds understood by display sinks.
const (
	MarkerKindPredicted = "predicted"
	MarkerKindPick      = "pick"
)

// MarkerLabelNow labels the moving current-time marker.
const MarkerLabelNow = "now"

// Marker is a labelled instant drawn on top of waveform data.
type Marker struct {
	Kind  string    `json:"kind" msgpack:"kind"`
	Label string    `json:"label" msgpack:"label"`
	Time  time.Time `json:"time" msgpack:"time"`
}

// NowMarker returns the current-time marker for t.
func NowMarker(t time.Time) Marker {
	return Marker{Kind: MarkerKindPredicted, Label: MarkerLabelNow, Time: t.UTC()}
}

// IsNow reports whether m is a current-time marker.
func (m Marker) IsNow() bool {
	return m.Kind == MarkerKindPredicted && m.Label == MarkerLabelNow
}
