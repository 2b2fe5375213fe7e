package sink

import (
	"sync"

	"github.com/justapithecus/heliwatch/types"
)

// Op identifies a recorded sink call.
type Op struct {
	Type    string // "segment", "marker" or "error"
	Segment *types.Segment
	Marker  types.Marker
	Message string
}

// Recorder is a sink that keeps every call for inspection.
type Recorder struct {
	mu sync.Mutex

	// Segments holds appended segments in order.
	Segments []*types.Segment
	// Markers holds every marker received.
	Markers []types.Marker
	// Errors holds reported error messages.
	Errors []string
	// Order tracks the interleaving of all calls.
	Order []Op
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// AppendSegment records seg.
func (r *Recorder) AppendSegment(seg *types.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Segments = append(r.Segments, seg)
	r.Order = append(r.Order, Op{Type: "segment", Segment: seg})
}

// SetMarker records m.
func (r *Recorder) SetMarker(m types.Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Markers = append(r.Markers, m)
	r.Order = append(r.Order, Op{Type: "marker", Marker: m})
}

// ReportError records msg.
func (r *Recorder) ReportError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
	r.Order = append(r.Order, Op{Type: "error", Message: msg})
}

// Stats returns a snapshot of recorder counts.
func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var samples int64
	for _, s := range r.Segments {
		samples += int64(s.Len())
	}
	return RecorderStats{
		Segments: len(r.Segments),
		Samples:  samples,
		Markers:  len(r.Markers),
		Errors:   len(r.Errors),
	}
}

// RecorderStats is a snapshot of Recorder counts.
type RecorderStats struct {
	Segments int
	Samples  int64
	Markers  int
	Errors   int
}
