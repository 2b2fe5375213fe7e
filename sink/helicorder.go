package sink

import (
	"math"
	"sync"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

const (
	// DefaultBinsPerRow is the horizontal resolution kept per row.
	DefaultBinsPerRow = 720
	// DefaultMaxErrors bounds the retained error log.
	DefaultMaxErrors = 20
	// minRowDuration is the shortest row DefaultRowDuration returns.
	minRowDuration = time.Minute
)

// DefaultRowDuration splits span into twelve rows: 5 minutes for an hour,
// 2 hours for a day.
func DefaultRowDuration(span time.Duration) time.Duration {
	row := span / 12
	if row < minRowDuration {
		return minRowDuration
	}
	return row
}

// HelicorderConfig configures a Helicorder.
type HelicorderConfig struct {
	// Channel, when set, drops segments of any other channel.
	Channel types.ChannelID
	Window  types.TimeWindow
	// RowDuration is the time covered by one row (default DefaultRowDuration).
	RowDuration time.Duration
	Amplitude   Amplitude
	BinsPerRow  int
	MaxErrors   int
}

// Row is one line of the helicorder. Min and Max hold per-bin extremes;
// Filled marks bins that received at least one sample.
type Row struct {
	Start  time.Time
	Min    []float64
	Max    []float64
	Filled []bool
}

// HelicorderSnapshot is a copy of the display model for renderers.
type HelicorderSnapshot struct {
	Channel     types.ChannelID
	Window      types.TimeWindow
	RowDuration time.Duration
	Amplitude   Amplitude
	Rows        []Row
	Lo, Hi      float64
	Mean        float64
	// Scale is the deviation from Mean that fills a row.
	Scale     float64
	Samples   int64
	Segments  int64
	Markers   []types.Marker
	Errors    []string
	LastError string
}

// Helicorder is an in-memory drum-recorder display: the window is cut into
// rows of RowDuration and each row keeps min/max per bin. Safe for
// concurrent use.
type Helicorder struct {
	mu        sync.Mutex
	channel   types.ChannelID
	window    types.TimeWindow
	rowDur    time.Duration
	cfgRowDur time.Duration
	amp       Amplitude
	bins      int
	maxErrors int

	rows     []Row
	lo, hi   float64
	sum      float64
	samples  int64
	segments int64
	markers  []types.Marker
	errors   []string
}

// NewHelicorder returns an empty helicorder for cfg.
func NewHelicorder(cfg HelicorderConfig) *Helicorder {
	h := &Helicorder{
		channel:   cfg.Channel,
		cfgRowDur: cfg.RowDuration,
		amp:       cfg.Amplitude,
		bins:      cfg.BinsPerRow,
		maxErrors: cfg.MaxErrors,
	}
	if h.bins <= 0 {
		h.bins = DefaultBinsPerRow
	}
	if h.maxErrors <= 0 {
		h.maxErrors = DefaultMaxErrors
	}
	h.reset(cfg.Window)
	return h
}

func (h *Helicorder) reset(window types.TimeWindow) {
	h.window = window
	rowDur := h.cfgRowDur
	if rowDur <= 0 {
		rowDur = DefaultRowDuration(window.Duration())
	}
	h.rowDur = rowDur
	n := 0
	if d := window.Duration(); d > 0 {
		n = int((d + rowDur - 1) / rowDur)
	}
	h.rows = make([]Row, n)
	for i := range h.rows {
		h.rows[i] = Row{
			Start:  window.Start.Add(time.Duration(i) * rowDur),
			Min:    make([]float64, h.bins),
			Max:    make([]float64, h.bins),
			Filled: make([]bool, h.bins),
		}
	}
	h.lo, h.hi = math.Inf(1), math.Inf(-1)
	h.sum, h.samples, h.segments = 0, 0, 0
}

// Amplitude returns the current scaling mode.
func (h *Helicorder) Amplitude() Amplitude {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.amp
}

// SetAmplitude changes the scaling mode.
func (h *Helicorder) SetAmplitude(a Amplitude) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.amp = a
}

// AppendSegment plots the samples of seg that fall inside the window.
func (h *Helicorder) AppendSegment(seg *types.Segment) {
	if seg == nil || seg.Len() == 0 || seg.SampleRate <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channel != (types.ChannelID{}) && seg.Channel != h.channel {
		return
	}
	if !h.window.Overlaps(seg.Start, seg.End()) {
		return
	}
	h.segments++
	binDur := h.rowDur / time.Duration(h.bins)
	if binDur <= 0 {
		binDur = 1
	}
	for i, v := range seg.Samples {
		t := seg.TimeAt(i)
		if !h.window.Contains(t) {
			continue
		}
		off := t.Sub(h.window.Start)
		r := int(off / h.rowDur)
		if r >= len(h.rows) {
			continue
		}
		b := int((off - time.Duration(r)*h.rowDur) / binDur)
		if b >= h.bins {
			b = h.bins - 1
		}
		row := &h.rows[r]
		if !row.Filled[b] {
			row.Min[b], row.Max[b], row.Filled[b] = v, v, true
		} else {
			row.Min[b] = min(row.Min[b], v)
			row.Max[b] = max(row.Max[b], v)
		}
		h.lo = min(h.lo, v)
		h.hi = max(h.hi, v)
		h.sum += v
		h.samples++
	}
}

// SetMarker records m. A now-marker replaces every existing marker.
func (h *Helicorder) SetMarker(m types.Marker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.IsNow() {
		h.markers = []types.Marker{m}
		return
	}
	h.markers = append(h.markers, m)
}

// ReportError appends msg to the bounded error log.
func (h *Helicorder) ReportError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if over := len(h.errors) - h.maxErrors; over > 0 {
		h.errors = append([]string(nil), h.errors[over:]...)
	}
}

// Snapshot returns a deep copy of the model.
func (h *Helicorder) Snapshot() HelicorderSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := HelicorderSnapshot{
		Channel:     h.channel,
		Window:      h.window,
		RowDuration: h.rowDur,
		Amplitude:   h.amp,
		Samples:     h.samples,
		Segments:    h.segments,
		Markers:     append([]types.Marker(nil), h.markers...),
		Errors:      append([]string(nil), h.errors...),
		Rows:        make([]Row, len(h.rows)),
	}
	if len(h.errors) > 0 {
		s.LastError = h.errors[len(h.errors)-1]
	}
	for i, r := range h.rows {
		s.Rows[i] = Row{
			Start:  r.Start,
			Min:    append([]float64(nil), r.Min...),
			Max:    append([]float64(nil), r.Max...),
			Filled: append([]bool(nil), r.Filled...),
		}
	}
	if h.samples > 0 {
		s.Lo, s.Hi = h.lo, h.hi
		s.Mean = h.sum / float64(h.samples)
		s.Scale = h.amp.scale(s.Lo, s.Hi, s.Mean)
	} else {
		s.Scale = 1
	}
	return s
}
