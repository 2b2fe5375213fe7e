package types

import (
	"errors"
	"fmt"
	"time"
)

// TimeWindow is a half-open interval [Start, End) in UTC.
//
// A Live window may end in the future: the display covers it while data
// keeps arriving. Non-live windows must end at or before now.
type TimeWindow struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Live  bool      `json:"live" yaml:"live"`
}

// WindowBefore returns the non-live window of length d ending at end.
func WindowBefore(end time.Time, d time.Duration) TimeWindow {
	end = end.UTC()
	return TimeWindow{Start: end.Add(-d), End: end}
}

// HourAlignedWindow returns a live window of length d whose end is the top
// of the hour following now, so helicorder rows cover whole hours. Spans
// shorter than an hour align to a multiple of d instead, which keeps
// Start <= now.
func HourAlignedWindow(now time.Time, d time.Duration) TimeWindow {
	align := time.Hour
	if d > 0 && d < time.Hour {
		align = d
	}
	end := now.UTC().Truncate(align).Add(align)
	return TimeWindow{Start: end.Add(-d), End: end, Live: true}
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls within [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether [start, end) intersects the window.
func (w TimeWindow) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}

// Clamp returns the part of the window that lies before now.
// Used for backfill of live windows: there is no data in the future.
func (w TimeWindow) Clamp(now time.Time) TimeWindow {
	if w.End.After(now) {
		w.End = now.UTC()
	}
	return w
}

// ErrFutureWindow is returned by BackfillRange for a window that has no
// part before now.
var ErrFutureWindow = errors.New("time window starts in the future")

// BackfillRange returns the part of the window that a historical query
// can cover: the window clamped to now. It fails when nothing is left.
func (w TimeWindow) BackfillRange(now time.Time) (TimeWindow, error) {
	r := w.Clamp(now)
	if !r.Start.Before(r.End) {
		return TimeWindow{}, fmt.Errorf("%w: %s", ErrFutureWindow, w)
	}
	return r, nil
}

// Validate checks ordering and, for non-live windows, that End <= now.
func (w TimeWindow) Validate(now time.Time) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("time window requires start and end")
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("time window start %s is not before end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	if !w.Live && w.End.After(now) {
		return fmt.Errorf("time window end %s is in the future; use a live window",
			w.End.Format(time.RFC3339))
	}
	return nil
}

// String renders the window as "start/end" in RFC3339.
func (w TimeWindow) String() string {
	return w.Start.UTC().Format(time.RFC3339) + "/" + w.End.UTC().Format(time.RFC3339)
}
