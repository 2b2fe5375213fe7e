package mseed

import (
	"cmp"
	"slices"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

// Segments converts records to segments in record order.
func Segments(records []*Record) []*types.Segment {
	out := make([]*types.Segment, 0, len(records))
	for _, r := range records {
		out = append(out, r.Segment())
	}
	return out
}

// Merge joins contiguous segments of the same channel and sample rate.
// Two segments are contiguous when the second starts within half a sample
// period of the first one's end. The result is ordered by channel, then start.
// Input segments are not modified.
func Merge(segments []*types.Segment) []*types.Segment {
	sorted := make([]*types.Segment, 0, len(segments))
	for _, s := range segments {
		if s != nil && s.Len() > 0 {
			sorted = append(sorted, s)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *types.Segment) int {
		if c := cmp.Compare(a.Channel.String(), b.Channel.String()); c != 0 {
			return c
		}
		return a.Start.Compare(b.Start)
	})

	var out []*types.Segment
	for _, s := range sorted {
		if n := len(out); n > 0 && contiguous(out[n-1], s) {
			out[n-1].Samples = append(out[n-1].Samples, s.Samples...)
			continue
		}
		out = append(out, &types.Segment{
			Channel:    s.Channel,
			Start:      s.Start,
			SampleRate: s.SampleRate,
			Samples:    slices.Clone(s.Samples),
		})
	}
	return out
}

func contiguous(prev, next *types.Segment) bool {
	if prev.Channel != next.Channel || prev.SampleRate != next.SampleRate || prev.SampleRate <= 0 {
		return false
	}
	gap := next.Start.Sub(prev.End())
	tolerance := prev.SamplePeriod() / 2
	return gap.Abs() <= tolerance
}

// Trim returns a copy of seg restricted to samples in [start, end).
// It returns nil when no samples fall in the range.
func Trim(seg *types.Segment, start, end time.Time) *types.Segment {
	if seg == nil || seg.SampleRate <= 0 {
		return nil
	}
	first, last := 0, seg.Len()
	for first < last && seg.TimeAt(first).Before(start) {
		first++
	}
	for last > first && !seg.TimeAt(last-1).Before(end) {
		last--
	}
	if first >= last {
		return nil
	}
	return &types.Segment{
		Channel:    seg.Channel,
		Start:      seg.TimeAt(first),
		SampleRate: seg.SampleRate,
		Samples:    slices.Clone(seg.Samples[first:last]),
	}
}
