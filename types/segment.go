package types

import (
	"math"
	"time"
)

// Segment is one contiguous run of evenly spaced samples for a channel.
type Segment struct {
	Channel    ChannelID `json:"channel" msgpack:"channel"`
	Start      time.Time `json:"start" msgpack:"start"`
	SampleRate float64   `json:"sample_rate" msgpack:"sample_rate"`
	Samples    []float64 `json:"samples" msgpack:"samples"`
}

// Len returns the number of samples.
func (s *Segment) Len() int {
	return len(s.Samples)
}

// SamplePeriod returns the time between consecutive samples.
// Returns zero for a non-positive sample rate.
func (s *Segment) SamplePeriod() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return samplesDuration(1, s.SampleRate)
}

// End returns the time just after the last sample (Start + n/rate).
// Data in the segment lies in [Start, End).
func (s *Segment) End() time.Time {
	if s.SampleRate <= 0 {
		return s.Start
	}
	return s.Start.Add(samplesDuration(len(s.Samples), s.SampleRate))
}

// TimeAt returns the timestamp of sample i.
func (s *Segment) TimeAt(i int) time.Time {
	if s.SampleRate <= 0 {
		return s.Start
	}
	return s.Start.Add(samplesDuration(i, s.SampleRate))
}

// MinMax returns the smallest and largest sample values.
// Both are zero for an empty segment.
func (s *Segment) MinMax() (lo, hi float64) {
	if len(s.Samples) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range s.Samples {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Mean returns the arithmetic mean of the samples, or zero when empty.
func (s *Segment) Mean() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Samples {
		sum += v
	}
	return sum / float64(len(s.Samples))
}

// samplesDuration is the span of n sample periods, rounded to the nanosecond.
func samplesDuration(n int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(n) / rate * float64(time.Second)))
}

// LatestEnd returns the latest End across segments, or the zero time.
func LatestEnd(segments []*Segment) time.Time {
	var latest time.Time
	for _, s := range segments {
		if s == nil {
			continue
		}
		if end := s.End(); end.After(latest) {
			latest = end
		}
	}
	return latest
}
