package sink

import (
	"fmt"
	"strconv"
	"strings"
)

// AmplitudeMode selects how traces are scaled.
type AmplitudeMode int

const (
	// AmpMax scales so the largest deviation from the mean fills a row.
	AmpMax AmplitudeMode = iota
	// AmpPercent scales to a percentage of (max - mean).
	AmpPercent
	// AmpFixed scales to a fixed count value.
	AmpFixed
)

// Amplitude is a parsed amplitude setting.
type Amplitude struct {
	Mode  AmplitudeMode
	Value float64
}

// ParseAmplitude parses "max", "N%" or a positive number.
// The empty string means "max".
func ParseAmplitude(s string) (Amplitude, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "" || s == "max":
		return Amplitude{Mode: AmpMax}, nil
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil || v <= 0 {
			return Amplitude{}, fmt.Errorf("invalid amplitude percentage %q", s)
		}
		return Amplitude{Mode: AmpPercent, Value: v}, nil
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return Amplitude{}, fmt.Errorf("invalid amplitude %q: want max, N%% or a positive number", s)
		}
		return Amplitude{Mode: AmpFixed, Value: v}, nil
	}
}

func (a Amplitude) String() string {
	switch a.Mode {
	case AmpPercent:
		return strconv.FormatFloat(a.Value, 'f', -1, 64) + "%"
	case AmpFixed:
		return strconv.FormatFloat(a.Value, 'f', -1, 64)
	default:
		return "max"
	}
}

// amplitudeSteps is the cycle order of Next.
var amplitudeSteps = []Amplitude{
	{Mode: AmpMax},
	{Mode: AmpPercent, Value: 75},
	{Mode: AmpPercent, Value: 50},
	{Mode: AmpPercent, Value: 25},
}

// Next returns the setting after a in the max, 75%, 50%, 25% cycle.
// A setting outside the cycle, such as a fixed count, steps to max.
func (a Amplitude) Next() Amplitude {
	for i, step := range amplitudeSteps {
		if step == a {
			return amplitudeSteps[(i+1)%len(amplitudeSteps)]
		}
	}
	return amplitudeSteps[0]
}

// scale returns the deviation from the mean that maps to a full row.
func (a Amplitude) scale(lo, hi, mean float64) float64 {
	var s float64
	switch a.Mode {
	case AmpPercent:
		s = (hi - mean) * a.Value / 100
	case AmpFixed:
		s = a.Value
	default:
		s = max(hi-mean, mean-lo)
	}
	if s <= 0 {
		return 1
	}
	return s
}
