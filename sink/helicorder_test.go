package sink

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

var (
	testChannel = types.ChannelID{Network: "UW", Station: "JCW", Channel: "EHZ"}
	testStart   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testWindow() types.TimeWindow {
	return types.TimeWindow{Start: testStart, End: testStart.Add(time.Hour)}
}

func flatSegment(start time.Time, n int, v float64) *types.Segment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = v
	}
	return &types.Segment{Channel: testChannel, Start: start, SampleRate: 1, Samples: samples}
}

func TestDefaultRowDuration(t *testing.T) {
	tests := []struct {
		span time.Duration
		want time.Duration
	}{
		{time.Hour, 5 * time.Minute},
		{24 * time.Hour, 2 * time.Hour},
		{6 * time.Minute, time.Minute},
		{0, time.Minute},
	}
	for _, tt := range tests {
		if got := DefaultRowDuration(tt.span); got != tt.want {
			t.Errorf("DefaultRowDuration(%v) = %v, want %v", tt.span, got, tt.want)
		}
	}
}

func TestHelicorder_RowLayout(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: testWindow()})
	s := h.Snapshot()

	if s.RowDuration != 5*time.Minute {
		t.Errorf("row duration = %v, want 5m", s.RowDuration)
	}
	if len(s.Rows) != 12 {
		t.Fatalf("rows = %d, want 12", len(s.Rows))
	}
	if !s.Rows[11].Start.Equal(testStart.Add(55 * time.Minute)) {
		t.Errorf("last row start = %v", s.Rows[11].Start)
	}
	if len(s.Rows[0].Min) != DefaultBinsPerRow {
		t.Errorf("bins = %d, want %d", len(s.Rows[0].Min), DefaultBinsPerRow)
	}

	odd := NewHelicorder(HelicorderConfig{
		Window:      types.TimeWindow{Start: testStart, End: testStart.Add(50 * time.Minute)},
		RowDuration: 15 * time.Minute,
	})
	if got := len(odd.Snapshot().Rows); got != 4 {
		t.Errorf("partial last row: rows = %d, want 4", got)
	}
}

func TestHelicorder_AppendSegment(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Channel: testChannel, Window: testWindow(), BinsPerRow: 12})

	seg := flatSegment(testStart.Add(-time.Minute), 420, 5)
	seg.Samples[60] = -20
	seg.Samples[61] = 40
	h.AppendSegment(seg)

	s := h.Snapshot()
	if s.Samples != 360 {
		t.Errorf("samples = %d, want 360 (pre-window samples dropped)", s.Samples)
	}
	if s.Segments != 1 {
		t.Errorf("segments = %d, want 1", s.Segments)
	}
	if s.Lo != -20 || s.Hi != 40 {
		t.Errorf("lo/hi = %v/%v, want -20/40", s.Lo, s.Hi)
	}
	r0 := s.Rows[0]
	if !r0.Filled[0] || r0.Min[0] != -20 || r0.Max[0] != 40 {
		t.Errorf("row 0 bin 0 = filled %v min %v max %v", r0.Filled[0], r0.Min[0], r0.Max[0])
	}
	r1 := s.Rows[1]
	if !r1.Filled[0] || !r1.Filled[2] || r1.Filled[3] {
		t.Errorf("row 1 filled = %v, want first 60s only", r1.Filled)
	}
	if s.Rows[2].Filled[0] {
		t.Error("row 2 has data")
	}
}

func TestHelicorder_IgnoresForeignAndOutOfWindow(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Channel: testChannel, Window: testWindow()})

	other := flatSegment(testStart, 10, 1)
	other.Channel = types.ChannelID{Network: "UW", Station: "RCM", Channel: "EHZ"}
	h.AppendSegment(other)
	h.AppendSegment(flatSegment(testStart.Add(2*time.Hour), 10, 1))
	h.AppendSegment(nil)
	h.AppendSegment(&types.Segment{Channel: testChannel, Start: testStart, Samples: []float64{1}})

	if s := h.Snapshot(); s.Samples != 0 || s.Segments != 0 {
		t.Errorf("samples = %d segments = %d, want none", s.Samples, s.Segments)
	}
}

func TestHelicorder_Markers(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: testWindow()})

	h.SetMarker(types.Marker{Kind: types.MarkerKindPick, Label: "P", Time: testStart.Add(time.Minute)})
	h.SetMarker(types.Marker{Kind: types.MarkerKindPick, Label: "S", Time: testStart.Add(2 * time.Minute)})
	if got := len(h.Snapshot().Markers); got != 2 {
		t.Fatalf("markers = %d, want 2", got)
	}

	now := types.NowMarker(testStart.Add(10 * time.Minute))
	h.SetMarker(now)
	h.SetMarker(types.NowMarker(testStart.Add(11 * time.Minute)))

	markers := h.Snapshot().Markers
	if len(markers) != 1 || !markers[0].Time.Equal(testStart.Add(11*time.Minute)) {
		t.Errorf("markers = %+v, want only the latest now marker", markers)
	}
}

func TestHelicorder_ErrorsBounded(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: testWindow(), MaxErrors: 3})
	for i := 0; i < 5; i++ {
		h.ReportError(fmt.Sprintf("err %d", i))
	}

	s := h.Snapshot()
	if len(s.Errors) != 3 || s.Errors[0] != "err 2" {
		t.Errorf("errors = %q, want the last three", s.Errors)
	}
	if s.LastError != "err 4" {
		t.Errorf("last error = %q, want err 4", s.LastError)
	}
}

func TestHelicorder_SetAmplitude(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Channel: testChannel, Window: testWindow()})
	if got := h.Amplitude(); got.Mode != AmpMax {
		t.Fatalf("default amplitude = %v, want max", got)
	}

	h.SetAmplitude(h.Amplitude().Next())
	if got := h.Snapshot().Amplitude; got.String() != "75%" {
		t.Errorf("snapshot amplitude = %v, want 75%%", got)
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: testWindow()})
	h.AppendSegment(flatSegment(testStart, 10, 1))

	s := h.Snapshot()
	s.Rows[0].Max[0] = 999
	if got := h.Snapshot().Rows[0].Max[0]; got == 999 {
		t.Error("snapshot shares row storage with the helicorder")
	}
}

func TestParseAmplitude(t *testing.T) {
	tests := []struct {
		in      string
		want    Amplitude
		wantErr bool
	}{
		{"", Amplitude{Mode: AmpMax}, false},
		{"MAX", Amplitude{Mode: AmpMax}, false},
		{"50%", Amplitude{Mode: AmpPercent, Value: 50}, false},
		{"1500", Amplitude{Mode: AmpFixed, Value: 1500}, false},
		{"0", Amplitude{}, true},
		{"-5%", Amplitude{}, true},
		{"loud", Amplitude{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmplitude(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmplitude(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAmplitude(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if !tt.wantErr && tt.in != "" {
				if back, _ := ParseAmplitude(got.String()); back != got {
					t.Errorf("String() = %q does not parse back", got.String())
				}
			}
		})
	}
}

func TestAmplitude_Scale(t *testing.T) {
	tests := []struct {
		amp  Amplitude
		want float64
	}{
		{Amplitude{Mode: AmpMax}, 30},
		{Amplitude{Mode: AmpPercent, Value: 50}, 5},
		{Amplitude{Mode: AmpFixed, Value: 7}, 7},
	}
	for _, tt := range tests {
		if got := tt.amp.scale(-20, 20, 10); got != tt.want {
			t.Errorf("%v.scale() = %v, want %v", tt.amp, got, tt.want)
		}
	}
	if got := (Amplitude{Mode: AmpMax}).scale(3, 3, 3); got != 1 {
		t.Errorf("flat data scale = %v, want 1", got)
	}
}

func TestAmplitude_Next(t *testing.T) {
	tests := []struct {
		in   Amplitude
		want string
	}{
		{Amplitude{Mode: AmpMax}, "75%"},
		{Amplitude{Mode: AmpPercent, Value: 75}, "50%"},
		{Amplitude{Mode: AmpPercent, Value: 50}, "25%"},
		{Amplitude{Mode: AmpPercent, Value: 25}, "max"},
		{Amplitude{Mode: AmpPercent, Value: 10}, "max"},
		{Amplitude{Mode: AmpFixed, Value: 5000}, "max"},
	}
	for _, tt := range tests {
		if got := tt.in.Next().String(); got != tt.want {
			t.Errorf("%v.Next() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: testWindow(), BinsPerRow: 12})
	seg := flatSegment(testStart, 300, 0)
	seg.Samples[0] = 100
	h.AppendSegment(seg)
	h.SetMarker(types.NowMarker(testStart.Add(5*time.Minute + 30*time.Second)))

	lines := h.Render(18)
	if len(lines) != 12 {
		t.Fatalf("lines = %d, want 12", len(lines))
	}
	if want := "12:00 @___________"; lines[0] != want {
		t.Errorf("row 0 = %q, want %q", lines[0], want)
	}
	if want := "12:05  |          "; lines[1] != want {
		t.Errorf("row 1 = %q, want %q", lines[1], want)
	}
	if want := "12:10 " + strings.Repeat(" ", 12); lines[2] != want {
		t.Errorf("row 2 = %q, want %q", lines[2], want)
	}
}

func TestRender_NarrowAndLongWindows(t *testing.T) {
	h := NewHelicorder(HelicorderConfig{Window: types.WindowBefore(testStart, 48*time.Hour)})
	lines := h.Render(3)
	if len(lines) != 12 {
		t.Fatalf("lines = %d, want 12", len(lines))
	}
	if !strings.HasPrefix(lines[0], "02-28 12:00 ") {
		t.Errorf("row 0 = %q, want a dated label", lines[0])
	}
	if got := len(lines[0]); got != len(dayLabelLayout)+1 {
		t.Errorf("narrow row width = %d, want label plus one column", got)
	}
}
