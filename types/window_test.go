package types

import (
	"errors"
	"testing"
	"time"
)

func TestHourAlignedWindow(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 17, 42, 0, time.UTC)
	w := HourAlignedWindow(now, 60*time.Minute)

	wantEnd := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	if !w.End.Equal(wantEnd) {
		t.Errorf("End = %s, want %s", w.End, wantEnd)
	}
	if !w.Start.Equal(wantEnd.Add(-time.Hour)) {
		t.Errorf("Start = %s, want %s", w.Start, wantEnd.Add(-time.Hour))
	}
	if !w.Live {
		t.Error("hour aligned window should be live")
	}
	if err := w.Validate(now); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestTimeWindow_Validate(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		w       TimeWindow
		wantErr bool
	}{
		{"past window", WindowBefore(now, time.Hour), false},
		{"ends now", TimeWindow{Start: now.Add(-time.Minute), End: now}, false},
		{"future end", TimeWindow{Start: now, End: now.Add(time.Hour)}, true},
		{"future end live", TimeWindow{Start: now, End: now.Add(time.Hour), Live: true}, false},
		{"inverted", TimeWindow{Start: now, End: now.Add(-time.Hour)}, true},
		{"empty", TimeWindow{Start: now, End: now}, true},
		{"zero", TimeWindow{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate(now)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeWindow_ContainsIsHalfOpen(t *testing.T) {
	end := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	w := WindowBefore(end, time.Hour)

	if !w.Contains(w.Start) {
		t.Error("window should contain its start")
	}
	if w.Contains(w.End) {
		t.Error("window should not contain its end")
	}
}

func TestTimeWindow_Clamp(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	w := HourAlignedWindow(now, 2*time.Hour)

	clamped := w.Clamp(now)
	if !clamped.End.Equal(now) {
		t.Errorf("clamped End = %s, want %s", clamped.End, now)
	}
	if !clamped.Start.Equal(w.Start) {
		t.Errorf("clamped Start = %s, want %s", clamped.Start, w.Start)
	}

	past := WindowBefore(now.Add(-time.Hour), time.Hour)
	if got := past.Clamp(now); got != past {
		t.Errorf("Clamp changed a past window: %+v", got)
	}
}

func TestHourAlignedWindow_ShortSpansStartBeforeNow(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		span      time.Duration
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "ten minutes early in the hour",
			now:       time.Date(2026, 3, 4, 12, 5, 0, 0, time.UTC),
			span:      10 * time.Minute,
			wantStart: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 4, 12, 10, 0, 0, time.UTC),
		},
		{
			name:      "fifteen minutes late in the hour",
			now:       time.Date(2026, 3, 4, 12, 52, 0, 0, time.UTC),
			span:      15 * time.Minute,
			wantStart: time.Date(2026, 3, 4, 12, 45, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC),
		},
		{
			name:      "ninety minutes keeps the hour boundary",
			now:       time.Date(2026, 3, 4, 12, 5, 0, 0, time.UTC),
			span:      90 * time.Minute,
			wantStart: time.Date(2026, 3, 4, 11, 30, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 4, 13, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := HourAlignedWindow(tt.now, tt.span)
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Errorf("window = %s, want %s/%s", w, tt.wantStart.Format(time.RFC3339), tt.wantEnd.Format(time.RFC3339))
			}
			if w.Start.After(tt.now) {
				t.Errorf("start %s after now %s", w.Start, tt.now)
			}
			if _, err := w.BackfillRange(tt.now); err != nil {
				t.Errorf("BackfillRange: %v", err)
			}
		})
	}
}

func TestTimeWindow_BackfillRange(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 5, 0, 0, time.UTC)

	tests := []struct {
		name    string
		w       TimeWindow
		wantEnd time.Time
		wantErr bool
	}{
		{"live window clamped", TimeWindow{Start: now.Add(-time.Hour), End: now.Add(time.Hour), Live: true}, now, false},
		{"past window untouched", WindowBefore(now.Add(-time.Hour), time.Hour), now.Add(-time.Hour), false},
		{"starts in the future", TimeWindow{Start: now.Add(45 * time.Minute), End: now.Add(55 * time.Minute), Live: true}, time.Time{}, true},
		{"starts now", TimeWindow{Start: now, End: now.Add(time.Hour), Live: true}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.w.BackfillRange(now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrFutureWindow) {
					t.Errorf("err = %v, want ErrFutureWindow", err)
				}
				return
			}
			if !r.End.Equal(tt.wantEnd) || !r.Start.Equal(tt.w.Start) {
				t.Errorf("range = %s", r)
			}
		})
	}
}
