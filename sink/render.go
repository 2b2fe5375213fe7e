package sink

import (
	"strings"
	"time"
)

// levels maps normalized deviation to a glyph, quietest first.
const levels = "_.-:=+*#%@"

const (
	markerGlyph    = '|'
	rowLabelLayout = "15:04 "
	dayLabelLayout = "01-02 15:04 "
)

// Render draws the helicorder as ASCII lines of at most width runes.
func (h *Helicorder) Render(width int) []string {
	return h.Snapshot().Render(width)
}

// Render draws the snapshot as one line per row: a start-time label and
// one glyph per column whose height reflects the largest deviation from
// the mean in that column. Columns without data are blank. Markers are
// drawn as '|'.
func (s HelicorderSnapshot) Render(width int) []string {
	layout := rowLabelLayout
	if s.Window.Duration() > 24*time.Hour {
		layout = dayLabelLayout
	}
	cols := width - len(layout)
	if cols < 1 {
		cols = 1
	}

	lines := make([]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		var b strings.Builder
		b.WriteString(row.Start.UTC().Format(layout))

		line := make([]byte, cols)
		bins := len(row.Filled)
		for c := 0; c < cols; c++ {
			line[c] = ' '
			lo, hi := c*bins/cols, (c+1)*bins/cols
			if hi <= lo {
				hi = lo + 1
			}
			dev, filled := 0.0, false
			for i := lo; i < hi && i < bins; i++ {
				if !row.Filled[i] {
					continue
				}
				filled = true
				dev = max(dev, row.Max[i]-s.Mean, s.Mean-row.Min[i])
			}
			if filled {
				line[c] = glyph(dev / s.Scale)
			}
		}
		for _, m := range s.Markers {
			off := m.Time.Sub(row.Start)
			if off < 0 || off >= s.RowDuration {
				continue
			}
			line[int(int64(off)*int64(cols)/int64(s.RowDuration))] = markerGlyph
		}
		b.Write(line)
		lines = append(lines, b.String())
	}
	return lines
}

func glyph(norm float64) byte {
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return levels[int(norm*float64(len(levels)-1)+0.5)]
}
