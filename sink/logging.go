package sink

import (
	"time"

	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/types"
)

// Logging writes what it receives to a logger.
type Logging struct {
	logger *log.Logger
}

// NewLogging returns a logging sink.
func NewLogging(logger *log.Logger) *Logging {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Logging{logger: logger}
}

// AppendSegment logs a one-line summary of seg.
func (l *Logging) AppendSegment(seg *types.Segment) {
	if seg == nil {
		return
	}
	lo, hi := seg.MinMax()
	l.logger.Debug("segment", map[string]any{
		"channel": seg.Channel.String(),
		"start":   seg.Start.Format(time.RFC3339Nano),
		"end":     seg.End().Format(time.RFC3339Nano),
		"samples": seg.Len(),
		"min":     lo,
		"max":     hi,
	})
}

// SetMarker is a no-op; markers only matter to visual sinks.
func (l *Logging) SetMarker(types.Marker) {}

// ReportError logs msg at error level.
func (l *Logging) ReportError(msg string) {
	l.logger.Error("session error", map[string]any{"message": msg})
}
