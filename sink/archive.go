package sink

import (
	"context"

	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/types"
)

// SegmentWriter persists segments. *archive.StreamingWriter implements it.
type SegmentWriter interface {
	Write(ctx context.Context, seg *types.Segment) error
}

// Archive forwards segments to a SegmentWriter. Write failures are logged;
// the writer keeps failed data buffered for its next flush.
type Archive struct {
	writer SegmentWriter
	logger *log.Logger
}

// NewArchive returns an archive sink over w.
func NewArchive(w SegmentWriter, logger *log.Logger) *Archive {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Archive{writer: w, logger: logger}
}

// AppendSegment writes seg.
func (a *Archive) AppendSegment(seg *types.Segment) {
	if seg == nil {
		return
	}
	if err := a.writer.Write(context.Background(), seg); err != nil {
		a.logger.Warn("archive write failed", map[string]any{
			"channel": seg.Channel.String(),
			"error":   err.Error(),
		})
	}
}

// SetMarker is a no-op.
func (a *Archive) SetMarker(types.Marker) {}

// ReportError is a no-op.
func (a *Archive) ReportError(string) {}
