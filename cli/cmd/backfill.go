package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/cli/render"
	"github.com/justapithecus/heliwatch/iox"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/sink"
	"github.com/justapithecus/heliwatch/types"
)

// SegmentSummary describes one returned segment.
type SegmentSummary struct {
	Channel    string    `json:"channel" yaml:"channel"`
	Start      time.Time `json:"start" yaml:"start"`
	End        time.Time `json:"end" yaml:"end"`
	SampleRate float64   `json:"sample_rate" yaml:"sample_rate"`
	Samples    int       `json:"samples" yaml:"samples"`
	Min        float64   `json:"min" yaml:"min"`
	Max        float64   `json:"max" yaml:"max"`
}

// BackfillCommand returns the backfill command: one historical query,
// printed as segment summaries or as a static helicorder.
func BackfillCommand() *cli.Command {
	flags := append(queryFlags(), archiveFlags()...)
	flags = append(flags, OutputFlags()...)
	flags = append(flags,
		&cli.TimestampFlag{
			Name:   "end",
			Usage:  "Window end (RFC 3339); default is the top of the next hour",
			Layout: time.RFC3339,
		},
		&cli.BoolFlag{
			Name:  "plot",
			Usage: "Print an ASCII helicorder instead of segment summaries",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Plot width in columns",
			Value: 100,
		},
		&cli.StringFlag{
			Name:  "amp",
			Usage: "Plot amplitude: max, N% or a fixed value",
			Value: "max",
		},
	)

	return &cli.Command{
		Name:  "backfill",
		Usage: "Query historical data for a channel and print it",
		Description: "Runs one query against the historical service. With --backfill fdsn and an\n" +
			"archive backend, the fetched segments are also written to the archive.",
		Flags:  flags,
		Action: backfillAction,
	}
}

func backfillAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return usageError(err)
	}
	opts, err := resolveQueryOptions(c, cfg)
	if err != nil {
		return usageError(err)
	}
	amp, err := sink.ParseAmplitude(pickString(c, "amp", cfg.Display.Amp))
	if err != nil {
		return usageError(err)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger(&types.SessionMeta{Channel: opts.channel})

	store, err := openArchive(ctx, opts.archive)
	if err != nil {
		return usageError(fmt.Errorf("open archive: %w", err))
	}
	if store != nil {
		defer iox.DiscardClose(store)
	}
	query, err := buildQuery(opts.query, store, logger)
	if err != nil {
		return usageError(err)
	}

	now := time.Now()
	window := types.HourAlignedWindow(now, opts.span)
	if end := c.Timestamp("end"); end != nil {
		window = types.WindowBefore(*end, opts.span)
	}
	if err := window.Validate(now); err != nil {
		return usageError(err)
	}
	backfill, err := window.BackfillRange(now)
	if err != nil {
		return usageError(err)
	}

	segments, err := query.Query(ctx, opts.channel, backfill)
	if err == nil && types.LatestEnd(segments).IsZero() {
		err = fmt.Errorf("no data for %s in %s", opts.channel, window)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("data unavailable: %v", err), exitDataUnavailable)
	}

	if store != nil && opts.query.source == "fdsn" {
		if err := store.WriteSegments(ctx, segments); err != nil {
			logger.Error("archive write failed", map[string]any{"error": err.Error()})
		} else {
			logger.Info("backfill archived", map[string]any{"segments": len(segments)})
		}
	}

	rec := sink.NewRecorder()
	heli := sink.NewHelicorder(sink.HelicorderConfig{
		Channel:   opts.channel,
		Window:    window,
		Amplitude: amp,
	})
	display := sink.NewMulti(rec, heli)
	for _, seg := range segments {
		if seg != nil {
			display.AppendSegment(seg)
		}
	}

	if c.Bool("plot") {
		for _, line := range heli.Render(c.Int("width")) {
			fmt.Fprintln(c.App.Writer, line)
		}
		return nil
	}
	return r.Render(summarize(rec.Segments))
}

func summarize(segments []*types.Segment) []SegmentSummary {
	out := make([]SegmentSummary, 0, len(segments))
	for _, seg := range segments {
		lo, hi := seg.MinMax()
		out = append(out, SegmentSummary{
			Channel:    seg.Channel.String(),
			Start:      seg.Start.UTC(),
			End:        seg.End().UTC(),
			SampleRate: seg.SampleRate,
			Samples:    seg.Len(),
			Min:        lo,
			Max:        hi,
		})
	}
	return out
}
