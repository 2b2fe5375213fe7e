package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/archive"
	"github.com/justapithecus/heliwatch/cli/config"
	"github.com/justapithecus/heliwatch/cli/tui"
	"github.com/justapithecus/heliwatch/datalink"
	"github.com/justapithecus/heliwatch/iox"
	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/session"
	"github.com/justapithecus/heliwatch/sink"
	"github.com/justapithecus/heliwatch/types"
)

// shutdownTimeout bounds teardown, archive flush and pending notifications.
const shutdownTimeout = 10 * time.Second

// WatchCommand returns the watch command: a live session in a TUI, or
// headless with --no-tui.
func WatchCommand() *cli.Command {
	flags := append(queryFlags(), archiveFlags()...)
	flags = append(flags,
		// Live feed
		&cli.StringFlag{
			Name:  "datalink-url",
			Usage: "DataLink server: host:port, tcp://, ws:// or wss://",
			Value: defaultDataLinkURL,
		},
		&cli.StringFlag{
			Name:  "encoding",
			Usage: "Stream id encoding suffix to subscribe to",
			Value: types.EncodingMiniSEED,
		},
		&cli.StringFlag{
			Name:  "client-id",
			Usage: "Program name sent in the DataLink ID command",
			Value: "heliwatch",
		},
		&cli.DurationFlag{
			Name:  "dial-timeout",
			Usage: "DataLink connection timeout",
			Value: 10 * time.Second,
		},
		// Display
		&cli.DurationFlag{
			Name:  "row",
			Usage: "Helicorder row duration (default: span/12)",
		},
		&cli.StringFlag{
			Name:  "amp",
			Usage: "Amplitude: max, N% or a fixed value",
			Value: "max",
		},
		// Archive writer
		&cli.IntFlag{
			Name:  "flush-count",
			Usage: "Archive flush after this many segments",
			Value: 100,
		},
		&cli.DurationFlag{
			Name:  "flush-interval",
			Usage: "Archive flush interval",
			Value: 30 * time.Second,
		},
		// Adapter
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Session event adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint (webhook URL or redis:// URL)",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis channel for session events",
		},
		&cli.StringFlag{
			Name:  "adapter-segment-channel",
			Usage: "Redis channel for relayed segments",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout (default: adapter specific)",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retries (default: adapter specific)",
		},
		&cli.BoolFlag{
			Name:  "relay-segments",
			Usage: "Publish live segments through the redis adapter",
		},
		// Runtime
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address, e.g. :9102",
		},
		&cli.BoolFlag{
			Name:  "no-tui",
			Usage: "Run headless, logging status lines",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Log destination while the TUI owns the terminal",
			Value: "heliwatch.log",
		},
		&cli.DurationFlag{
			Name:  "status-interval",
			Usage: "Headless status line interval",
			Value: 10 * time.Second,
		},
	)

	return &cli.Command{
		Name:   "watch",
		Usage:  "Watch a channel live on a helicorder",
		Flags:  flags,
		Action: watchAction,
	}
}

// resolveWatchOptions extends the shared options with the live-only ones.
func resolveWatchOptions(c *cli.Context, cfg *config.Config) (*options, error) {
	opts, err := resolveQueryOptions(c, cfg)
	if err != nil {
		return nil, err
	}

	opts.datalink = datalinkChoice{
		url:      pickString(c, "datalink-url", cfg.DataLink.URL),
		encoding: pickString(c, "encoding", cfg.DataLink.Encoding),
		clientID: pickString(c, "client-id", cfg.DataLink.ClientID),
		timeout:  pickDuration(c, "dial-timeout", cfg.DataLink.Timeout.Duration),
	}

	amp, err := sink.ParseAmplitude(pickString(c, "amp", cfg.Display.Amp))
	if err != nil {
		return nil, err
	}
	opts.display = displayChoice{
		row: pickDuration(c, "row", cfg.Display.Row.Duration),
		amp: amp,
	}
	if opts.display.row < 0 {
		return nil, fmt.Errorf("--row must be positive, got %s", opts.display.row)
	}

	opts.archive.flushCount = c.Int("flush-count")
	if !c.IsSet("flush-count") && cfg.Archive.FlushCount > 0 {
		opts.archive.flushCount = cfg.Archive.FlushCount
	}
	opts.archive.flushInterval = pickDuration(c, "flush-interval", cfg.Archive.FlushInterval.Duration)

	headers := cfg.Adapter.Headers
	if c.IsSet("adapter-header") {
		if headers, err = parseHeaders(c.StringSlice("adapter-header")); err != nil {
			return nil, err
		}
	}
	var retries *int
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		retries = &n
	} else if cfg.Adapter.Retries != nil {
		retries = cfg.Adapter.Retries
	}
	if retries != nil && *retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", *retries)
	}
	opts.adapter = adapterChoice{
		typ:            pickString(c, "adapter", cfg.Adapter.Type),
		url:            pickString(c, "adapter-url", cfg.Adapter.URL),
		channel:        pickString(c, "adapter-channel", cfg.Adapter.Channel),
		segmentChannel: pickString(c, "adapter-segment-channel", cfg.Adapter.SegmentChannel),
		headers:        headers,
		timeout:        pickDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries:        retries,
		relaySegments:  pickBool(c, "relay-segments", cfg.Adapter.RelaySegments),
	}

	opts.metricsAddr = pickString(c, "metrics-addr", cfg.Metrics.Addr)
	return opts, nil
}

// watchRuntime is everything a watch session owns, in teardown order.
type watchRuntime struct {
	controller *session.Controller
	helicorder *sink.Helicorder
	writer     *archive.StreamingWriter
	store      *archive.Client
	relay      *sink.Relay
	notifier   *notifier
	metrics    *metricsServer
	logger     *log.Logger
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return usageError(err)
	}
	opts, err := resolveWatchOptions(c, cfg)
	if err != nil {
		return usageError(err)
	}
	headless := c.Bool("no-tui")

	sessionID := uuid.NewString()
	logger := log.NewLogger(&types.SessionMeta{SessionID: sessionID, Channel: opts.channel})
	if !headless {
		f, err := os.OpenFile(c.String("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return usageError(fmt.Errorf("open log file: %w", err))
		}
		defer iox.DiscardClose(f)
		logger = logger.WithOutput(f)
	}
	defer iox.DiscardErr(logger.Sync)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	window := types.HourAlignedWindow(time.Now(), opts.span)
	rt, err := buildWatchRuntime(ctx, sessionID, window, opts, logger)
	if err != nil {
		return usageError(err)
	}
	defer rt.shutdown()

	go func() { _ = rt.controller.Run(ctx) }()

	start := func(ctx context.Context) error {
		return rt.controller.Start(ctx, opts.channel, window)
	}

	if headless {
		return exitWith(runHeadless(ctx, rt, start, c.Duration("status-interval")))
	}

	model, err := tui.Run(ctx, tui.NewWatchModel(ctx, rt.controller, rt.helicorder, start))
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if startErr := model.StartErr(); session.IsDataUnavailable(startErr) {
		return exitWith(startErr)
	}
	if rt.controller.Status().Degraded {
		return cli.Exit("session ended degraded: "+rt.controller.Status().LastError, exitConnection)
	}
	return nil
}

func buildWatchRuntime(ctx context.Context, sessionID string, window types.TimeWindow, opts *options, logger *log.Logger) (*watchRuntime, error) {
	rt := &watchRuntime{logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.shutdown()
		}
	}()

	dial, transport, err := datalink.NewDialer(opts.datalink.url, opts.datalink.timeout)
	if err != nil {
		return nil, err
	}

	if rt.store, err = openArchive(ctx, opts.archive); err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	backend := storageNone
	if rt.store != nil {
		backend = rt.store.Backend()
	}

	collector := metrics.NewCollector(sessionID, opts.channel.String(), transport, backend)
	if opts.metricsAddr != "" {
		if rt.metrics, err = serveMetrics(opts.metricsAddr, collector, logger); err != nil {
			return nil, err
		}
	}

	client, err := datalink.NewClient(datalink.Config{
		Dial:      dial,
		ClientID:  opts.datalink.clientID,
		Logger:    logger,
		Collector: collector,
	})
	if err != nil {
		return nil, err
	}

	query, err := buildQuery(opts.query, rt.store, logger)
	if err != nil {
		return nil, err
	}

	if rt.notifier, err = buildNotifier(opts.adapter); err != nil {
		return nil, err
	}

	rt.helicorder = sink.NewHelicorder(sink.HelicorderConfig{
		Channel:     opts.channel,
		Window:      window,
		RowDuration: opts.display.row,
		Amplitude:   opts.display.amp,
	})
	displays := []sink.Display{rt.helicorder, sink.NewLogging(logger)}

	if rt.store != nil {
		rt.writer, err = archive.NewStreamingWriter(rt.store, archive.WriterConfig{
			FlushCount:    opts.archive.flushCount,
			FlushInterval: opts.archive.flushInterval,
			Logger:        logger,
			Collector:     collector,
		})
		if err != nil {
			return nil, err
		}
		displays = append(displays, sink.NewArchive(rt.writer, logger))
	}
	if rt.notifier != nil && rt.notifier.segments != nil {
		rt.relay = sink.NewRelay(sink.RelayConfig{
			Publisher: rt.notifier.segments,
			Logger:    logger,
			Collector: collector,
		})
		displays = append(displays, rt.relay)
	}

	cfg := session.Config{
		SessionID: sessionID,
		Transport: client,
		Query:     query,
		Sink:      sink.NewMulti(displays...),
		Logger:    logger,
		Collector: collector,
		Encoding:  opts.datalink.encoding,
	}
	if rt.notifier != nil {
		cfg.Notifier = rt.notifier
	}
	if rt.controller, err = session.NewController(cfg); err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

// shutdown tears the session down and flushes everything it fed, in
// dependency order. Safe on a partially built runtime.
func (rt *watchRuntime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rt.controller != nil {
		if err := rt.controller.Close(ctx); err != nil {
			rt.logger.Warn("session close", map[string]any{"error": err.Error()})
		}
	}
	if rt.writer != nil {
		if err := rt.writer.Close(ctx); err != nil {
			rt.logger.Error("archive flush on close failed", map[string]any{"error": err.Error()})
		}
		stats := rt.writer.Stats()
		rt.logger.Info("archive writer closed", map[string]any{
			"written": stats.Written,
			"dropped": stats.Dropped,
			"flushes": stats.Flushes,
		})
	}
	if rt.store != nil {
		iox.DiscardClose(rt.store)
	}
	if rt.relay != nil {
		if err := rt.relay.Close(ctx); err != nil {
			rt.logger.Warn("relay close", map[string]any{"error": err.Error()})
		}
	}
	if rt.notifier != nil {
		iox.DiscardClose(rt.notifier)
	}
	if rt.metrics != nil {
		_ = rt.metrics.Shutdown(ctx)
	}
}

// runHeadless starts the session and logs a status line every interval
// until ctx is done. A data-unavailable or connection error ends the run:
// without a terminal there is nobody to press reconnect.
func runHeadless(ctx context.Context, rt *watchRuntime, start tui.StartFunc, interval time.Duration) error {
	status := rt.logger.Sugar().With("mode", "headless")

	if err := start(ctx); err != nil {
		status.Errorf("start failed: %v", err)
		return err
	}

	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			status.Infof("interrupted, shutting down")
			return nil
		case <-ticker.C:
			st := rt.controller.Status()
			status.Infof("state=%s paused=%t degraded=%t packets=%d marker=%s",
				st.State, st.Paused, st.Degraded, st.Packets, formatMarker(st.Marker))
		}
	}
}

func formatMarker(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
