package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/cli/config"
	"github.com/justapithecus/heliwatch/sink"
	"github.com/justapithecus/heliwatch/types"
)

// queryChoice holds the resolved historical query configuration.
type queryChoice struct {
	source      string // "fdsn" or "archive"
	fdsnURL     string
	fdsnRetries int
	fdsnTimeout time.Duration
}

// archiveChoice holds the resolved archive configuration.
type archiveChoice struct {
	backend   string // "", "fs", "s3" or "memory"
	dataset   string
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool

	flushCount    int
	flushInterval time.Duration
}

// datalinkChoice holds the resolved live feed configuration.
type datalinkChoice struct {
	url      string
	encoding string
	clientID string
	timeout  time.Duration
}

// displayChoice holds the resolved helicorder layout.
type displayChoice struct {
	row time.Duration
	amp sink.Amplitude
}

// adapterChoice holds the resolved notification adapter configuration.
type adapterChoice struct {
	typ            string // "", "webhook" or "redis"
	url            string
	channel        string
	segmentChannel string
	headers        map[string]string
	timeout        time.Duration
	retries        *int
	relaySegments  bool
}

// options is the merged result of heliwatch.yaml and command flags.
type options struct {
	channel  types.ChannelID
	span     time.Duration
	query    queryChoice
	archive  archiveChoice
	datalink datalinkChoice
	display  displayChoice
	adapter  adapterChoice

	metricsAddr string
}

// loadConfig reads --config when given. No file means an empty config.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// resolveQueryOptions merges the flags shared by watch and backfill.
func resolveQueryOptions(c *cli.Context, cfg *config.Config) (*options, error) {
	chanStr := pickString(c, "channel", cfg.Channel)
	if chanStr == "" {
		return nil, errors.New("--channel is required (or channel in the config file)")
	}
	channel, err := types.ParseChannelID(chanStr)
	if err != nil {
		return nil, err
	}

	opts := &options{
		channel: channel,
		span:    pickDuration(c, "span", cfg.Display.Span.Duration),
		query: queryChoice{
			source:      pickString(c, "backfill", cfg.Backfill),
			fdsnURL:     pickString(c, "fdsn-url", cfg.FDSN.URL),
			fdsnRetries: pickInt(c, "fdsn-retries", cfg.FDSN.Retries),
			fdsnTimeout: pickDuration(c, "fdsn-timeout", cfg.FDSN.Timeout.Duration),
		},
		archive: archiveChoice{
			backend:   pickString(c, "archive-backend", cfg.Archive.Backend),
			dataset:   pickString(c, "archive-dataset", cfg.Archive.Dataset),
			path:      pickString(c, "archive-path", cfg.Archive.Path),
			region:    pickString(c, "archive-region", cfg.Archive.Region),
			endpoint:  pickString(c, "archive-endpoint", cfg.Archive.Endpoint),
			pathStyle: pickBool(c, "archive-path-style", cfg.Archive.S3PathStyle),
		},
	}

	if opts.span <= 0 {
		return nil, fmt.Errorf("--span must be positive, got %s", opts.span)
	}
	if err := validateQueryChoice(opts.query, opts.archive); err != nil {
		return nil, err
	}
	if err := validateArchiveChoice(opts.archive); err != nil {
		return nil, err
	}
	return opts, nil
}

func validateQueryChoice(q queryChoice, a archiveChoice) error {
	switch q.source {
	case "fdsn":
		if q.fdsnRetries < 0 {
			return fmt.Errorf("--fdsn-retries must be >= 0, got %d", q.fdsnRetries)
		}
		return nil
	case "archive":
		if a.backend == "" {
			return errors.New("--backfill archive requires --archive-backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid backfill: %s (must be fdsn or archive)", q.source)
	}
}

func validateArchiveChoice(a archiveChoice) error {
	switch a.backend {
	case "", "memory":
		return nil
	case "fs", "s3":
		if a.path == "" {
			return fmt.Errorf("--archive-path is required for the %s backend", a.backend)
		}
		return nil
	default:
		return fmt.Errorf("unknown archive-backend: %s (must be fs, s3 or memory)", a.backend)
	}
}

// parseHeaders parses repeated "Key=Value" flags.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q: want Key=Value", v)
		}
		headers[strings.TrimSpace(k)] = val
	}
	return headers, nil
}

// The pick helpers implement flag-over-file precedence: an explicitly set
// flag wins, then a non-zero file value, then the flag default.

func pickString(c *cli.Context, flag, fromFile string) string {
	if c.IsSet(flag) || fromFile == "" {
		return c.String(flag)
	}
	return fromFile
}

func pickDuration(c *cli.Context, flag string, fromFile time.Duration) time.Duration {
	if c.IsSet(flag) || fromFile == 0 {
		return c.Duration(flag)
	}
	return fromFile
}

func pickInt(c *cli.Context, flag string, fromFile *int) int {
	if c.IsSet(flag) || fromFile == nil {
		return c.Int(flag)
	}
	return *fromFile
}

func pickBool(c *cli.Context, flag string, fromFile bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return fromFile || c.Bool(flag)
}
