package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents a heliwatch.yaml configuration file.
// All values are optional and act as defaults for heliwatch command flags.
// CLI flags always override config values.
type Config struct {
	// Channel is the dotted NET.STA.LOC.CHA channel to watch.
	Channel string `yaml:"channel"`
	// Backfill selects the historical query service: fdsn or archive.
	Backfill string         `yaml:"backfill"`
	DataLink DataLinkConfig `yaml:"datalink"`
	FDSN     FDSNConfig     `yaml:"fdsn"`
	Display  DisplayConfig  `yaml:"display"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DataLinkConfig holds live feed defaults.
type DataLinkConfig struct {
	URL      string   `yaml:"url"`
	Encoding string   `yaml:"encoding"`
	ClientID string   `yaml:"client_id"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// FDSNConfig holds dataselect defaults.
type FDSNConfig struct {
	URL     string   `yaml:"url"`
	Retries *int     `yaml:"retries,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// DisplayConfig holds helicorder layout defaults.
type DisplayConfig struct {
	// Span is the plotted window length, e.g. "24h" or "60m".
	Span Duration `yaml:"span,omitempty"`
	// Row is the duration of one helicorder row.
	Row Duration `yaml:"row,omitempty"`
	// Amp is the amplitude control: "max", "N%" or a fixed value.
	Amp string `yaml:"amp"`
}

// ArchiveConfig holds storage defaults from the config file.
// An empty Backend disables archiving.
type ArchiveConfig struct {
	Backend       string   `yaml:"backend"`
	Dataset       string   `yaml:"dataset"`
	Path          string   `yaml:"path"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval,omitempty"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type           string            `yaml:"type"`
	URL            string            `yaml:"url"`
	Channel        string            `yaml:"channel,omitempty"`
	SegmentChannel string            `yaml:"segment_channel,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Timeout        Duration          `yaml:"timeout,omitempty"`
	Retries        *int              `yaml:"retries,omitempty"`
	// RelaySegments publishes live segments too (redis only).
	RelaySegments bool `yaml:"relay_segments"`
}

// MetricsConfig holds the Prometheus listener address.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Validate checks enumerated values. Empty values are always valid;
// they fall through to flag defaults.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backfill {
	case "", "fdsn", "archive":
	default:
		errs = append(errs, fmt.Errorf("backfill: %q (must be fdsn or archive)", c.Backfill))
	}
	switch c.Archive.Backend {
	case "", "fs", "s3", "memory":
	default:
		errs = append(errs, fmt.Errorf("archive.backend: %q (must be fs, s3 or memory)", c.Archive.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: %q (must be webhook or redis)", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url is required when adapter.type is set"))
	}
	if c.FDSN.Retries != nil && *c.FDSN.Retries < 0 {
		errs = append(errs, fmt.Errorf("fdsn.retries: must be >= 0, got %d", *c.FDSN.Retries))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	if c.Display.Span.Duration < 0 || c.Display.Row.Duration < 0 {
		errs = append(errs, errors.New("display: durations must be positive"))
	}
	return errors.Join(errs...)
}
