// Package cmd provides CLI commands for the heliwatch binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/archive"
	"github.com/justapithecus/heliwatch/fdsn"
)

// Default live feed, the University of Washington public ringserver.
const defaultDataLinkURL = "rtserve.iris.washington.edu:18000"

// Shared flags for commands that print results.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// ConfigFlag points at a heliwatch.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to heliwatch.yaml (flags override file values)",
		EnvVars: []string{"HELIWATCH_CONFIG"},
	}
)

// OutputFlags returns the shared flags for commands that print results.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// queryFlags select and configure the historical query service.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "channel",
			Usage: "Channel as NET.STA.LOC.CHA, e.g. UW.JCW..EHZ",
		},
		&cli.DurationFlag{
			Name:  "span",
			Usage: "Plot window length",
			Value: 24 * time.Hour,
		},
		&cli.StringFlag{
			Name:  "backfill",
			Usage: "Historical query service: fdsn or archive",
			Value: "fdsn",
		},
		&cli.StringFlag{
			Name:  "fdsn-url",
			Usage: "FDSN web service base URL",
			Value: fdsn.DefaultBaseURL,
		},
		&cli.IntFlag{
			Name:  "fdsn-retries",
			Usage: "Retry attempts for transient FDSN failures",
			Value: fdsn.DefaultRetries,
		},
		&cli.DurationFlag{
			Name:  "fdsn-timeout",
			Usage: "FDSN request timeout",
			Value: fdsn.DefaultTimeout,
		},
	}
}

// archiveFlags configure the segment archive. An empty backend disables it.
func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs, s3 or memory (empty disables archiving)",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset id",
			Value: archive.DefaultDataset,
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive location (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "archive-path-style",
			Usage: "Use path-style S3 addressing (MinIO, R2)",
		},
	}
}
