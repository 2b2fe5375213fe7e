// Package main provides the heliwatch CLI entrypoint.
//
// Usage:
//
//	heliwatch <command> [options]
//
// Exit codes for watch and backfill:
//   - 0: success or user interrupt
//   - 1: usage or configuration error
//   - 2: data unavailable (historical query failed or returned nothing)
//   - 3: connection error (live handshake failed)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/cli/cmd"
	"github.com/justapithecus/heliwatch/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Replaced in tests.
var (
	osExit           = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		osExit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "heliwatch",
		Usage:          "Live seismic helicorder for DataLink ringservers",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.WatchCommand(),
			cmd.BackfillCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		osExit(code)
		return
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
