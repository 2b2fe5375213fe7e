package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/heliwatch/session"
)

// Exit codes for watch and backfill.
const (
	exitSuccess         = 0
	exitUsage           = 1
	exitDataUnavailable = 2
	exitConnection      = 3
)

// exitCodeFor maps a session outcome to an exit code. A user interrupt
// is a clean exit.
func exitCodeFor(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitSuccess
	case session.IsDataUnavailable(err):
		return exitDataUnavailable
	case session.IsConnectionError(err):
		return exitConnection
	default:
		return exitUsage
	}
}

// exitWith wraps err in a cli exit error carrying its code.
func exitWith(err error) error {
	code := exitCodeFor(err)
	if code == exitSuccess {
		return nil
	}
	return cli.Exit(err.Error(), code)
}

// usageError reports a configuration or flag problem.
func usageError(err error) error {
	return cli.Exit(err.Error(), exitUsage)
}
