// Package iox holds cleanup helpers for deferred closes whose errors
// nobody can act on: HTTP bodies, log files, test clients.
package iox

import "io"

// DiscardClose closes c and drops the error.
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and drops the error, for non-Close cleanups such
// as flushing a logger on exit:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }
