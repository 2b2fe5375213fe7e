package session

import (
	"errors"
	"fmt"

	"github.com/justapithecus/heliwatch/datalink"
)

// Sentinel errors for session failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrDataUnavailable indicates the backfill query failed or returned
	// nothing. Fatal to Start; never retried by the session.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrConnection indicates a handshake step failed. The session is left
	// streaming but idle until the user reconnects.
	ErrConnection = errors.New("connection error")

	// ErrPositionNotFound indicates the server no longer holds data after the
	// requested resume point. Benign: streaming continues from the server's
	// current position. Transports may return it (wrapped) directly.
	ErrPositionNotFound = errors.New("position not found")

	// ErrMalformedPacket indicates a packet of an unexpected format or one
	// that did not decode. The packet is discarded.
	ErrMalformedPacket = errors.New("malformed packet")
)

// Usage errors.
var (
	// ErrNotStarted is returned by ToggleConnect before a successful Start.
	ErrNotStarted = errors.New("session: not started")
	// ErrActive is returned by Start while the session is not stopped.
	ErrActive = errors.New("session: already active")
	// ErrBusy is returned by ToggleConnect while a disconnect is in progress.
	ErrBusy = errors.New("session: disconnect in progress")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session: closed")
)

// Error wraps an underlying error with session classification.
type Error struct {
	// Kind is the sentinel error for classification (e.g. ErrConnection).
	Kind error
	// Op is the step that failed ("backfill", "connect", "subscribe",
	// "position", "stream", "ingest").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("session: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsDataUnavailable reports whether err is a backfill failure.
func IsDataUnavailable(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}

// IsConnectionError reports whether err is a handshake failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsPositionNotFound reports whether err means the requested resume
// position is gone. DataLink's "Packet not found" reply qualifies.
func IsPositionNotFound(err error) bool {
	return errors.Is(err, ErrPositionNotFound) || datalink.IsPacketNotFound(err)
}

// IsMalformedPacket reports whether err is a discarded-packet error.
func IsMalformedPacket(err error) bool {
	return errors.Is(err, ErrMalformedPacket)
}
