package types

import "errors"

// SessionState is the lifecycle state of a live session.
// Paused is not a state: it is a display flag overlaid on Streaming.
type SessionState int

const (
	// SessionStopped is the initial state; no transport session is open.
	SessionStopped SessionState = iota
	// SessionConnecting spans the connect/subscribe/position/stream handshake.
	SessionConnecting
	// SessionStreaming is the stable operating state.
	SessionStreaming
)

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case SessionStopped:
		return "stopped"
	case SessionConnecting:
		return "connecting"
	case SessionStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// SessionMeta is the identity of one live session, carried into logs,
// metrics dimensions and adapter events.
type SessionMeta struct {
	SessionID string
	Channel   ChannelID
}

// Validate checks that the session has an id and a valid channel.
func (m *SessionMeta) Validate() error {
	if m == nil {
		return errors.New("session meta is required")
	}
	if m.SessionID == "" {
		return errors.New("session_id is required")
	}
	return m.Channel.Validate()
}
