package datalink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

var (
	// ErrPacketNotFound is wrapped by a *ServerError when the server has no
	// packet at the requested position, typically because it was already
	// pruned from the ring.
	ErrPacketNotFound = errors.New("datalink: packet not found")
	// ErrNotConnected is returned by commands issued without a connection.
	ErrNotConnected = errors.New("datalink: not connected")
	// ErrConnectionClosed is returned when the connection drops while a
	// command is waiting for its reply.
	ErrConnectionClosed = errors.New("datalink: connection closed")
	// ErrUnexpectedReply is returned when the server answers with a frame the
	// command does not expect.
	ErrUnexpectedReply = errors.New("datalink: unexpected reply")
)

// packetNotFoundMessage is the message ringserver sends when positioning fails.
const packetNotFoundMessage = "Packet not found"

// ServerError is an ERROR reply from the server.
type ServerError struct {
	Command string
	Value   int64
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("datalink: %s rejected (value %d): %s", e.Command, e.Value, e.Message)
}

// Unwrap maps the well-known "Packet not found" reply, value 0, to
// ErrPacketNotFound.
func (e *ServerError) Unwrap() error {
	if e.Value == 0 && strings.EqualFold(strings.TrimSpace(e.Message), packetNotFoundMessage) {
		return ErrPacketNotFound
	}
	return nil
}

// IsPacketNotFound returns true if err reports a missing packet position.
func IsPacketNotFound(err error) bool {
	return errors.Is(err, ErrPacketNotFound)
}

// reply is a decoded OK or ERROR frame.
type reply struct {
	ok      bool
	value   int64
	message string
}

func parseReply(f *Frame) (*reply, error) {
	fields := f.Fields()
	if len(fields) < 3 || (fields[0] != KeywordOK && fields[0] != KeywordError) {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedReply, f.Header)
	}
	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: reply value %q", ErrUnexpectedReply, fields[1])
	}
	return &reply{
		ok:      fields[0] == KeywordOK,
		value:   value,
		message: string(f.Payload),
	}, nil
}

// parsePacket decodes a PACKET frame:
//
//	PACKET <streamid> <pktid> <hppackettime> <hppacketstart> <hppacketend> <size>
//
// High precision times are microseconds since the Unix epoch.
func parsePacket(f *Frame) (*types.Packet, error) {
	fields := f.Fields()
	if len(fields) != 7 || fields[0] != KeywordPacket {
		return nil, fmt.Errorf("malformed PACKET header %q", f.Header)
	}

	nums := make([]int64, 4)
	for i := range nums {
		v, err := strconv.ParseInt(fields[2+i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed PACKET header %q: field %d: %w", f.Header, 2+i, err)
		}
		nums[i] = v
	}

	return &types.Packet{
		StreamID:   fields[1],
		PacketID:   nums[0],
		PacketTime: hpTime(nums[1]),
		DataStart:  hpTime(nums[2]),
		DataEnd:    hpTime(nums[3]),
		Data:       f.Payload,
	}, nil
}

func hpTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// HPTime renders t as a DataLink high precision time.
func HPTime(t time.Time) int64 {
	return t.UnixMicro()
}
