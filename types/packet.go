package types

import (
	"strings"
	"time"
)

// PacketFormat discriminates DataLink packet payload formats.
type PacketFormat string

// Packet formats recognised by heliwatch.
const (
	FormatMiniSEED PacketFormat = "mseed"
	FormatUnknown  PacketFormat = "unknown"
)

// Packet is a single packet delivered by a DataLink server.
type Packet struct {
	// StreamID is the server stream identifier, e.g. "UW_JCW__EHZ/MSEED".
	StreamID string
	// PacketID is the server-assigned packet identifier.
	PacketID int64
	// PacketTime is when the server accepted the packet.
	PacketTime time.Time
	// DataStart is the time of the first sample in the payload.
	DataStart time.Time
	// DataEnd is the time of the last sample in the payload.
	DataEnd time.Time
	// Data is the raw payload.
	Data []byte
}

// Format derives the payload format from the stream id suffix.
func (p *Packet) Format() PacketFormat {
	if p == nil {
		return FormatUnknown
	}
	i := strings.LastIndexByte(p.StreamID, '/')
	if i < 0 {
		return FormatUnknown
	}
	if strings.EqualFold(p.StreamID[i+1:], EncodingMiniSEED) {
		return FormatMiniSEED
	}
	return FormatUnknown
}

// IsMiniSEED reports whether the packet carries a miniSEED record.
func (p *Packet) IsMiniSEED() bool {
	return p.Format() == FormatMiniSEED
}
