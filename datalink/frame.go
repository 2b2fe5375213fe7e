// Package datalink implements a DataLink 1.0 client, the protocol spoken by
// ringserver for real-time packet streaming.
//
// Every message in either direction is a frame:
//
//	"DL" | header length (1 byte) | ASCII header | payload
//
// The payload size is carried inside the header itself (e.g. the last field of
// a PACKET header, the third field of OK/ERROR/INFO). Commands without a
// payload field carry none.
package datalink

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Frame size constants.
const (
	// Preamble starts every frame.
	Preamble = "DL"
	// PreambleSize is the preamble plus the header length byte.
	PreambleSize = 3
	// MaxHeaderSize is the largest header a single length byte can describe.
	MaxHeaderSize = 255
	// MaxPayloadSize bounds the payload of a single frame (1 MiB).
	MaxPayloadSize = 1 << 20
)

// Header keywords.
const (
	KeywordID        = "ID"
	KeywordOK        = "OK"
	KeywordError     = "ERROR"
	KeywordPacket    = "PACKET"
	KeywordInfo      = "INFO"
	KeywordEndStream = "ENDSTREAM"
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorMalformed indicates a bad preamble or an unparseable header.
	FrameErrorMalformed
	// FrameErrorTooLarge indicates a payload exceeding MaxPayloadSize.
	FrameErrorTooLarge
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameError returns true if err is a *FrameError.
// Every kind ends the connection: framing cannot be recovered mid-stream.
func IsFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr)
}

// Frame is a single decoded DataLink message.
type Frame struct {
	Header  string
	Payload []byte
}

// Keyword returns the first word of the header.
func (f *Frame) Keyword() string {
	keyword, _, _ := strings.Cut(f.Header, " ")
	return keyword
}

// Fields returns the whitespace-separated header fields.
func (f *Frame) Fields() []string {
	return strings.Fields(f.Header)
}

// FrameDecoder decodes DataLink frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorMalformed: bad preamble or header
//   - *FrameError with Kind=FrameErrorTooLarge: payload exceeds limit
func (d *FrameDecoder) ReadFrame() (*Frame, error) {
	var pre [PreambleSize]byte
	if _, err := io.ReadFull(d.reader, pre[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read preamble", Err: err}
	}
	if string(pre[:2]) != Preamble {
		return nil, &FrameError{
			Kind: FrameErrorMalformed,
			Msg:  fmt.Sprintf("bad preamble %q", pre[:2]),
		}
	}

	header := make([]byte, pre[2])
	if _, err := io.ReadFull(d.reader, header); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read header", Err: err}
	}

	frame := &Frame{Header: string(header)}
	size, err := payloadSize(frame)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorMalformed, Msg: fmt.Sprintf("header %q", frame.Header), Err: err}
	}
	if size > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	if size > 0 {
		frame.Payload = make([]byte, size)
		if _, err := io.ReadFull(d.reader, frame.Payload); err != nil {
			return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
		}
	}
	return frame, nil
}

// payloadSize extracts the payload size announced by a header.
func payloadSize(f *Frame) (int, error) {
	fields := f.Fields()
	if len(fields) == 0 {
		return 0, errors.New("empty header")
	}

	var sizeField string
	switch fields[0] {
	case KeywordPacket:
		if len(fields) != 7 {
			return 0, fmt.Errorf("PACKET header has %d fields, want 7", len(fields))
		}
		sizeField = fields[6]
	case KeywordOK, KeywordError, KeywordInfo:
		if len(fields) < 3 {
			return 0, fmt.Errorf("%s header has %d fields, want 3", fields[0], len(fields))
		}
		sizeField = fields[2]
	case "WRITE":
		if len(fields) < 7 {
			return 0, fmt.Errorf("WRITE header has %d fields, want 7", len(fields))
		}
		sizeField = fields[len(fields)-1]
	case "MATCH", "REJECT":
		if len(fields) < 2 {
			return 0, fmt.Errorf("%s header missing size", fields[0])
		}
		sizeField = fields[1]
	default:
		return 0, nil
	}

	size, err := strconv.Atoi(sizeField)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid payload size %q", sizeField)
	}
	return size, nil
}

// EncodeFrame encodes a header and optional payload as one frame.
func EncodeFrame(header string, payload []byte) ([]byte, error) {
	if len(header) == 0 || len(header) > MaxHeaderSize {
		return nil, fmt.Errorf("header length %d out of range [1, %d]", len(header), MaxHeaderSize)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize)
	}
	buf := make([]byte, 0, PreambleSize+len(header)+len(payload))
	buf = append(buf, Preamble...)
	buf = append(buf, byte(len(header)))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	return buf, nil
}
