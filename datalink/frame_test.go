package datalink

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, header string, payload []byte) []byte {
	t.Helper()
	b, err := EncodeFrame(header, payload)
	if err != nil {
		t.Fatalf("EncodeFrame(%q): %v", header, err)
	}
	return b
}

func TestFrameDecoder_Sequence(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(mustEncode(t, "ID DataLink 2018.078 :: DLPROTO:1.0 PACKETSIZE:512", nil))
	stream.Write(mustEncode(t, "OK 1 18", []byte("1 streams selected")))
	stream.Write(mustEncode(t, "PACKET UW_JCW__EHZ/MSEED 42 1700000000000000 1699999999000000 1700000000990000 4", []byte{1, 2, 3, 4}))
	stream.Write(mustEncode(t, "ENDSTREAM", nil))

	dec := NewFrameDecoder(&stream)

	want := []struct {
		keyword string
		payload string
	}{
		{KeywordID, ""},
		{KeywordOK, "1 streams selected"},
		{KeywordPacket, "\x01\x02\x03\x04"},
		{KeywordEndStream, ""},
	}
	for i, w := range want {
		f, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Keyword() != w.keyword {
			t.Errorf("frame %d keyword = %q, want %q", i, f.Keyword(), w.keyword)
		}
		if string(f.Payload) != w.payload {
			t.Errorf("frame %d payload = %q, want %q", i, f.Payload, w.payload)
		}
	}

	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("after last frame: err = %v, want io.EOF", err)
	}
}

func TestFrameDecoder_Errors(t *testing.T) {
	full := mustEncode(t, "OK 0 5", []byte("hello"))

	tests := []struct {
		name string
		data []byte
		kind FrameErrorKind
	}{
		{"truncated preamble", []byte("D"), FrameErrorPartial},
		{"truncated header", full[:5], FrameErrorPartial},
		{"truncated payload", full[:len(full)-2], FrameErrorPartial},
		{"bad preamble", append([]byte("XX"), full[2:]...), FrameErrorMalformed},
		{"bad size", mustEncode(t, "OK 0 five", nil), FrameErrorMalformed},
		{"short packet header", mustEncode(t, "PACKET UW_JCW__EHZ/MSEED 4", nil), FrameErrorMalformed},
		{"too large", mustEncode(t, "INFO STATUS 2000000", nil), FrameErrorTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameDecoder(bytes.NewReader(tt.data)).ReadFrame()
			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				t.Fatalf("error = %v, want *FrameError", err)
			}
			if frameErr.Kind != tt.kind {
				t.Errorf("kind = %d, want %d", frameErr.Kind, tt.kind)
			}
			if !IsFrameError(err) {
				t.Error("IsFrameError = false")
			}
		})
	}
}

func TestEncodeFrame_Limits(t *testing.T) {
	if _, err := EncodeFrame("", nil); err == nil {
		t.Error("expected error for empty header")
	}
	if _, err := EncodeFrame(strings.Repeat("x", MaxHeaderSize+1), nil); err == nil {
		t.Error("expected error for oversized header")
	}
	b, err := EncodeFrame(strings.Repeat("x", MaxHeaderSize), nil)
	if err != nil {
		t.Fatalf("max header: %v", err)
	}
	if b[2] != MaxHeaderSize {
		t.Errorf("length byte = %d, want %d", b[2], MaxHeaderSize)
	}
}

func TestParsePacket(t *testing.T) {
	f := &Frame{
		Header:  "PACKET UW_JCW__EHZ/MSEED 42 1700000000000000 1699999999000000 1700000000990000 4",
		Payload: []byte{1, 2, 3, 4},
	}
	pkt, err := parsePacket(f)
	if err != nil {
		t.Fatalf("parsePacket: %v", err)
	}
	if pkt.StreamID != "UW_JCW__EHZ/MSEED" || pkt.PacketID != 42 {
		t.Errorf("packet = %+v", pkt)
	}
	if got := pkt.DataEnd.UnixMicro(); got != 1700000000990000 {
		t.Errorf("DataEnd = %d", got)
	}
	if !pkt.IsMiniSEED() {
		t.Error("expected miniSEED packet")
	}

	f.Header = "PACKET UW_JCW__EHZ/MSEED x 1 2 3 4"
	if _, err := parsePacket(f); err == nil {
		t.Error("expected error for non-numeric packet id")
	}
}

func TestServerError_PacketNotFound(t *testing.T) {
	notFound := &ServerError{Command: "POSITION", Value: 0, Message: "Packet not found"}
	if !IsPacketNotFound(notFound) {
		t.Error("expected packet-not-found")
	}
	other := &ServerError{Command: "POSITION", Value: 0, Message: "Error positioning reader"}
	if IsPacketNotFound(other) {
		t.Error("unexpected packet-not-found")
	}
	nonZero := &ServerError{Command: "POSITION", Value: 1, Message: "Packet not found"}
	if IsPacketNotFound(nonZero) {
		t.Error("non-zero value must not map to packet-not-found")
	}
}
