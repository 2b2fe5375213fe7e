// Package mseed decodes and encodes SEED 2.4 miniSEED data records.
//
// Only the parts of the format heliwatch needs are implemented: the fixed
// section of the data header, blockettes 100 and 1000, and the INT16, INT32,
// FLOAT32, FLOAT64, Steim-1 and Steim-2 data encodings.
package mseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/justapithecus/heliwatch/types"
)

// Header layout constants.
const (
	// FixedHeaderSize is the size of the fixed section of the data header.
	FixedHeaderSize = 48
	// MinRecordLength is the smallest record length accepted (2^7).
	MinRecordLength = 128
	// MaxRecordLength is the largest record length accepted (2^20).
	MaxRecordLength = 1 << 20
)

// Data encoding formats (blockette 1000 field 3).
type Encoding uint8

const (
	EncodingASCII   Encoding = 0
	EncodingInt16   Encoding = 1
	EncodingInt32   Encoding = 3
	EncodingFloat32 Encoding = 4
	EncodingFloat64 Encoding = 5
	EncodingSteim1  Encoding = 10
	EncodingSteim2  Encoding = 11
)

// String returns the conventional encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingASCII:
		return "ASCII"
	case EncodingInt16:
		return "INT16"
	case EncodingInt32:
		return "INT32"
	case EncodingFloat32:
		return "FLOAT32"
	case EncodingFloat64:
		return "FLOAT64"
	case EncodingSteim1:
		return "STEIM1"
	case EncodingSteim2:
		return "STEIM2"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

var (
	// ErrShortRecord is returned when fewer bytes than a record needs are available.
	ErrShortRecord = errors.New("mseed: short record")
	// ErrMalformedHeader is returned for header fields that cannot be valid.
	ErrMalformedHeader = errors.New("mseed: malformed header")
	// ErrUnsupportedEncoding is returned for data encodings heliwatch cannot decode.
	ErrUnsupportedEncoding = errors.New("mseed: unsupported encoding")
	// ErrMalformedData is returned when the data section does not decode.
	ErrMalformedData = errors.New("mseed: malformed data")
)

// Header is the decoded fixed header plus the blockettes heliwatch reads.
type Header struct {
	Sequence     string
	Quality      byte
	Channel      types.ChannelID
	Start        time.Time
	NumSamples   int
	SampleRate   float64
	Encoding     Encoding
	RecordLength int
	DataOffset   int
	// ByteOrder of the header fields.
	ByteOrder binary.ByteOrder
	// WordOrder of the data section, from blockette 1000.
	WordOrder binary.ByteOrder

	hasB1000 bool
}

// Record is one decoded data record.
type Record struct {
	Header
	Samples []float64
}

// Segment converts the record to a display segment.
func (r *Record) Segment() *types.Segment {
	return &types.Segment{
		Channel:    r.Channel,
		Start:      r.Start,
		SampleRate: r.SampleRate,
		Samples:    r.Samples,
	}
}

// End returns the time just after the last sample.
func (r *Record) End() time.Time {
	return r.Segment().End()
}

// ParseRecord decodes one record from the start of data.
// Trailing bytes beyond the record length are ignored.
func ParseRecord(data []byte) (*Record, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data) < h.RecordLength {
		return nil, fmt.Errorf("%w: have %d bytes, record length %d", ErrShortRecord, len(data), h.RecordLength)
	}
	samples, err := decodeSamples(h, data[h.DataOffset:h.RecordLength])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.Channel, err)
	}
	return &Record{Header: *h, Samples: samples}, nil
}

// DecodeSegment decodes a DataLink miniSEED payload into a segment.
func DecodeSegment(data []byte) (*types.Segment, error) {
	rec, err := ParseRecord(data)
	if err != nil {
		return nil, err
	}
	return rec.Segment(), nil
}

// ParseHeader decodes the fixed header and blockettes 100 and 1000.
// Without blockette 1000 the record length is taken as len(data) and the
// data is assumed to be Steim-1 in header byte order.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < FixedHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}

	order := detectByteOrder(data)
	h := &Header{
		Sequence:  strings.TrimSpace(string(data[0:6])),
		Quality:   data[6],
		ByteOrder: order,
		WordOrder: order,
		Encoding:  EncodingSteim1,
		Channel: types.ChannelID{
			Station:  strings.TrimSpace(string(data[8:13])),
			Location: strings.TrimSpace(string(data[13:15])),
			Channel:  strings.TrimSpace(string(data[15:18])),
			Network:  strings.TrimSpace(string(data[18:20])),
		},
	}

	switch h.Quality {
	case 'D', 'R', 'Q', 'M':
	default:
		return nil, fmt.Errorf("%w: quality indicator %q", ErrMalformedHeader, h.Quality)
	}

	start, err := decodeBTime(data[20:30], order)
	if err != nil {
		return nil, err
	}

	h.NumSamples = int(order.Uint16(data[30:32]))
	factor := int16(order.Uint16(data[32:34]))
	multiplier := int16(order.Uint16(data[34:36]))
	h.SampleRate = sampleRate(factor, multiplier)
	activity := data[36]
	numBlockettes := int(data[39])
	correction := int32(order.Uint32(data[40:44]))
	h.DataOffset = int(order.Uint16(data[44:46]))
	next := int(order.Uint16(data[46:48]))

	// Bit 1 set means the correction is already applied to the start time.
	if activity&0x02 == 0 && correction != 0 {
		start = start.Add(time.Duration(correction) * 100 * time.Microsecond)
	}
	h.Start = start

	for i := 0; i < numBlockettes && next != 0; i++ {
		if next < FixedHeaderSize || next+4 > len(data) {
			return nil, fmt.Errorf("%w: blockette offset %d", ErrMalformedHeader, next)
		}
		kind := order.Uint16(data[next : next+2])
		following := int(order.Uint16(data[next+2 : next+4]))

		switch kind {
		case 100:
			if next+8 > len(data) {
				return nil, fmt.Errorf("%w: truncated blockette 100", ErrShortRecord)
			}
			if rate := float64(math.Float32frombits(order.Uint32(data[next+4 : next+8]))); rate > 0 {
				h.SampleRate = rate
			}
		case 1000:
			if next+8 > len(data) {
				return nil, fmt.Errorf("%w: truncated blockette 1000", ErrShortRecord)
			}
			h.Encoding = Encoding(data[next+4])
			if data[next+5] == 0 {
				h.WordOrder = binary.LittleEndian
			} else {
				h.WordOrder = binary.BigEndian
			}
			exp := data[next+6]
			if exp < 7 || exp > 20 {
				return nil, fmt.Errorf("%w: record length exponent %d", ErrMalformedHeader, exp)
			}
			h.RecordLength = 1 << exp
			h.hasB1000 = true
		}

		if following != 0 && following <= next {
			return nil, fmt.Errorf("%w: blockette chain loops at %d", ErrMalformedHeader, next)
		}
		next = following
	}

	if !h.hasB1000 {
		h.RecordLength = len(data)
	}
	if h.NumSamples > 0 && (h.DataOffset < FixedHeaderSize || h.DataOffset > h.RecordLength) {
		return nil, fmt.Errorf("%w: data offset %d", ErrMalformedHeader, h.DataOffset)
	}
	if h.DataOffset == 0 {
		h.DataOffset = h.RecordLength
	}
	return h, nil
}

// detectByteOrder picks the byte order that yields a plausible BTIME year.
func detectByteOrder(data []byte) binary.ByteOrder {
	year := binary.BigEndian.Uint16(data[20:22])
	if year >= 1900 && year <= 2100 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeBTime(b []byte, order binary.ByteOrder) (time.Time, error) {
	year := int(order.Uint16(b[0:2]))
	doy := int(order.Uint16(b[2:4]))
	hour, minute, sec := int(b[4]), int(b[5]), int(b[6])
	fract := int(order.Uint16(b[8:10]))

	if year < 1900 || year > 2100 || doy < 1 || doy > 366 || hour > 23 || minute > 59 || sec > 60 || fract > 9999 {
		return time.Time{}, fmt.Errorf("%w: start time %d,%03d %02d:%02d:%02d.%04d",
			ErrMalformedHeader, year, doy, hour, minute, sec, fract)
	}

	t := time.Date(year, time.January, 1, hour, minute, sec, fract*100_000, time.UTC)
	return t.AddDate(0, 0, doy-1), nil
}

func encodeBTime(b []byte, t time.Time, order binary.ByteOrder) {
	t = t.UTC()
	order.PutUint16(b[0:2], uint16(t.Year()))
	order.PutUint16(b[2:4], uint16(t.YearDay()))
	b[4] = byte(t.Hour())
	b[5] = byte(t.Minute())
	b[6] = byte(t.Second())
	b[7] = 0
	order.PutUint16(b[8:10], uint16(t.Nanosecond()/100_000))
}

// sampleRate applies the SEED sample rate factor and multiplier rules.
func sampleRate(factor, multiplier int16) float64 {
	f, m := float64(factor), float64(multiplier)
	switch {
	case factor == 0 || multiplier == 0:
		return 0
	case factor > 0 && multiplier > 0:
		return f * m
	case factor > 0 && multiplier < 0:
		return -f / m
	case factor < 0 && multiplier > 0:
		return -m / f
	default:
		return 1 / (f * m)
	}
}

// rateFactors picks a factor and multiplier that represent rate.
func rateFactors(rate float64) (factor, multiplier int16) {
	if rate <= 0 {
		return 0, 0
	}
	if rate == float64(int64(rate)) && rate <= 32767 {
		return int16(rate), 1
	}
	if period := 1 / rate; rate < 1 && period == float64(int64(period)) && period <= 32767 {
		return -int16(period), 1
	}
	for _, div := range []float64{10000, 1000, 100, 10} {
		if rate*div <= 32767 {
			return int16(rate*div + 0.5), -int16(div)
		}
	}
	return int16(rate + 0.5), 1
}
