package mseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/justapithecus/heliwatch/types"
)

// DefaultRecordLength is the record length used by EncodeInt32 when none is given.
const DefaultRecordLength = 512

const encodedDataOffset = 64

// EncodeInt32 encodes seg as big-endian INT32 records of recordLength bytes
// (a power of two between 128 and 2^20; 0 selects DefaultRecordLength).
// Samples are rounded to the nearest integer. Start times are stored with
// SEED's 100µs resolution.
func EncodeInt32(seg *types.Segment, recordLength int) ([]byte, error) {
	if seg == nil || seg.Len() == 0 {
		return nil, errors.New("mseed: empty segment")
	}
	if recordLength == 0 {
		recordLength = DefaultRecordLength
	}
	exp := lengthExponent(recordLength)
	if exp < 0 {
		return nil, fmt.Errorf("mseed: record length %d is not a power of two in [%d, %d]",
			recordLength, MinRecordLength, MaxRecordLength)
	}
	if err := seg.Channel.Validate(); err != nil {
		return nil, fmt.Errorf("mseed: %w", err)
	}

	perRecord := (recordLength - encodedDataOffset) / 4
	factor, multiplier := rateFactors(seg.SampleRate)
	order := binary.BigEndian

	var out []byte
	for first, seq := 0, 1; first < seg.Len(); first, seq = first+perRecord, seq+1 {
		n := min(perRecord, seg.Len()-first)
		rec := make([]byte, recordLength)

		copy(rec[0:6], fmt.Sprintf("%06d", seq%1_000_000))
		rec[6] = 'D'
		rec[7] = ' '
		putPadded(rec[8:13], seg.Channel.Station)
		putPadded(rec[13:15], seg.Channel.Location)
		putPadded(rec[15:18], seg.Channel.Channel)
		putPadded(rec[18:20], seg.Channel.Network)
		encodeBTime(rec[20:30], seg.TimeAt(first), order)
		order.PutUint16(rec[30:32], uint16(n))
		order.PutUint16(rec[32:34], uint16(factor))
		order.PutUint16(rec[34:36], uint16(multiplier))
		rec[39] = 1 // one blockette
		order.PutUint16(rec[44:46], encodedDataOffset)
		order.PutUint16(rec[46:48], FixedHeaderSize)

		// Blockette 1000.
		order.PutUint16(rec[48:50], 1000)
		order.PutUint16(rec[50:52], 0)
		rec[52] = byte(EncodingInt32)
		rec[53] = 1 // big-endian words
		rec[54] = byte(exp)

		for i := 0; i < n; i++ {
			v := math.Round(seg.Samples[first+i])
			v = math.Max(math.MinInt32, math.Min(math.MaxInt32, v))
			order.PutUint32(rec[encodedDataOffset+4*i:], uint32(int32(v)))
		}
		out = append(out, rec...)
	}
	return out, nil
}

func lengthExponent(length int) int {
	for exp := 7; exp <= 20; exp++ {
		if 1<<exp == length {
			return exp
		}
	}
	return -1
}

func putPadded(dst []byte, s string) {
	for i := range dst {
		if i < len(s) {
			dst[i] = s[i]
		} else {
			dst[i] = ' '
		}
	}
}
