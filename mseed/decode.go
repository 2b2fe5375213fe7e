package mseed

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodeSamples decodes the data section of a record.
func decodeSamples(h *Header, data []byte) ([]float64, error) {
	n := h.NumSamples
	if n == 0 {
		return []float64{}, nil
	}
	order := h.WordOrder

	switch h.Encoding {
	case EncodingInt16:
		if len(data) < 2*n {
			return nil, fmt.Errorf("%w: %d INT16 samples in %d bytes", ErrMalformedData, n, len(data))
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(int16(order.Uint16(data[2*i:])))
		}
		return out, nil

	case EncodingInt32:
		if len(data) < 4*n {
			return nil, fmt.Errorf("%w: %d INT32 samples in %d bytes", ErrMalformedData, n, len(data))
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(int32(order.Uint32(data[4*i:])))
		}
		return out, nil

	case EncodingFloat32:
		if len(data) < 4*n {
			return nil, fmt.Errorf("%w: %d FLOAT32 samples in %d bytes", ErrMalformedData, n, len(data))
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(data[4*i:])))
		}
		return out, nil

	case EncodingFloat64:
		if len(data) < 8*n {
			return nil, fmt.Errorf("%w: %d FLOAT64 samples in %d bytes", ErrMalformedData, n, len(data))
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(data[8*i:]))
		}
		return out, nil

	case EncodingSteim1:
		return decodeSteim(data, n, order, steim1Diffs)

	case EncodingSteim2:
		return decodeSteim(data, n, order, steim2Diffs)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, h.Encoding)
	}
}

const (
	steimFrameSize  = 64
	steimFrameWords = 16
)

// diffUnpacker appends the differences packed in word w under nibble code nib.
type diffUnpacker func(diffs []int32, nib uint32, w uint32) ([]int32, error)

// decodeSteim integrates Steim-compressed differences into n samples.
// Frame 0 carries the forward (X0) and reverse (Xn) integration constants in
// words 1 and 2; Xn is not checked. The first difference refers to the
// previous record and is not used.
func decodeSteim(data []byte, n int, order binary.ByteOrder, unpack diffUnpacker) ([]float64, error) {
	frames := len(data) / steimFrameSize
	if frames == 0 {
		return nil, fmt.Errorf("%w: no Steim frames", ErrMalformedData)
	}

	var (
		x0    int32
		diffs = make([]int32, 0, n)
		err   error
	)

	for f := 0; f < frames && len(diffs) < n; f++ {
		frame := data[f*steimFrameSize : (f+1)*steimFrameSize]
		nibbles := order.Uint32(frame[0:4])
		first := 1
		if f == 0 {
			x0 = int32(order.Uint32(frame[4:8]))
			first = 3
		}
		for w := first; w < steimFrameWords; w++ {
			nib := (nibbles >> (30 - 2*uint(w))) & 0x3
			if nib == 0 {
				continue
			}
			diffs, err = unpack(diffs, nib, order.Uint32(frame[4*w:4*w+4]))
			if err != nil {
				return nil, err
			}
		}
	}

	if len(diffs) < n {
		return nil, fmt.Errorf("%w: %d differences for %d samples", ErrMalformedData, len(diffs), n)
	}

	out := make([]float64, n)
	acc := x0
	out[0] = float64(acc)
	for i := 1; i < n; i++ {
		acc += diffs[i]
		out[i] = float64(acc)
	}
	return out, nil
}

func steim1Diffs(diffs []int32, nib uint32, w uint32) ([]int32, error) {
	switch nib {
	case 1:
		return append(diffs,
			int32(int8(w>>24)), int32(int8(w>>16)), int32(int8(w>>8)), int32(int8(w))), nil
	case 2:
		return append(diffs, int32(int16(w>>16)), int32(int16(w))), nil
	case 3:
		return append(diffs, int32(w)), nil
	}
	return diffs, nil
}

func steim2Diffs(diffs []int32, nib uint32, w uint32) ([]int32, error) {
	dnib := w >> 30
	switch nib {
	case 1:
		return append(diffs,
			int32(int8(w>>24)), int32(int8(w>>16)), int32(int8(w>>8)), int32(int8(w))), nil
	case 2:
		switch dnib {
		case 1:
			return unpackBits(diffs, w, 30, 1), nil
		case 2:
			return unpackBits(diffs, w, 15, 2), nil
		case 3:
			return unpackBits(diffs, w, 10, 3), nil
		}
	case 3:
		switch dnib {
		case 0:
			return unpackBits(diffs, w, 6, 5), nil
		case 1:
			return unpackBits(diffs, w, 5, 6), nil
		case 2:
			return unpackBits(diffs, w, 4, 7), nil
		}
	}
	return nil, fmt.Errorf("%w: Steim-2 nibble %d with dnib %d", ErrMalformedData, nib, dnib)
}

// unpackBits extracts count signed values of width bits, most significant first,
// from the low 30 bits of w.
func unpackBits(diffs []int32, w uint32, width, count uint) []int32 {
	mask := uint32(1)<<width - 1
	for i := count; i > 0; i-- {
		v := (w >> ((i - 1) * width)) & mask
		diffs = append(diffs, signExtend(v, width))
	}
	return diffs
}

func signExtend(v uint32, width uint) int32 {
	shift := 32 - width
	return int32(v<<shift) >> shift
}
