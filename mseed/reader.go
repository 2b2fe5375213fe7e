package mseed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Reader reads concatenated records from a stream, such as an FDSN
// dataselect response body. Every record must carry blockette 1000.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 8192)}
}

// Next returns the next record, or io.EOF at a clean end of stream.
// A stream that ends inside a record yields ErrShortRecord.
func (r *Reader) Next() (*Record, error) {
	head, err := r.br.Peek(FixedHeaderSize)
	if err != nil {
		if errors.Is(err, io.EOF) && len(head) == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrShortRecord, len(head))
		}
		return nil, err
	}

	length, err := r.recordLength()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: stream ended inside a %d byte record", ErrShortRecord, length)
		}
		return nil, err
	}
	return ParseRecord(buf)
}

// recordLength walks the blockette chain in the buffered bytes until
// blockette 1000 is found.
func (r *Reader) recordLength() (int, error) {
	peek := MinRecordLength
	for {
		data, err := r.br.Peek(peek)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		h, herr := ParseHeader(data)
		if herr == nil && h.hasB1000 {
			if h.RecordLength < MinRecordLength || h.RecordLength > MaxRecordLength {
				return 0, fmt.Errorf("%w: record length %d", ErrMalformedHeader, h.RecordLength)
			}
			return h.RecordLength, nil
		}
		if herr != nil && !errors.Is(herr, ErrShortRecord) && !errors.Is(herr, ErrMalformedHeader) {
			return 0, herr
		}
		// Blockettes may sit beyond the bytes peeked so far.
		if len(data) < peek || peek >= 4096 {
			if herr != nil {
				return 0, herr
			}
			return 0, fmt.Errorf("%w: no blockette 1000", ErrMalformedHeader)
		}
		peek *= 2
	}
}

// ReadRecords reads every record from r.
func ReadRecords(r io.Reader) ([]*Record, error) {
	reader := NewReader(r)
	var records []*Record
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}
