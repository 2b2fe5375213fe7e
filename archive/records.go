package archive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/justapithecus/heliwatch/mseed"
	"github.com/justapithecus/heliwatch/types"
)

// RecordKindSegment discriminates archived waveform records.
const RecordKindSegment = "segment"

// EncodingInt32 names the miniSEED payload encoding of archived records.
const EncodingInt32 = "INT32"

// Partition keys, outermost first.
var partitionKeys = []string{"network", "station", "channel", "day"}

// SegmentRecord is the storage format for one archived segment. Data holds
// big-endian INT32 miniSEED records (base64 in JSON).
type SegmentRecord struct {
	RecordKind string  `json:"record_kind"`
	Location   string  `json:"location"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	SampleRate float64 `json:"sample_rate"`
	NumSamples int     `json:"num_samples"`
	Encoding   string  `json:"encoding"`
	Data       []byte  `json:"data"`

	// Partition keys
	Network string `json:"network"`
	Station string `json:"station"`
	Channel string `json:"channel"`
	Day     string `json:"day"`
}

// DeriveDay returns the YYYY-MM-DD partition of t in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewSegmentRecord encodes seg for storage.
func NewSegmentRecord(seg *types.Segment) (SegmentRecord, error) {
	data, err := mseed.EncodeInt32(seg, mseed.DefaultRecordLength)
	if err != nil {
		return SegmentRecord{}, err
	}
	return SegmentRecord{
		RecordKind: RecordKindSegment,
		Location:   seg.Channel.Location,
		Start:      seg.Start.UTC().Format(time.RFC3339Nano),
		End:        seg.End().UTC().Format(time.RFC3339Nano),
		SampleRate: seg.SampleRate,
		NumSamples: seg.Len(),
		Encoding:   EncodingInt32,
		Data:       data,
		Network:    seg.Channel.Network,
		Station:    seg.Channel.Station,
		Channel:    seg.Channel.Channel,
		Day:        DeriveDay(seg.Start),
	}, nil
}

// toMap converts r for storage. Lode HiveLayout requires records as
// map[string]any.
func (r SegmentRecord) toMap() map[string]any {
	return map[string]any{
		"record_kind": r.RecordKind,
		"network":     r.Network,
		"station":     r.Station,
		"location":    r.Location,
		"channel":     r.Channel,
		"day":         r.Day,
		"start":       r.Start,
		"end":         r.End,
		"sample_rate": r.SampleRate,
		"num_samples": r.NumSamples,
		"encoding":    r.Encoding,
		"data":        r.Data,
	}
}

// recordChannel extracts the channel identity of a stored record.
func recordChannel(m map[string]any) types.ChannelID {
	return types.ChannelID{
		Network:  toString(m["network"]),
		Station:  toString(m["station"]),
		Location: toString(m["location"]),
		Channel:  toString(m["channel"]),
	}
}

// recordSpan returns the [start, end) a record covers.
func recordSpan(m map[string]any) (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339Nano, toString(m["start"]))
	if err != nil {
		return start, end, fmt.Errorf("record start: %w", err)
	}
	end, err = time.Parse(time.RFC3339Nano, toString(m["end"]))
	if err != nil {
		return start, end, fmt.Errorf("record end: %w", err)
	}
	return start, end, nil
}

// decodeRecord returns the segments stored in a record map.
func decodeRecord(m map[string]any) ([]*types.Segment, error) {
	var data []byte
	switch v := m["data"].(type) {
	case []byte:
		data = v
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("record data: %w", err)
		}
		data = b
	default:
		return nil, fmt.Errorf("record data: unexpected type %T", v)
	}
	records, err := mseed.ReadRecords(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return mseed.Merge(mseed.Segments(records)), nil
}

// toString converts a value to string, returning "" for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
