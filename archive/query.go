package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/heliwatch/mseed"
	"github.com/justapithecus/heliwatch/types"
)

// Query answers historical queries from archived segments.
type Query struct {
	dataset lode.Dataset
	name    string
}

// NewQuery returns a query over ds.
func NewQuery(ds lode.Dataset) *Query {
	return &Query{dataset: ds, name: string(ds.ID())}
}

// Query returns the archived data for channel overlapping window, trimmed
// to the window and merged into contiguous segments. No matching data
// yields an empty result and a nil error.
func (q *Query) Query(ctx context.Context, channel types.ChannelID, window types.TimeWindow) ([]*types.Segment, error) {
	snapshots, err := q.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, q.name+"/snapshots")
	}

	days := windowDays(window)
	seen := make(map[string]struct{})
	var out []*types.Segment

	for _, snap := range snapshots {
		if !snapshotMatches(snap, channel, days) {
			continue
		}
		data, err := q.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", q.name, snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindSegment {
				continue
			}
			if recordChannel(record) != channel {
				continue
			}
			start, end, err := recordSpan(record)
			if err != nil || !window.Overlaps(start, end) {
				continue
			}
			// Snapshots may repeat records written earlier.
			key := toString(record["start"]) + "|" + toString(record["end"])
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			segs, err := decodeRecord(record)
			if err != nil {
				return nil, NewStorageError(ErrStorage, "decode", q.name, err)
			}
			for _, seg := range segs {
				if t := mseed.Trim(seg, window.Start, window.End); t != nil && t.Len() > 0 {
					out = append(out, t)
				}
			}
		}
	}
	return mseed.Merge(out), nil
}

// windowDays lists the day partitions a window touches.
func windowDays(w types.TimeWindow) map[string]struct{} {
	days := make(map[string]struct{})
	end := w.End.UTC()
	for d := w.Start.UTC().Truncate(24 * time.Hour); d.Before(end); d = d.Add(24 * time.Hour) {
		days[DeriveDay(d)] = struct{}{}
	}
	return days
}

// snapshotMatches is a coarse pre-filter on manifest paths. Record fields
// are authoritative.
func snapshotMatches(snap *lode.DatasetSnapshot, channel types.ChannelID, days map[string]struct{}) bool {
	if snap.Manifest == nil {
		return false
	}
	for _, f := range snap.Manifest.Files {
		if !matchesPartitionValue(f.Path, "network", channel.Network) ||
			!matchesPartitionValue(f.Path, "station", channel.Station) ||
			!matchesPartitionValue(f.Path, "channel", channel.Channel) {
			continue
		}
		for day := range days {
			if matchesPartitionValue(f.Path, "day", day) {
				return true
			}
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. This avoids substring false positives (e.g.
// station=JC matching station=JCW).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
