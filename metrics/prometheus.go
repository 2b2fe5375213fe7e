package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// counterDesc pairs a Prometheus descriptor with the snapshot field it exposes.
type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

// PrometheusCollector exposes a Collector through the Prometheus client.
// Values are read from a fresh Snapshot on every scrape; the Collector stays
// the single source of truth.
type PrometheusCollector struct {
	source   *Collector
	counters []counterDesc
}

// NewPrometheusCollector wraps c for registration with a prometheus.Registerer.
// Session dimensions become constant labels.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	snap := c.Snapshot()
	labels := prometheus.Labels{
		"session_id": snap.SessionID,
		"channel":    snap.Channel,
		"transport":  snap.Transport,
	}

	counter := func(name, help string, value func(Snapshot) int64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName("heliwatch", "", name), help, nil, labels),
			value: value,
		}
	}

	return &PrometheusCollector{
		source: c,
		counters: []counterDesc{
			counter("sessions_started_total", "Live sessions started.",
				func(s Snapshot) int64 { return s.SessionsStarted }),
			counter("backfill_success_total", "Historical queries that returned data.",
				func(s Snapshot) int64 { return s.BackfillSuccess }),
			counter("backfill_failure_total", "Historical queries that failed.",
				func(s Snapshot) int64 { return s.BackfillFailure }),
			counter("handshakes_started_total", "DataLink handshakes started.",
				func(s Snapshot) int64 { return s.HandshakesStarted }),
			counter("handshakes_completed_total", "DataLink handshakes that reached STREAM.",
				func(s Snapshot) int64 { return s.HandshakesCompleted }),
			counter("handshakes_failed_total", "DataLink handshakes that failed.",
				func(s Snapshot) int64 { return s.HandshakesFailed }),
			counter("handshakes_aborted_total", "DataLink handshakes abandoned after a stop.",
				func(s Snapshot) int64 { return s.HandshakesAborted }),
			counter("position_not_found_total", "POSITION AFTER requests the server could not satisfy.",
				func(s Snapshot) int64 { return s.PositionNotFound }),
			counter("disconnects_total", "Transitions into the stopped state.",
				func(s Snapshot) int64 { return s.Disconnects }),
			counter("packets_accepted_total", "Packets that advanced the stream position.",
				func(s Snapshot) int64 { return s.PacketsAccepted }),
			counter("packets_malformed_total", "Packets discarded as malformed.",
				func(s Snapshot) int64 { return s.PacketsMalformed }),
			counter("segments_appended_total", "Segments forwarded to the display.",
				func(s Snapshot) int64 { return s.SegmentsAppended }),
			counter("segments_suppressed_total", "Segments withheld while paused.",
				func(s Snapshot) int64 { return s.SegmentsSuppressed }),
			counter("sink_panics_total", "Recovered display sink panics.",
				func(s Snapshot) int64 { return s.SinkPanics }),
			counter("frame_decode_errors_total", "DataLink frames that failed to decode.",
				func(s Snapshot) int64 { return s.FrameDecodeErrors }),
			counter("archive_write_success_total", "Successful archive writes.",
				func(s Snapshot) int64 { return s.ArchiveWriteSuccess }),
			counter("archive_write_failure_total", "Failed archive writes.",
				func(s Snapshot) int64 { return s.ArchiveWriteFailure }),
			counter("adapter_publish_success_total", "Delivered adapter notifications.",
				func(s Snapshot) int64 { return s.AdapterPublishSuccess }),
			counter("adapter_publish_failure_total", "Failed adapter notifications.",
				func(s Snapshot) int64 { return s.AdapterPublishFailure }),
		},
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()
	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(snap)))
	}
}

// Verify PrometheusCollector implements prometheus.Collector.
var _ prometheus.Collector = (*PrometheusCollector)(nil)
