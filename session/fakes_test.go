package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/heliwatch/adapter"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/mseed"
	"github.com/justapithecus/heliwatch/types"
)

var (
	testChannel = types.ChannelID{Network: "UW", Station: "JCW", Channel: "EHZ"}
	testNow     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// fakeTransport records handshake and teardown calls in order.
type fakeTransport struct {
	mu        sync.Mutex
	calls     []string
	positions []time.Time
	errs      map[string]error
	// gates hold a step until released or, when ctx-aware, canceled.
	gates    map[string]chan struct{}
	entered  map[string]chan struct{}
	ignoreCx bool
	packets  chan *types.Packet
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		entered: make(map[string]chan struct{}),
		packets: make(chan *types.Packet, 16),
	}
}

// hold makes step block until release(step) is called.
func (f *fakeTransport) hold(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[step] = make(chan struct{})
	f.entered[step] = make(chan struct{})
}

func (f *fakeTransport) release(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.gates[step])
}

func (f *fakeTransport) waitEntered(t *testing.T, step string) {
	t.Helper()
	f.mu.Lock()
	ch := f.entered[step]
	f.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("step %q never entered", step)
	}
}

func (f *fakeTransport) step(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate, entered := f.gates[name], f.entered[name]
	err := f.errs[name]
	ignore := f.ignoreCx
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		if ignore {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func (f *fakeTransport) Connect(ctx context.Context) (string, error) {
	if err := f.step(ctx, "connect"); err != nil {
		return "", err
	}
	return "DataLink 2018.078 :: DLPROTO:1.0", nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, pattern string) (string, error) {
	if err := f.step(ctx, "subscribe "+pattern); err != nil {
		return "", err
	}
	return "1 streams selected", nil
}

func (f *fakeTransport) PositionAfter(ctx context.Context, t time.Time) error {
	f.mu.Lock()
	f.positions = append(f.positions, t)
	f.mu.Unlock()
	return f.step(ctx, "position")
}

func (f *fakeTransport) Stream(ctx context.Context) error {
	return f.step(ctx, "stream")
}

func (f *fakeTransport) EndStream(ctx context.Context) error {
	return f.step(ctx, "endstream")
}

func (f *fakeTransport) Close() error {
	return f.step(context.Background(), "close")
}

func (f *fakeTransport) Packets() <-chan *types.Packet {
	return f.packets
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Positions() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.positions...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.positions = nil
}

// fakeQuery returns fixed segments and records the requested windows.
type fakeQuery struct {
	mu       sync.Mutex
	segments []*types.Segment
	err      error
	windows  []types.TimeWindow
}

func (q *fakeQuery) Query(_ context.Context, _ types.ChannelID, w types.TimeWindow) ([]*types.Segment, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.windows = append(q.windows, w)
	return q.segments, q.err
}

// recordingSink captures everything handed to the display.
type recordingSink struct {
	mu          sync.Mutex
	segments    []*types.Segment
	markers     []types.Marker
	errors      []string
	panicAppend bool
}

func (s *recordingSink) AppendSegment(seg *types.Segment) {
	if s.panicAppend {
		panic("render failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
}

func (s *recordingSink) SetMarker(m types.Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, m)
}

func (s *recordingSink) ReportError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *recordingSink) counts() (segments, markers, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments), len(s.markers), len(s.errors)
}

// recordingNotifier captures published lifecycle events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*adapter.SessionEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev *adapter.SessionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.EventType
	}
	return out
}

// segmentAt returns n one-second samples starting at start.
func segmentAt(start time.Time, n int) *types.Segment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i % 7)
	}
	return &types.Segment{Channel: testChannel, Start: start, SampleRate: 1, Samples: samples}
}

// mseedPacket encodes seg as a single miniSEED packet.
func mseedPacket(t *testing.T, seg *types.Segment) *types.Packet {
	t.Helper()
	data, err := mseed.EncodeInt32(seg, 512)
	if err != nil {
		t.Fatalf("EncodeInt32() error = %v", err)
	}
	return &types.Packet{
		StreamID:  testChannel.StreamID(types.EncodingMiniSEED),
		DataStart: seg.Start,
		DataEnd:   seg.End(),
		Data:      data,
	}
}

type harness struct {
	ctrl      *Controller
	transport *fakeTransport
	query     *fakeQuery
	sink      *recordingSink
	notifier  *recordingNotifier
	collector *metrics.Collector
}

// newHarness builds a controller whose backfill ends exactly at testNow.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		query:     &fakeQuery{segments: []*types.Segment{segmentAt(testNow.Add(-time.Hour), 3600)}},
		sink:      &recordingSink{},
		notifier:  &recordingNotifier{},
		collector: metrics.NewCollector("sess-test", testChannel.String(), "tcp", ""),
	}
	ctrl, err := NewController(Config{
		SessionID: "sess-test",
		Transport: h.transport,
		Query:     h.query,
		Sink:      h.sink,
		Notifier:  h.notifier,
		Collector: h.collector,
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	h.ctrl = ctrl
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ctrl.Close(ctx)
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background(), testChannel, types.WindowBefore(testNow, time.Hour)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func equalCalls(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("calls = %q, want %q", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("calls = %q, want %q", got, want)
		}
	}
	return nil
}

var errBoom = errors.New("boom")
