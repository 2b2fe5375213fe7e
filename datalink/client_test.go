package datalink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justapithecus/heliwatch/iox"
	"github.com/justapithecus/heliwatch/metrics"
)

const testServerID = "DataLink 2018.078 :: DLPROTO:1.0 PACKETSIZE:512 WRITE"

// fakeRingServer answers DataLink commands the way ringserver does.
// Replies can be overridden per command keyword.
type fakeRingServer struct {
	t    *testing.T
	conn io.ReadWriteCloser

	mu       sync.Mutex
	headers  []string
	override map[string]func(f *Frame) (string, []byte)
	received chan string
}

func newFakeRingServer(t *testing.T, conn io.ReadWriteCloser) *fakeRingServer {
	s := &fakeRingServer{
		t:        t,
		conn:     conn,
		override: map[string]func(f *Frame) (string, []byte){},
		received: make(chan string, 32),
	}
	go s.serve()
	return s
}

func (s *fakeRingServer) on(keyword string, fn func(f *Frame) (string, []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[keyword] = fn
}

func (s *fakeRingServer) send(header string, payload []byte) {
	b, err := EncodeFrame(header, payload)
	if err != nil {
		s.t.Errorf("fake server encode: %v", err)
		return
	}
	_, _ = s.conn.Write(b)
}

func (s *fakeRingServer) serve() {
	dec := NewFrameDecoder(s.conn)
	for {
		f, err := dec.ReadFrame()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.headers = append(s.headers, f.Header)
		fn := s.override[f.Keyword()]
		s.mu.Unlock()
		s.received <- f.Header

		if fn != nil {
			header, payload := fn(f)
			if header != "" {
				s.send(header, payload)
			}
			continue
		}

		switch f.Keyword() {
		case "ID":
			s.send("ID "+testServerID, nil)
		case "MATCH":
			msg := "1 streams selected after match"
			s.send(fmt.Sprintf("OK 1 %d", len(msg)), []byte(msg))
		case "POSITION":
			msg := "Positioned to packet ID 42"
			s.send(fmt.Sprintf("OK 42 %d", len(msg)), []byte(msg))
		case "ENDSTREAM":
			s.send("ENDSTREAM", nil)
		}
	}
}

func (s *fakeRingServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.headers))
	for i, h := range s.headers {
		out[i], _, _ = strings.Cut(h, " ")
	}
	return out
}

// waitFor blocks until the server has read a command starting with prefix.
func (s *fakeRingServer) waitFor(prefix string) string {
	s.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case h := <-s.received:
			if strings.HasPrefix(h, prefix) {
				return h
			}
		case <-timeout:
			s.t.Fatalf("server never received %q", prefix)
			return ""
		}
	}
}

// pipeClient returns a client whose every Connect is served by a fresh fake server.
func pipeClient(t *testing.T, collector *metrics.Collector) (*Client, <-chan *fakeRingServer) {
	t.Helper()
	servers := make(chan *fakeRingServer, 4)
	client, err := NewClient(Config{
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			clientEnd, serverEnd := net.Pipe()
			servers <- newFakeRingServer(t, serverEnd)
			return clientEnd, nil
		},
		Collector: collector,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(iox.CloseFunc(client))
	return client, servers
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_Handshake(t *testing.T) {
	ctx := testContext(t)
	client, servers := pipeClient(t, nil)

	serverID, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if serverID != testServerID {
		t.Errorf("server id = %q, want %q", serverID, testServerID)
	}
	srv := <-servers
	if id := srv.waitFor("ID "); !strings.HasPrefix(id, "ID heliwatch:") {
		t.Errorf("ID command = %q", id)
	}

	msg, err := client.Subscribe(ctx, "UW_JCW__EHZ/MSEED")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if msg != "1 streams selected after match" {
		t.Errorf("match response = %q", msg)
	}

	after := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := client.PositionAfter(ctx, after); err != nil {
		t.Fatalf("PositionAfter: %v", err)
	}
	if h := srv.waitFor("POSITION"); h != fmt.Sprintf("POSITION AFTER %d", after.UnixMicro()) {
		t.Errorf("position command = %q", h)
	}

	if err := client.Stream(ctx); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	srv.waitFor("STREAM")

	srv.send("PACKET UW_JCW__EHZ/MSEED 43 1709294400000000 1709294399000000 1709294399990000 3", []byte("abc"))
	select {
	case pkt := <-client.Packets():
		if pkt.PacketID != 43 || string(pkt.Data) != "abc" {
			t.Errorf("packet = %+v", pkt)
		}
	case <-ctx.Done():
		t.Fatal("no packet delivered")
	}

	if err := client.EndStream(ctx); err != nil {
		t.Fatalf("EndStream: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if client.Connected() {
		t.Error("client still connected after Close")
	}

	want := []string{"ID", "MATCH", "POSITION", "STREAM", "ENDSTREAM"}
	if got := srv.commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestClient_PositionAfterNotFound(t *testing.T) {
	ctx := testContext(t)
	client, servers := pipeClient(t, nil)

	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv := <-servers
	srv.on("POSITION", func(*Frame) (string, []byte) {
		return "ERROR 0 16", []byte("Packet not found")
	})

	err := client.PositionAfter(ctx, time.Now())
	if !IsPacketNotFound(err) {
		t.Fatalf("error = %v, want packet not found", err)
	}
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Command != "POSITION" || serverErr.Value != 0 {
		t.Errorf("server error = %+v", serverErr)
	}

	// The connection is still usable.
	if err := client.Stream(ctx); err != nil {
		t.Errorf("Stream after not-found: %v", err)
	}
}

func TestClient_ServerErrorOnMatch(t *testing.T) {
	ctx := testContext(t)
	client, servers := pipeClient(t, nil)

	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	(<-servers).on("MATCH", func(*Frame) (string, []byte) {
		return "ERROR 0 11", []byte("bad pattern")
	})

	_, err := client.Subscribe(ctx, "(")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want *ServerError", err)
	}
	if IsPacketNotFound(err) {
		t.Error("MATCH error must not be packet-not-found")
	}
}

func TestClient_NotConnected(t *testing.T) {
	ctx := testContext(t)
	client, _ := pipeClient(t, nil)

	if _, err := client.Subscribe(ctx, "x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe error = %v, want ErrNotConnected", err)
	}
	if err := client.EndStream(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("EndStream error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on idle client: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClient_ConnectionDropsDuringCommand(t *testing.T) {
	ctx := testContext(t)
	client, servers := pipeClient(t, nil)

	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv := <-servers
	srv.on("POSITION", func(*Frame) (string, []byte) {
		_ = srv.conn.Close()
		return "", nil
	})

	err := client.PositionAfter(ctx, time.Now())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("error = %v, want ErrConnectionClosed", err)
	}
}

func TestClient_CommandHonoursContext(t *testing.T) {
	client, servers := pipeClient(t, nil)

	if _, err := client.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	(<-servers).on("MATCH", func(*Frame) (string, []byte) { return "", nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Subscribe(ctx, "UW_JCW__EHZ/MSEED")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestClient_ReconnectKeepsPacketChannel(t *testing.T) {
	ctx := testContext(t)
	client, servers := pipeClient(t, nil)
	packets := client.Packets()

	for i := range 2 {
		if _, err := client.Connect(ctx); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
		srv := <-servers
		if err := client.Stream(ctx); err != nil {
			t.Fatalf("Stream %d: %v", i, err)
		}
		srv.waitFor("STREAM")
		srv.send(fmt.Sprintf("PACKET UW_JCW__EHZ/MSEED %d 0 0 0 1", i), []byte{byte(i)})

		select {
		case pkt := <-packets:
			if pkt.PacketID != int64(i) {
				t.Errorf("packet id = %d, want %d", pkt.PacketID, i)
			}
		case <-ctx.Done():
			t.Fatalf("no packet on connection %d", i)
		}
		if err := client.EndStream(ctx); err != nil {
			t.Fatalf("EndStream %d: %v", i, err)
		}
		if err := client.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}
}

func TestClient_MalformedPacketCounted(t *testing.T) {
	ctx := testContext(t)
	collector := metrics.NewCollector("sess", "UW.JCW..EHZ", "custom", "")
	client, servers := pipeClient(t, collector)

	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv := <-servers
	srv.send("PACKET UW_JCW__EHZ/MSEED notanumber 0 0 0 1", []byte{9})
	srv.send("PACKET UW_JCW__EHZ/MSEED 7 0 0 0 1", []byte{1})

	select {
	case pkt := <-client.Packets():
		if pkt.PacketID != 7 {
			t.Errorf("packet id = %d, want 7", pkt.PacketID)
		}
	case <-ctx.Done():
		t.Fatal("no packet delivered")
	}
	if got := collector.Snapshot().FrameDecodeErrors; got != 1 {
		t.Errorf("FrameDecodeErrors = %d, want 1", got)
	}
}

func TestClient_WebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	var (
		mu        sync.Mutex
		protocols []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		protocols = append(protocols, conn.Subprotocol())
		mu.Unlock()
		// The upgraded connection outlives the handler.
		newFakeRingServer(t, &wsConn{conn: conn})
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/datalink"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()
	if client.Transport() != TransportWebSocket {
		t.Errorf("transport = %q, want %q", client.Transport(), TransportWebSocket)
	}

	ctx := testContext(t)
	serverID, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if serverID != testServerID {
		t.Errorf("server id = %q", serverID)
	}
	if _, err := client.Subscribe(ctx, "UW_JCW__EHZ/MSEED"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(protocols) != 1 || protocols[0] != Subprotocol {
		t.Errorf("negotiated subprotocols = %v", protocols)
	}
}

func TestNewDialer(t *testing.T) {
	tests := []struct {
		url       string
		transport string
		wantErr   bool
	}{
		{"rtserve.iris.washington.edu:18000", TransportTCP, false},
		{"tcp://localhost", TransportTCP, false},
		{"ws://localhost:8080/datalink", TransportWebSocket, false},
		{"wss://rtserve.iris.washington.edu/datalink", TransportWebSocket, false},
		{"http://localhost", "", true},
		{"", "", true},
		{"tcp://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			dial, transport, err := NewDialer(tt.url, time.Second)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDialer: %v", err)
			}
			if dial == nil || transport != tt.transport {
				t.Errorf("transport = %q, want %q", transport, tt.transport)
			}
		})
	}
}
