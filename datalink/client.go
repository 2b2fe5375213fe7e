package datalink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/heliwatch/log"
	"github.com/justapithecus/heliwatch/metrics"
	"github.com/justapithecus/heliwatch/types"
)

// DefaultPacketBuffer is the default capacity of the packet channel.
const DefaultPacketBuffer = 64

// Config configures a Client.
type Config struct {
	// URL of the server; see NewDialer for accepted forms.
	URL string
	// Dial overrides URL-based dialing.
	Dial DialFunc
	// DialTimeout bounds connection setup (default 10s).
	DialTimeout time.Duration
	// ClientID is the program name sent in the ID command (default "heliwatch").
	ClientID string
	// PacketBuffer is the capacity of the Packets channel.
	PacketBuffer int
	Logger       *log.Logger
	Collector    *metrics.Collector
}

// Client is a DataLink client. A single reader goroutine per connection
// routes PACKET frames to Packets() and every other frame to the command
// waiting for it. Commands are serialized.
//
// The Packets channel outlives individual connections: a Client can be
// closed and reconnected any number of times.
type Client struct {
	dial      DialFunc
	transport string
	clientID  string
	logger    *log.Logger
	collector *metrics.Collector
	packets   chan *types.Packet

	cmdMu sync.Mutex

	mu   sync.Mutex
	conn *connection
}

// connection is the state of one dialed connection.
type connection struct {
	rwc        io.ReadWriteCloser
	replies    chan *Frame
	done       chan struct{}
	readerDone chan struct{}
	err        error // read by others only after readerDone is closed
	closeOnce  sync.Once
	streaming  atomic.Bool
}

// NewClient creates a client. No connection is made until Connect.
func NewClient(cfg Config) (*Client, error) {
	dial, transport := cfg.Dial, "custom"
	if dial == nil {
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		var err error
		dial, transport, err = NewDialer(cfg.URL, timeout)
		if err != nil {
			return nil, err
		}
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "heliwatch"
	}
	buffer := cfg.PacketBuffer
	if buffer <= 0 {
		buffer = DefaultPacketBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		dial:      dial,
		transport: transport,
		clientID:  clientID,
		logger:    logger,
		collector: cfg.Collector,
		packets:   make(chan *types.Packet, buffer),
	}, nil
}

// Transport returns the transport selected from the URL ("tcp", "ws", or
// "custom" for an injected DialFunc).
func (c *Client) Transport() string {
	return c.transport
}

// Packets returns the channel packets are delivered on.
func (c *Client) Packets() <-chan *types.Packet {
	return c.packets
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	return c.current() != nil
}

// Connect dials the server and exchanges ID commands.
// It returns the server's identification line. An existing connection is
// closed first.
func (c *Client) Connect(ctx context.Context) (string, error) {
	_ = c.Close()

	rwc, err := c.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("datalink: connect: %w", err)
	}

	conn := &connection{
		rwc:        rwc,
		replies:    make(chan *Frame, 8),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)

	f, err := c.command(ctx, c.idCommand(), nil, true)
	if err != nil {
		_ = c.Close()
		return "", err
	}
	switch f.Keyword() {
	case KeywordID:
		serverID := strings.TrimSpace(strings.TrimPrefix(f.Header, KeywordID))
		c.logger.Debug("datalink id response", map[string]any{"server_id": serverID})
		return serverID, nil
	case KeywordError:
		_ = c.Close()
		return "", c.expectOK("ID", f)
	default:
		_ = c.Close()
		return "", fmt.Errorf("%w to ID: %q", ErrUnexpectedReply, f.Header)
	}
}

// Subscribe sends MATCH with a stream id pattern and returns the server's
// acknowledgement message.
func (c *Client) Subscribe(ctx context.Context, pattern string) (string, error) {
	f, err := c.command(ctx, fmt.Sprintf("MATCH %d", len(pattern)), []byte(pattern), true)
	if err != nil {
		return "", err
	}
	r, err := parseReply(f)
	if err != nil {
		return "", err
	}
	if !r.ok {
		return "", &ServerError{Command: "MATCH", Value: r.value, Message: r.message}
	}
	c.logger.Debug("datalink match response", map[string]any{"pattern": pattern, "response": r.message})
	return r.message, nil
}

// PositionAfter positions the server's read cursor at the first packet
// after t. A server with no such packet answers with an error wrapping
// ErrPacketNotFound.
func (c *Client) PositionAfter(ctx context.Context, t time.Time) error {
	f, err := c.command(ctx, fmt.Sprintf("POSITION AFTER %d", HPTime(t)), nil, true)
	if err != nil {
		return err
	}
	return c.expectOK("POSITION", f)
}

// Stream starts packet delivery. The server sends no reply.
func (c *Client) Stream(ctx context.Context) error {
	if _, err := c.command(ctx, "STREAM", nil, false); err != nil {
		return err
	}
	if conn := c.current(); conn != nil {
		conn.streaming.Store(true)
	}
	return nil
}

// EndStream stops packet delivery. While streaming, it waits for the
// server's ENDSTREAM acknowledgement, which follows the last packet.
func (c *Client) EndStream(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	streaming := conn.streaming.Swap(false)
	f, err := c.command(ctx, KeywordEndStream, nil, streaming)
	if err != nil || !streaming {
		return err
	}
	if f.Keyword() != KeywordEndStream {
		return fmt.Errorf("%w to ENDSTREAM: %q", ErrUnexpectedReply, f.Header)
	}
	return nil
}

// Close closes the current connection, if any, and waits for its reader to
// exit. Closing a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.closeConn(conn)
}

func (c *Client) closeConn(conn *connection) error {
	var err error
	conn.closeOnce.Do(func() {
		close(conn.done)
		err = conn.rwc.Close()
	})
	<-conn.readerDone
	return err
}

func (c *Client) current() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) idCommand() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("ID %s:%s:%d:%s", c.clientID, user, os.Getpid(), runtime.GOARCH)
}

func (c *Client) expectOK(command string, f *Frame) error {
	r, err := parseReply(f)
	if err != nil {
		return err
	}
	if !r.ok {
		return &ServerError{Command: command, Value: r.value, Message: r.message}
	}
	return nil
}

// command writes one frame and, when wantReply is set, waits for the next
// non-PACKET frame.
func (c *Client) command(ctx context.Context, header string, payload []byte, wantReply bool) (*Frame, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	conn := c.current()
	if conn == nil {
		return nil, ErrNotConnected
	}

	// Unsolicited frames left over from earlier commands are not replies to this one.
	for drained := false; !drained; {
		select {
		case <-conn.replies:
		default:
			drained = true
		}
	}

	frame, err := EncodeFrame(header, payload)
	if err != nil {
		return nil, fmt.Errorf("datalink: %w", err)
	}
	keyword, _, _ := strings.Cut(header, " ")

	if dl, ok := conn.rwc.(interface{ SetWriteDeadline(time.Time) error }); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = dl.SetWriteDeadline(deadline)
			defer dl.SetWriteDeadline(time.Time{})
		}
	}
	if _, err := conn.rwc.Write(frame); err != nil {
		return nil, fmt.Errorf("datalink: write %s: %w", keyword, err)
	}
	if !wantReply {
		return nil, nil
	}

	select {
	case f := <-conn.replies:
		return f, nil
	case <-conn.readerDone:
		if conn.err != nil && !errors.Is(conn.err, io.EOF) {
			return nil, fmt.Errorf("%w awaiting %s reply: %v", ErrConnectionClosed, keyword, conn.err)
		}
		return nil, fmt.Errorf("%w awaiting %s reply", ErrConnectionClosed, keyword)
	case <-ctx.Done():
		return nil, fmt.Errorf("datalink: %s: %w", keyword, ctx.Err())
	}
}

// readLoop demultiplexes frames until the connection ends.
func (c *Client) readLoop(conn *connection) {
	defer close(conn.readerDone)

	dec := NewFrameDecoder(conn.rwc)
	for {
		frame, err := dec.ReadFrame()
		if err != nil {
			conn.err = err
			select {
			case <-conn.done:
			default:
				if IsFrameError(err) {
					c.collector.IncFrameDecodeError()
				}
				c.logger.Warn("datalink connection lost", map[string]any{"error": err.Error()})
			}
			return
		}

		switch frame.Keyword() {
		case KeywordPacket:
			pkt, err := parsePacket(frame)
			if err != nil {
				c.collector.IncFrameDecodeError()
				c.logger.Warn("discarding packet", map[string]any{"error": err.Error()})
				continue
			}
			select {
			case c.packets <- pkt:
			case <-conn.done:
				return
			}
		default:
			select {
			case conn.replies <- frame:
			default:
				c.logger.Debug("dropping unsolicited frame", map[string]any{"header": frame.Header})
			}
		}
	}
}
