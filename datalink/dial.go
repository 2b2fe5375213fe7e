package datalink

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/justapithecus/heliwatch/iox"
)

// DefaultPort is the conventional ringserver DataLink port.
const DefaultPort = "18000"

// Subprotocol is the WebSocket subprotocol ringserver expects.
const Subprotocol = "DataLink1.0"

// Transport names, also used as the metrics transport dimension.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// DialFunc opens a byte stream to a DataLink server.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// NewDialer returns a DialFunc for rawURL and the transport it selected.
//
// Accepted forms:
//   - host:port or tcp://host[:port] (port defaults to 18000)
//   - ws://host/path or wss://host/path (DataLink over WebSocket)
func NewDialer(rawURL string, timeout time.Duration) (DialFunc, string, error) {
	if rawURL == "" {
		return nil, "", fmt.Errorf("datalink: empty server url")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "tcp://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("datalink: invalid server url: %w", err)
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("datalink: server url %q has no host", rawURL)
	}

	switch u.Scheme {
	case "tcp":
		addr := u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), DefaultPort)
		}
		return tcpDialer(addr, timeout), TransportTCP, nil
	case "ws", "wss":
		return wsDialer(u.String(), timeout), TransportWebSocket, nil
	default:
		return nil, "", fmt.Errorf("datalink: unsupported url scheme %q", u.Scheme)
	}
}

func tcpDialer(addr string, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func wsDialer(rawURL string, timeout time.Duration) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := &websocket.Dialer{
			HandshakeTimeout: timeout,
			Subprotocols:     []string{Subprotocol},
		}
		conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
		if resp != nil && resp.Body != nil {
			iox.DiscardClose(resp.Body)
		}
		if err != nil {
			return nil, err
		}
		return &wsConn{conn: conn}, nil
	}
}

// wsConn adapts a message-oriented WebSocket to a byte stream. Each Write is
// sent as one binary message; Read concatenates incoming messages.
type wsConn struct {
	conn   *websocket.Conn
	reader io.Reader
	wmu    sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			mt, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
