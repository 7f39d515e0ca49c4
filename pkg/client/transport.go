package client

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/backkem/lattice/pkg/wire"
)

// Transport carries one frame to a device and returns its reply.
// Implementations serialize concurrent callers; the wire protocol has
// no interleaving within a connection.
type Transport interface {
	RoundTrip(f *wire.Frame) (*wire.Frame, error)
	Close() error
}

// TCPTransport speaks the framed protocol over a byte stream.
type TCPTransport struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *wire.StreamReader
	writer *wire.StreamWriter
	closed bool
}

// DialTCP connects to a device's direct TCP endpoint.
func DialTCP(addr string) (*TCPTransport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPTransport(conn), nil
}

// NewTCPTransport wraps an existing stream connection.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{
		conn:   conn,
		reader: wire.NewStreamReader(conn),
		writer: wire.NewStreamWriter(conn),
	}
}

// RoundTrip writes the frame and blocks for the device's reply.
func (t *TCPTransport) RoundTrip(f *wire.Frame) (*wire.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if err := t.writer.WriteFrame(f); err != nil {
		return nil, err
	}
	return t.reader.ReadFrame()
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// RelayTransport posts frames to a relay endpoint, one HTTP request
// per frame.
type RelayTransport struct {
	url    string
	client *http.Client
}

// NewRelayTransport creates a relay transport for one device.
// baseURL is the relay root, e.g. "http://127.0.0.1:8886".
func NewRelayTransport(baseURL, deviceID string) *RelayTransport {
	return &RelayTransport{
		url:    strings.TrimRight(baseURL, "/") + "/" + deviceID,
		client: &http.Client{},
	}
}

// RoundTrip posts the frame body and decodes the response frame.
func (t *RelayTransport) RoundTrip(f *wire.Frame) (*wire.Frame, error) {
	resp, err := t.client.Post(t.url, "application/octet-stream", bytes.NewReader(f.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: relay returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, wire.MaxFrameSize))
	if err != nil {
		return nil, err
	}

	reply := &wire.Frame{}
	if _, err := reply.Decode(body); err != nil {
		return nil, err
	}
	return reply, nil
}

// Close is a no-op; relay requests hold no persistent connection
// state worth tearing down.
func (t *RelayTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
