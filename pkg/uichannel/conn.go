package uichannel

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the message-oriented transport a link runs over. The
// production implementation wraps a WebSocket connection; tests use
// in-memory pipes.
type Conn interface {
	// ReadMessage blocks until one complete message arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete message.
	WriteMessage(data []byte) error

	// Close tears the transport down. Blocked reads and writes fail.
	Close() error
}

// wsConn adapts a gorilla WebSocket connection to Conn. Writes are
// serialized; gorilla allows at most one concurrent writer.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSConn wraps a WebSocket connection.
func NewWSConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// pipeShared is the close state both ends of a pipe share.
type pipeShared struct {
	closeCh chan struct{}
	once    sync.Once
}

// pipeConn is an in-memory Conn for tests. NewPipe returns two ends
// connected back to back.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	shared *pipeShared
}

// NewPipe creates a connected pair of in-memory Conns. Closing either
// end fails both.
func NewPipe() (Conn, Conn) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	shared := &pipeShared{closeCh: make(chan struct{})}

	a := &pipeConn{in: b2a, out: a2b, shared: shared}
	b := &pipeConn{in: a2b, out: b2a, shared: shared}

	return a, b
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.shared.closeCh:
		return nil, ErrClosed
	}
}

func (c *pipeConn) WriteMessage(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case c.out <- buf:
		return nil
	case <-c.shared.closeCh:
		return ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.shared.once.Do(func() { close(c.shared.closeCh) })
	return nil
}
