package transport

import (
	"io"
	"net"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/wire"
)

// TCP listens for direct client connections and runs one serial
// request/response loop per connection. Frames are self-delimiting;
// requests on a connection are answered strictly in arrival order.
type TCP struct {
	listener net.Listener
	handler  FrameHandler
	onClosed ClosedHandler
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	connsMu sync.RWMutex
	conns   map[string]net.Conn // Key: remote address string

	mu      sync.RWMutex
	started bool
	closed  bool
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new listener is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":8884").
	// Ignored if Listener is provided. Defaults to an ephemeral port.
	ListenAddr string

	// Handler answers each received frame. Required.
	Handler FrameHandler

	// OnConnClosed is notified when a connection ends. Optional.
	OnConnClosed ClosedHandler

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// NewTCP creates a TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener: config.Listener,
		handler:  config.Handler,
		onClosed: config.OnConnClosed,
		closeCh:  make(chan struct{}),
		conns:    make(map[string]net.Conn),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("wire-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("listening on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and all connections.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[string]net.Conn)
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// LocalAddr returns the address the transport is listening on.
func (t *TCP) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// ConnCount returns the number of live connections.
func (t *TCP) ConnCount() int {
	t.connsMu.RLock()
	defer t.connsMu.RUnlock()
	return len(t.conns)
}

// AddConnection serves an existing connection on the transport. This
// is useful for testing with in-memory pipes.
func (t *TCP) AddConnection(conn net.Conn) {
	t.wg.Add(1)
	go t.handleConn(conn)
}

// acceptLoop accepts incoming connections.
func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				continue
			}
		}

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

// handleConn runs the request/response loop for one connection.
func (t *TCP) handleConn(conn net.Conn) {
	defer t.wg.Done()

	connKey := "tcp:" + conn.RemoteAddr().String()
	t.connsMu.Lock()
	t.conns[connKey] = conn
	t.connsMu.Unlock()

	if t.log != nil {
		t.log.Debugf("connection opened: %s", connKey)
	}

	defer func() {
		conn.Close()
		t.connsMu.Lock()
		delete(t.conns, connKey)
		t.connsMu.Unlock()

		if t.log != nil {
			t.log.Debugf("connection closed: %s", connKey)
		}
		if t.onClosed != nil {
			t.onClosed(connKey)
		}
	}()

	reader := wire.NewStreamReader(conn)
	writer := wire.NewStreamWriter(conn)

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if err != io.EOF && t.log != nil {
				t.log.Debugf("read failed on %s: %v", connKey, err)
			}
			return
		}

		resp := t.handler(connKey, frame)
		if resp == nil {
			return
		}

		if err := writer.WriteFrame(resp); err != nil {
			if t.log != nil {
				t.log.Debugf("write failed on %s: %v", connKey, err)
			}
			return
		}
	}
}
