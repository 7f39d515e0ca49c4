package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Pipe provides bidirectional in-memory stream communication between
// two endpoints, backed by pion's test bridge. Use it for
// deterministic transport tests without real network I/O.
//
// By default messages are delivered by a background goroutine; use
// SetAutoProcess(false) plus Tick/Process for manual control over
// delivery order.
type Pipe struct {
	bridge *test.Bridge

	mu          sync.Mutex
	closed      bool
	autoProcess bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge:      test.NewBridge(),
		autoProcess: true,
		stopCh:      make(chan struct{}),
	}
	p.startAutoProcess()
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic message delivery.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
		p.wg.Wait()
	}
}

// Tick delivers one queued message in each direction.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued messages.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close closes both endpoints and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// ServerConn returns the server-side endpoint, for handing to a
// transport via AddConnection.
func (p *Pipe) ServerConn() net.Conn {
	return &pipeConn{conn: p.bridge.GetConn0(), localID: 0}
}

// ClientConn returns the client-side endpoint.
func (p *Pipe) ClientConn() net.Conn {
	return &pipeConn{conn: p.bridge.GetConn1(), localID: 1}
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int // Endpoint ID (0 or 1)
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

// String returns a string representation of the address.
func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// pipeConn wraps a bridge endpoint with pipe addresses. The bridge
// delivers whole writes as packets; pipeConn buffers them so readers
// see ordinary stream semantics.
type pipeConn struct {
	conn    net.Conn
	localID int

	rmu  sync.Mutex
	rbuf []byte
}

func (c *pipeConn) Read(b []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.rbuf) == 0 {
		packet := make([]byte, 64*1024)
		n, err := c.conn.Read(packet)
		if err != nil {
			return 0, err
		}
		c.rbuf = packet[:n]
	}

	n := copy(b, c.rbuf)
	c.rbuf = c.rbuf[n:]
	return n, nil
}

func (c *pipeConn) Write(b []byte) (int, error) { return c.conn.Write(b) }
func (c *pipeConn) Close() error                { return c.conn.Close() }

func (c *pipeConn) LocalAddr() net.Addr  { return PipeAddr{ID: c.localID} }
func (c *pipeConn) RemoteAddr() net.Addr { return PipeAddr{ID: 1 - c.localID} }

func (c *pipeConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

var _ net.Conn = (*pipeConn)(nil)
