package uichannel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Link timing defaults.
const (
	// DefaultRequestTimeout is how long a server request waits for
	// the UI's response.
	DefaultRequestTimeout = 5 * time.Minute

	// DefaultHeartbeatInterval is how often the link heartbeats while
	// open.
	DefaultHeartbeatInterval = 30 * time.Second
)

// CommandSink receives UI-originated traffic from a link. The engine
// implements it.
type CommandSink interface {
	// OnDeviceCommand handles an imperative UI control.
	OnDeviceCommand(deviceID string, cmd DeviceCommand)

	// OnDeviceEvent handles an out-of-band UI notification.
	OnDeviceEvent(deviceID string, event DeviceEvent)
}

// LinkConfig configures a server-side UI link.
type LinkConfig struct {
	// RequestTimeout bounds server request round-trips.
	// Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HeartbeatInterval paces keep-alive messages. Default:
	// DefaultHeartbeatInterval. Negative disables heartbeating.
	HeartbeatInterval time.Duration

	// Sink receives UI-originated commands and events. Optional.
	Sink CommandSink

	// OnClosed fires once when the link goes away. Optional.
	OnClosed func()

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// pendingRequest is one outstanding server request awaiting its
// correlated client response.
type pendingRequest struct {
	requestType string
	createdAt   time.Time
	resultCh    chan ClientResponse
}

// Link is the server side of one device's UI channel. A single writer
// goroutine drains a FIFO queue, so messages reach the UI in the
// order they were enqueued. Outstanding server requests live in a
// pending table keyed by request id until their response arrives or
// their deadline passes.
type Link struct {
	deviceID string
	conn     Conn
	sink     CommandSink
	onClosed func()
	log      logging.LeveledLogger

	requestTimeout    time.Duration
	heartbeatInterval time.Duration

	clock   clock
	writeCh chan Envelope

	mu      sync.Mutex
	pending map[string]*pendingRequest
	closed  bool

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLink wraps a connection. Call Start to begin traffic.
func NewLink(deviceID string, conn Conn, config LinkConfig) *Link {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}

	l := &Link{
		deviceID:          deviceID,
		conn:              conn,
		sink:              config.Sink,
		onClosed:          config.OnClosed,
		requestTimeout:    config.RequestTimeout,
		heartbeatInterval: config.HeartbeatInterval,
		writeCh:           make(chan Envelope, 64),
		pending:           make(map[string]*pendingRequest),
		closeCh:           make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("uichannel")
	}
	return l
}

// DeviceID returns the id of the device the link serves.
func (l *Link) DeviceID() string {
	return l.deviceID
}

// Start launches the link's read, write and heartbeat loops.
func (l *Link) Start() {
	l.wg.Add(2)
	go l.readLoop()
	go l.writeLoop()

	if l.heartbeatInterval > 0 {
		l.wg.Add(1)
		go l.heartbeatLoop()
	}
}

// Request sends a correlated server request to the UI and blocks for
// the matching client response. Expiry removes the pending entry and
// returns ErrTimeout; an error string from the UI comes back as a
// ResponseError.
func (l *Link) Request(ctx context.Context, requestType string, payload interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	p := &pendingRequest{
		requestType: requestType,
		createdAt:   time.Now(),
		resultCh:    make(chan ClientResponse, 1),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.pending[id] = p
	l.mu.Unlock()

	req := ServerRequest{RequestID: id, RequestType: requestType, Payload: payload}
	if err := l.send(TypeServerRequest, req); err != nil {
		l.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(l.requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-p.resultCh:
		if resp.Error != "" {
			return nil, &ResponseError{RequestID: id, Message: resp.Error}
		}
		return resp.Data, nil
	case <-timer.C:
		l.removePending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		l.removePending(id)
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, ErrClosed
	}
}

// Broadcast queues a server event for the UI. Delivery order follows
// enqueue order.
func (l *Link) Broadcast(eventType string, data interface{}) error {
	return l.send(eventType, data)
}

// PendingCount returns the number of outstanding server requests.
func (l *Link) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close tears the link down: the connection closes, loops exit and
// every outstanding request fails with ErrClosed.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.pending = make(map[string]*pendingRequest)
		l.mu.Unlock()

		close(l.closeCh)
		l.conn.Close()

		if l.onClosed != nil {
			l.onClosed()
		}
	})
	l.wg.Wait()
}

// Done returns a channel closed when the link goes away.
func (l *Link) Done() <-chan struct{} {
	return l.closeCh
}

func (l *Link) send(typ string, data interface{}) error {
	env, err := newEnvelope(&l.clock, typ, data)
	if err != nil {
		return err
	}

	select {
	case l.writeCh <- env:
		return nil
	case <-l.closeCh:
		return ErrClosed
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	// The reader owns link teardown: a failed read means the UI went
	// away.
	defer func() { go l.Close() }()

	for {
		data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if l.log != nil {
				l.log.Warnf("dropping malformed envelope: device=%s err=%v", l.deviceID, err)
			}
			continue
		}

		l.handleEnvelope(env)

		select {
		case <-l.closeCh:
			return
		default:
		}
	}
}

func (l *Link) handleEnvelope(env Envelope) {
	switch env.Type {
	case TypeClientResponse:
		var resp ClientResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			return
		}
		l.resolve(resp)

	case TypeDeviceCommand:
		var cmd DeviceCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return
		}
		if l.sink != nil {
			l.sink.OnDeviceCommand(l.deviceID, cmd)
		}

	case TypeDeviceEvent:
		var event DeviceEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			return
		}
		if l.sink != nil {
			l.sink.OnDeviceEvent(l.deviceID, event)
		}

	case TypeHeartbeat:
		l.send(TypeHeartbeatResponse, nil)

	case TypeHeartbeatResponse:
		// Nothing to do; the read itself proves liveness.

	default:
		if l.log != nil {
			l.log.Debugf("ignoring unknown envelope type %q: device=%s", env.Type, l.deviceID)
		}
	}
}

// resolve completes the waiter for a client response. Responses for
// unknown ids (expired or duplicate) are dropped.
func (l *Link) resolve(resp ClientResponse) {
	l.mu.Lock()
	p, ok := l.pending[resp.RequestID]
	if ok {
		delete(l.pending, resp.RequestID)
	}
	l.mu.Unlock()

	if ok {
		p.resultCh <- resp
	} else if l.log != nil {
		l.log.Debugf("dropping response for unknown request %s: device=%s", resp.RequestID, l.deviceID)
	}
}

func (l *Link) removePending(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

func (l *Link) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case env := <-l.writeCh:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := l.conn.WriteMessage(data); err != nil {
				return
			}
		case <-l.closeCh:
			return
		}
	}
}

func (l *Link) heartbeatLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.send(TypeHeartbeat, nil)
		case <-l.closeCh:
			return
		}
	}
}
