package uichannel

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// Client queue bounds.
const (
	// MaxRetryQueue bounds the responses a client keeps for redelivery
	// after a reconnect.
	MaxRetryQueue = 10

	// seenRequestLimit bounds the duplicate-suppression window.
	seenRequestLimit = 128
)

// RequestHandler performs the work a server request asks for and
// returns the response data. A returned error travels back as the
// response's error string.
type RequestHandler func(req ServerRequest) (interface{}, error)

// BroadcastHandler observes server broadcast events.
type BroadcastHandler func(eventType string, data json.RawMessage)

// ClientConfig configures a UI-side channel client.
type ClientConfig struct {
	// OnServerRequest handles correlated work invitations. Optional;
	// without it every request is answered with an error.
	OnServerRequest RequestHandler

	// OnBroadcast observes server events. Optional.
	OnBroadcast BroadcastHandler

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Client is the UI side of the channel. It survives connection loss:
// responses that fail to send are kept in a bounded in-order retry
// queue and drained when a new connection attaches. Server requests
// already answered are suppressed by request id if the server resends
// them.
type Client struct {
	config ClientConfig
	log    logging.LeveledLogger
	clock  clock

	mu        sync.Mutex
	conn      Conn
	connGen   int
	retry     []Envelope
	seen      map[string]bool
	seenOrder []string
	closed    bool

	wg sync.WaitGroup
}

// NewClient creates a detached client. Call Attach or Dial to come
// online.
func NewClient(config ClientConfig) *Client {
	c := &Client{
		config: config,
		seen:   make(map[string]bool),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("uichannel-client")
	}
	return c
}

// Dial connects to the device's WebSocket endpoint and attaches.
func (c *Client) Dial(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	c.Attach(NewWSConn(conn))
	return nil
}

// Attach makes conn the client's active connection, closing any
// previous one, and drains the retry queue in order.
func (c *Client) Attach(conn Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}

	old := c.conn
	c.conn = conn
	c.connGen++
	gen := c.connGen

	// Drain pending redeliveries in order before anything new.
	retry := c.retry
	c.retry = nil
	for _, env := range retry {
		if err := c.writeLocked(env); err != nil {
			break
		}
	}
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	c.wg.Add(1)
	go c.readLoop(conn, gen)
}

// Connected reports whether a connection is attached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// RetryQueueLen returns the number of responses awaiting redelivery.
func (c *Client) RetryQueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retry)
}

// SendCommand pushes a device_command to the server.
func (c *Client) SendCommand(command string, data interface{}) error {
	raw, err := marshalRaw(data)
	if err != nil {
		return err
	}
	return c.sendNow(TypeDeviceCommand, DeviceCommand{Command: command, Data: raw})
}

// SendEvent pushes a device_event to the server.
func (c *Client) SendEvent(eventType string, data interface{}) error {
	raw, err := marshalRaw(data)
	if err != nil {
		return err
	}
	return c.sendNow(TypeDeviceEvent, DeviceEvent{EventType: eventType, Data: raw})
}

// Close detaches and drops all queued state.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.retry = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
}

func (c *Client) readLoop(conn Conn, gen int) {
	defer c.wg.Done()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.connGen == gen {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if c.log != nil {
				c.log.Warnf("dropping malformed envelope: %v", err)
			}
			continue
		}

		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env Envelope) {
	switch env.Type {
	case TypeServerRequest:
		var req ServerRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		c.handleRequest(req)

	case TypeHeartbeat:
		c.sendNow(TypeHeartbeatResponse, nil)

	case TypeHeartbeatResponse:
		// Liveness only.

	default:
		if c.config.OnBroadcast != nil {
			c.config.OnBroadcast(env.Type, env.Data)
		}
	}
}

func (c *Client) handleRequest(req ServerRequest) {
	if c.markSeen(req.RequestID) {
		if c.log != nil {
			c.log.Debugf("suppressing duplicate request %s", req.RequestID)
		}
		return
	}

	resp := ClientResponse{RequestID: req.RequestID, RequestType: req.RequestType}
	if c.config.OnServerRequest == nil {
		resp.Error = "no request handler"
	} else if data, err := c.config.OnServerRequest(req); err != nil {
		resp.Error = err.Error()
	} else if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Data = raw
		}
	}

	c.sendOrQueue(TypeClientResponse, resp)
}

// markSeen records a request id, returning true when it was already
// seen. The window is bounded; the oldest ids fall out first.
func (c *Client) markSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen[id] {
		return true
	}

	c.seen[id] = true
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > seenRequestLimit {
		delete(c.seen, c.seenOrder[0])
		c.seenOrder = c.seenOrder[1:]
	}

	return false
}

// sendNow writes immediately and drops the message on failure.
// Commands and heartbeats are not worth redelivering stale.
func (c *Client) sendNow(typ string, data interface{}) error {
	env, err := newEnvelope(&c.clock, typ, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(env)
}

// sendOrQueue writes, parking the message in the bounded retry queue
// when the link is down. The oldest entry gives way on overflow.
func (c *Client) sendOrQueue(typ string, data interface{}) {
	env, err := newEnvelope(&c.clock, typ, data)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(env); err != nil {
		if len(c.retry) >= MaxRetryQueue {
			c.retry = c.retry[1:]
			if c.log != nil {
				c.log.Warnf("retry queue full, dropping oldest response")
			}
		}
		c.retry = append(c.retry, env)
	}
}

func (c *Client) writeLocked(env Envelope) error {
	if c.conn == nil {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := c.conn.WriteMessage(data); err != nil {
		c.conn = nil
		return err
	}

	return nil
}

func marshalRaw(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
