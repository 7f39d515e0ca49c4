package uichannel

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// WSPathPrefix is the WebSocket endpoint prefix; the device id is the
// trailing path segment.
const WSPathPrefix = "/ws/device/"

// HubConfig configures the UI channel hub.
type HubConfig struct {
	// RequestTimeout bounds server request round-trips on every link.
	// Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HeartbeatInterval paces link keep-alives. Default:
	// DefaultHeartbeatInterval. Negative disables heartbeating.
	HeartbeatInterval time.Duration

	// Sink receives UI-originated commands and events. Optional.
	Sink CommandSink

	// OnLinkOpened fires after a UI attaches to a device. The engine
	// uses it to push the initial device_state. Optional.
	OnLinkOpened func(deviceID string, link *Link)

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Hub owns the UI links of all devices: one active link per device,
// replaced on reconnect. It is also the http.Handler for the
// /ws/device/{deviceId} WebSocket endpoint.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	log      logging.LeveledLogger

	mu     sync.RWMutex
	links  map[string]*Link
	closed bool
}

// NewHub creates an empty hub.
func NewHub(config HubConfig) *Hub {
	h := &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			// The UI is a local browser app; the simulator accepts
			// any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		links: make(map[string]*Link),
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("uichannel-hub")
	}
	return h
}

// ServeHTTP upgrades /ws/device/{deviceId} requests and attaches the
// resulting connection as the device's UI link.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, WSPathPrefix)
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.NotFound(w, r)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warnf("websocket upgrade failed: device=%s err=%v", deviceID, err)
		}
		return
	}

	if _, err := h.Attach(deviceID, NewWSConn(conn)); err != nil {
		conn.Close()
	}
}

// Attach makes conn the device's UI link, replacing (and closing) any
// previous link, and starts its loops.
func (h *Hub) Attach(deviceID string, conn Conn) (*Link, error) {
	link := NewLink(deviceID, conn, LinkConfig{
		RequestTimeout:    h.config.RequestTimeout,
		HeartbeatInterval: h.config.HeartbeatInterval,
		Sink:              h.config.Sink,
		LoggerFactory:     h.config.LoggerFactory,
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	old := h.links[deviceID]
	h.links[deviceID] = link
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}

	link.Start()

	if h.log != nil {
		h.log.Infof("UI link attached: device=%s", deviceID)
	}
	if h.config.OnLinkOpened != nil {
		h.config.OnLinkOpened(deviceID, link)
	}

	return link, nil
}

// Link returns the device's active UI link.
func (h *Hub) Link(deviceID string) (*Link, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	link, ok := h.links[deviceID]
	return link, ok
}

// Broadcast queues an event for the device's UI. Devices without a
// link drop the event; the UI resyncs from device_state when it
// attaches.
func (h *Hub) Broadcast(deviceID, eventType string, data interface{}) {
	if link, ok := h.Link(deviceID); ok {
		link.Broadcast(eventType, data)
	}
}

// Detach closes and removes the device's UI link, if the given link
// is still the active one.
func (h *Hub) Detach(deviceID string, link *Link) {
	h.mu.Lock()
	if h.links[deviceID] == link {
		delete(h.links, deviceID)
	}
	h.mu.Unlock()

	link.Close()
}

// Stop closes every link.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.closed = true
	links := make([]*Link, 0, len(h.links))
	for _, l := range h.links {
		links = append(links, l)
	}
	h.links = make(map[string]*Link)
	h.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
}
