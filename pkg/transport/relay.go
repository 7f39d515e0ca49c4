package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/wire"
)

// ErrUnknownDevice is returned by a RelayHandler when no device with
// the requested id is registered.
var ErrUnknownDevice = errors.New("transport: unknown device")

// maxRelayBody bounds a relay request body: the largest possible
// frame plus slack.
const maxRelayBody = wire.HeaderSize + 0xffff + wire.ChecksumSize

// RelayHandler answers one frame that reached a device through the
// relay. Relay traffic has no persistent connection; the engine demuxes
// secure frames onto sessions by their in-clear ephemeral id.
type RelayHandler func(deviceID string, f *wire.Frame) (*wire.Frame, error)

// Relay is the HTTP bridge that stands in for the hosted relay
// service: one frame per POST /{deviceId}, the response frame as the
// response body.
type Relay struct {
	listener net.Listener
	server   *http.Server
	handler  RelayHandler
	log      logging.LeveledLogger
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// RelayConfig configures the relay bridge.
type RelayConfig struct {
	// Listener is an optional pre-existing listener to use.
	// If nil, a new listener is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":8885").
	// Ignored if Listener is provided. Defaults to an ephemeral port.
	ListenAddr string

	// Handler answers each received frame. Required.
	Handler RelayHandler

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// NewRelay creates a relay bridge with the given configuration.
func NewRelay(config RelayConfig) (*Relay, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	r := &Relay{
		listener: config.Listener,
		handler:  config.Handler,
	}

	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("wire-relay")
	}

	if r.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		r.listener = listener
	}

	r.server = &http.Server{Handler: r}
	return r, nil
}

// Start begins serving relay requests.
func (r *Relay) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	if r.log != nil {
		r.log.Infof("relay listening on %s", r.listener.Addr())
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.server.Serve(r.listener)
	}()

	return nil
}

// Stop closes the relay and its listener.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	r.mu.Unlock()

	err := r.server.Close()
	r.wg.Wait()
	return err
}

// LocalAddr returns the address the relay is listening on.
func (r *Relay) LocalAddr() net.Addr {
	return r.listener.Addr()
}

// ServeHTTP handles POST /{deviceId} with a raw frame body.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := strings.Trim(req.URL.Path, "/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRelayBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	frame := &wire.Frame{}
	if _, err := frame.Decode(body); err != nil {
		if r.log != nil {
			r.log.Debugf("bad frame for %s: %v", deviceID, err)
		}
		http.Error(w, "bad frame", http.StatusBadRequest)
		return
	}

	resp, err := r.handler(deviceID, frame)
	if err != nil {
		if errors.Is(err, ErrUnknownDevice) {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		if r.log != nil {
			r.log.Errorf("relay handler failed for %s: %v", deviceID, err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(resp.Encode())
}
