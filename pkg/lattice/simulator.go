// Package lattice wires the simulator together: device registry,
// session table, dispatcher, pairing controllers, signing manager, UI
// hub and the TCP, relay and discovery front ends. One Simulator
// serves any number of devices; the configured device id is the one
// the direct TCP transport answers for.
package lattice

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/device"
	"github.com/backkem/lattice/pkg/discovery"
	"github.com/backkem/lattice/pkg/dispatch"
	"github.com/backkem/lattice/pkg/pairing"
	"github.com/backkem/lattice/pkg/session"
	"github.com/backkem/lattice/pkg/signing"
	"github.com/backkem/lattice/pkg/transport"
	"github.com/backkem/lattice/pkg/uichannel"
	"github.com/backkem/lattice/pkg/wire"
)

// Simulator is a running device simulator. Create one with
// NewSimulator and call Start to serve.
type Simulator struct {
	config Config
	log    logging.LeveledLogger

	registry   *device.Registry
	sessions   *session.Manager
	signing    *signing.Manager
	hub        *uichannel.Hub
	dispatcher *dispatch.Dispatcher

	pairingMu   sync.Mutex
	controllers map[string]*pairing.Controller
	pairReqs    map[string]*signing.Request

	tcp        *transport.TCP
	relay      *transport.Relay
	uiServer   *http.Server
	uiListener net.Listener
	advertiser *discovery.Advertiser

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewSimulator creates a simulator. The primary device exists as soon
// as this returns; Start brings up the transports.
func NewSimulator(config Config) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if config.DeviceID == "" {
		id, err := crypto.RandomDeviceID()
		if err != nil {
			return nil, err
		}
		config.DeviceID = id
	}

	s := &Simulator{
		config:      config,
		controllers: make(map[string]*pairing.Controller),
		pairReqs:    make(map[string]*signing.Request),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("lattice")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.registry = device.NewRegistry(device.RegistryConfig{
		DefaultName:     config.DeviceName,
		DefaultFirmware: config.Firmware,
		LoggerFactory:   config.LoggerFactory,
	})
	s.sessions = session.NewManager(session.ManagerConfig{
		MaxSessionsPerDevice: config.MaxSessionsPerDevice,
		LoggerFactory:        config.LoggerFactory,
	})
	s.signing = signing.NewManager(signing.ManagerConfig{
		DefaultTimeout: config.SigningTimeout,
		Notifier:       s,
		LoggerFactory:  config.LoggerFactory,
	})
	s.hub = uichannel.NewHub(uichannel.HubConfig{
		RequestTimeout:    config.RequestTimeout,
		HeartbeatInterval: config.HeartbeatInterval,
		Sink:              s,
		OnLinkOpened:      s.onLinkOpened,
		LoggerFactory:     config.LoggerFactory,
	})
	s.dispatcher = dispatch.New(dispatch.Config{
		Signing:       s.signing,
		LoggerFactory: config.LoggerFactory,
	})

	primary := s.registry.GetOrCreate(config.DeviceID)
	if config.Locked {
		primary.SetLocked(true)
	}

	return s, nil
}

// DeviceID returns the id of the primary device.
func (s *Simulator) DeviceID() string {
	return s.config.DeviceID
}

// Device returns the primary device.
func (s *Simulator) Device() *device.Device {
	return s.registry.GetOrCreate(s.config.DeviceID)
}

// Registry returns the simulator's device registry.
func (s *Simulator) Registry() *device.Registry {
	return s.registry
}

// Sessions returns the simulator's session manager.
func (s *Simulator) Sessions() *session.Manager {
	return s.sessions
}

// Signing returns the simulator's signing request manager.
func (s *Simulator) Signing() *signing.Manager {
	return s.signing
}

// Hub returns the UI channel hub.
func (s *Simulator) Hub() *uichannel.Hub {
	return s.hub
}

// Start brings up the TCP transport, the UI endpoint and, when
// configured, the relay transport and DNS-SD advertisement.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	tcp, err := transport.NewTCP(transport.TCPConfig{
		Listener:      s.config.Listener,
		ListenAddr:    s.config.ListenAddr,
		Handler:       s.handleTCPFrame,
		OnConnClosed:  s.handleConnClosed,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	if err := tcp.Start(); err != nil {
		return err
	}
	s.tcp = tcp

	if s.config.RelayAddr != "" || s.config.RelayListener != nil {
		relay, err := transport.NewRelay(transport.RelayConfig{
			Listener:      s.config.RelayListener,
			ListenAddr:    s.config.RelayAddr,
			Handler:       s.handleRelayFrame,
			LoggerFactory: s.config.LoggerFactory,
		})
		if err != nil {
			s.stopLocked()
			return err
		}
		if err := relay.Start(); err != nil {
			s.stopLocked()
			return err
		}
		s.relay = relay
	}

	if err := s.startUI(); err != nil {
		s.stopLocked()
		return err
	}

	if s.config.EnableDiscovery {
		if err := s.startDiscovery(); err != nil {
			s.stopLocked()
			return err
		}
	}

	s.started = true
	if s.log != nil {
		s.log.Infof("simulator started: device=%s tcp=%s", s.config.DeviceID, s.tcp.LocalAddr())
	}

	return nil
}

// startUI serves the UI hub's WebSocket endpoint.
func (s *Simulator) startUI() error {
	ln := s.config.UIListener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.UIAddr)
		if err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(uichannel.WSPathPrefix, s.hub)

	srv := &http.Server{Handler: mux}
	s.uiListener = ln
	s.uiServer = srv

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.log != nil {
				s.log.Warnf("UI server exited: %v", err)
			}
		}
	}()

	return nil
}

// startDiscovery publishes the primary device over DNS-SD.
func (s *Simulator) startDiscovery() error {
	port := discovery.DefaultPort
	if addr, ok := s.tcp.LocalAddr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Port:          port,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		return err
	}

	primary := s.Device()
	if err := adv.StartDevice(discovery.DeviceTXT{
		DeviceID: primary.ID(),
		Name:     primary.Name(),
		Firmware: primary.Firmware(),
	}); err != nil {
		adv.Close()
		return err
	}

	s.advertiser = adv
	return nil
}

// TCPAddr returns the direct-connection listen address. Nil before
// Start.
func (s *Simulator) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcp == nil {
		return nil
	}
	return s.tcp.LocalAddr()
}

// RelayAddr returns the relay listen address, or nil when the relay
// transport is not running.
func (s *Simulator) RelayAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relay == nil {
		return nil
	}
	return s.relay.LocalAddr()
}

// UIAddr returns the UI endpoint listen address. Nil before Start.
func (s *Simulator) UIAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uiListener == nil {
		return nil
	}
	return s.uiListener.Addr()
}

// Stop shuts the simulator down: transports close, sessions are
// disposed, pending requests expire and UI links drop.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.started {
		return ErrNotStarted
	}

	s.stopLocked()
	s.closed = true

	if s.log != nil {
		s.log.Info("simulator stopped")
	}
	return nil
}

func (s *Simulator) stopLocked() {
	s.cancel()

	if s.advertiser != nil {
		s.advertiser.Close()
		s.advertiser = nil
	}
	if s.uiServer != nil {
		s.uiServer.Close()
		s.uiServer = nil
		s.uiListener = nil
	}
	if s.relay != nil {
		s.relay.Stop()
		s.relay = nil
	}
	if s.tcp != nil {
		s.tcp.Stop()
		s.tcp = nil
	}

	for _, d := range s.registry.List() {
		s.sessions.DisposeDevice(d.ID())
		s.signing.ExpireDevice(d.ID())
	}
	s.hub.Stop()

	s.wg.Wait()
}

// handleTCPFrame serves frames from the direct transport. Every TCP
// connection belongs to the primary device.
func (s *Simulator) handleTCPFrame(connKey string, f *wire.Frame) *wire.Frame {
	return s.handleFrame(s.config.DeviceID, connKey, f)
}

// handleRelayFrame serves frames posted through the relay. The relay
// carries the device id out of band; SECURE frames are matched to a
// session by their in-clear ephemeral id.
func (s *Simulator) handleRelayFrame(deviceID string, f *wire.Frame) (*wire.Frame, error) {
	if f.Type == wire.FrameTypeSecure {
		if _, ok := s.registry.Get(deviceID); !ok {
			return nil, transport.ErrUnknownDevice
		}
	}
	return s.handleFrame(deviceID, "", f), nil
}

// handleFrame is the single engine entry for both transports. An
// empty connKey marks a relay frame.
func (s *Simulator) handleFrame(deviceID, connKey string, f *wire.Frame) *wire.Frame {
	switch f.Type {
	case wire.FrameTypeConnect:
		return s.handleConnect(deviceID, connKey, f)
	case wire.FrameTypeSecure:
		return s.handleSecure(deviceID, connKey, f)
	default:
		return wire.NewResponseFrame(f.ID, wire.CodeInvalidMsg, nil)
	}
}

// handleConnect establishes a session for the connection and, when the
// session is unpaired, opens the device's pairing window.
func (s *Simulator) handleConnect(deviceID, connKey string, f *wire.Frame) *wire.Frame {
	var req wire.ConnectRequest
	if err := req.Decode(f.Body); err != nil {
		return wire.NewResponseFrame(f.ID, wire.CodeInvalidMsg, nil)
	}

	dev := s.registry.GetOrCreate(deviceID)

	if connKey == "" {
		// Relay connections carry no transport identity; each CONNECT
		// gets its own table slot.
		suffix, err := crypto.RandomRequestID()
		if err != nil {
			return wire.NewResponseFrame(f.ID, wire.CodeInternalError, nil)
		}
		connKey = "relay:" + deviceID + ":" + hex.EncodeToString(suffix)
	}

	sess, err := s.sessions.Create(deviceID, connKey)
	if err != nil {
		if errors.Is(err, session.ErrTableFull) {
			return wire.NewResponseFrame(f.ID, wire.CodeDeviceBusy, nil)
		}
		return wire.NewResponseFrame(f.ID, wire.CodeInternalError, nil)
	}

	info, err := sess.HandleConnect(req.ClientPublicKey)
	if err != nil {
		s.sessions.Dispose(connKey)
		return wire.NewResponseFrame(f.ID, wire.CodeInvalidMsg, nil)
	}

	if !info.Paired && !dev.Locked() {
		code, err := s.controller(deviceID).Open()
		if err == nil {
			sess.SetPairingCode(code)
		} else if s.log != nil {
			s.log.Warnf("pairing window open failed: device=%s err=%v", deviceID, err)
		}
	}

	s.broadcastConnection(deviceID)

	resp := wire.ConnectResponse{
		Paired:       info.Paired,
		Firmware:     dev.Firmware(),
		EphemeralPub: info.EphemeralPub,
		EphemeralID:  info.EphemeralID,
	}
	return wire.NewResponseFrame(f.ID, wire.CodeSuccess, resp.Encode())
}

// handleSecure decrypts, dispatches and answers one secure request.
func (s *Simulator) handleSecure(deviceID, connKey string, f *wire.Frame) *wire.Frame {
	var req wire.SecureRequest
	if err := req.Decode(f.Body); err != nil {
		return wire.NewResponseFrame(f.ID, wire.CodeInvalidMsg, nil)
	}

	var sess *session.Session
	var ok bool
	if connKey != "" {
		sess, ok = s.sessions.Get(connKey)
	} else {
		sess, ok = s.sessions.FindByEphemeralID(deviceID, req.EphemeralID)
	}
	if !ok {
		return wire.NewResponseFrame(f.ID, wire.CodeInvalidEphemID, nil)
	}

	plaintext, err := sess.Decrypt(&req)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEphemeralIDRegression):
			// A counter behind the session's is replay-shaped; the
			// session is torn down after the reply.
			defer s.disposeSession(sess)
			return wire.NewResponseFrame(f.ID, wire.CodeInvalidEphemID, nil)
		case errors.Is(err, session.ErrEphemeralIDMismatch):
			return wire.NewResponseFrame(f.ID, wire.CodeInvalidEphemID, nil)
		default:
			return wire.NewResponseFrame(f.ID, wire.CodeInvalidMsg, nil)
		}
	}

	env := dispatch.Env{
		Device:  s.registry.GetOrCreate(deviceID),
		Session: sess,
		Pairing: s.controller(deviceID),
		UI:      s.uiFor(deviceID),
	}

	code, payload := s.dispatcher.Dispatch(s.ctx, env, req.RequestType, plaintext)
	if code != wire.CodeSuccess {
		return wire.NewResponseFrame(f.ID, code, nil)
	}

	ciphertext, err := sess.EncryptResponse(payload)
	if err != nil {
		return wire.NewResponseFrame(f.ID, wire.CodeInternalError, nil)
	}
	return wire.NewResponseFrame(f.ID, wire.CodeSuccess, ciphertext)
}

// handleConnClosed tears down the session of a dropped TCP connection.
func (s *Simulator) handleConnClosed(connKey string) {
	sess, ok := s.sessions.Get(connKey)
	if !ok {
		return
	}
	s.disposeSession(sess)
}

// disposeSession removes a session from every table and, when it was
// the device's last, expires the device's pending decisions.
func (s *Simulator) disposeSession(sess *session.Session) {
	deviceID := sess.DeviceID()

	s.sessions.Dispose(sess.Key())
	s.dispatcher.ReleaseSession(sess.Key())

	if s.sessions.Count(deviceID) == 0 {
		s.signing.ExpireDevice(deviceID)
	}
	s.broadcastConnection(deviceID)
}

// controller returns the device's pairing controller, creating it on
// first reference.
func (s *Simulator) controller(deviceID string) *pairing.Controller {
	s.pairingMu.Lock()
	defer s.pairingMu.Unlock()

	c, ok := s.controllers[deviceID]
	if !ok {
		c = pairing.NewController(pairing.ControllerConfig{
			DeviceID:      deviceID,
			WindowTimeout: s.config.WindowTimeout,
			Events:        s,
			LoggerFactory: s.config.LoggerFactory,
		})
		s.controllers[deviceID] = c
	}
	return c
}

// uiFor returns the device's UI link as a dispatch.UIRequester, nil
// when no UI is attached.
func (s *Simulator) uiFor(deviceID string) dispatch.UIRequester {
	link, ok := s.hub.Link(deviceID)
	if !ok {
		return nil
	}
	return link
}

// onLinkOpened pushes the initial state snapshot to a freshly attached
// UI.
func (s *Simulator) onLinkOpened(deviceID string, link *uichannel.Link) {
	dev := s.registry.GetOrCreate(deviceID)
	link.Broadcast(uichannel.EventDeviceState, dev.Snapshot())
	link.Broadcast(uichannel.EventConnectionChanged, s.connectionState(deviceID))

	if code, startedAt, ok := s.controller(deviceID).Active(); ok {
		link.Broadcast(uichannel.EventPairingModeStarted, map[string]interface{}{
			"pairingCode": code,
			"startedAt":   startedAt.UnixMilli(),
		})
	}
}

// broadcastState pushes the device snapshot to its UI.
func (s *Simulator) broadcastState(deviceID string) {
	dev := s.registry.GetOrCreate(deviceID)
	s.hub.Broadcast(deviceID, uichannel.EventDeviceState, dev.Snapshot())
}

func (s *Simulator) connectionState(deviceID string) map[string]interface{} {
	n := s.sessions.Count(deviceID)
	return map[string]interface{}{
		"connected":    n > 0,
		"sessionCount": n,
	}
}

func (s *Simulator) broadcastConnection(deviceID string) {
	s.hub.Broadcast(deviceID, uichannel.EventConnectionChanged, s.connectionState(deviceID))
}

// OnPairingModeStarted implements pairing.Events: the window code goes
// to the UI and a non-blocking PAIR decision shows up in the signing
// queue, resolving from the window outcome.
func (s *Simulator) OnPairingModeStarted(deviceID, code string) {
	req := s.signing.Create(deviceID, signing.TypePair, map[string]interface{}{
		"pairingCode": code,
	}, s.windowTimeout())

	s.pairingMu.Lock()
	s.pairReqs[deviceID] = req
	s.pairingMu.Unlock()

	s.hub.Broadcast(deviceID, uichannel.EventPairingModeStarted, map[string]interface{}{
		"pairingCode": code,
	})
}

// OnPairingModeEnded implements pairing.Events.
func (s *Simulator) OnPairingModeEnded(deviceID string) {
	s.hub.Broadcast(deviceID, uichannel.EventPairingModeEnded, nil)
}

// OnPairingChanged implements pairing.Events. A successful pairing
// approves the window's PAIR request.
func (s *Simulator) OnPairingChanged(deviceID string, paired bool) {
	if paired {
		if req := s.takePairRequest(deviceID); req != nil {
			s.signing.Approve(req.ID, signing.Result{})
		}
	}
	s.hub.Broadcast(deviceID, uichannel.EventPairingChanged, map[string]interface{}{
		"paired": paired,
	})
}

func (s *Simulator) takePairRequest(deviceID string) *signing.Request {
	s.pairingMu.Lock()
	defer s.pairingMu.Unlock()
	req := s.pairReqs[deviceID]
	delete(s.pairReqs, deviceID)
	return req
}

func (s *Simulator) windowTimeout() time.Duration {
	if s.config.WindowTimeout > 0 {
		return s.config.WindowTimeout
	}
	return pairing.DefaultWindowTimeout
}

// OnRequestCreated implements signing.Notifier.
func (s *Simulator) OnRequestCreated(req *signing.Request) {
	s.hub.Broadcast(req.DeviceID, uichannel.EventSigningRequestCreated, map[string]interface{}{
		"requestId": req.ID,
		"type":      string(req.Type),
		"createdAt": req.CreatedAt.UnixMilli(),
		"timeoutMs": req.Timeout.Milliseconds(),
		"payload":   req.Payload,
	})
}

// OnRequestCompleted implements signing.Notifier.
func (s *Simulator) OnRequestCompleted(req *signing.Request) {
	status, _ := req.Outcome()
	s.hub.Broadcast(req.DeviceID, uichannel.EventSigningRequestCompleted, map[string]interface{}{
		"requestId": req.ID,
		"status":    string(status),
	})
}
