// Package pairing implements the device-side pairing ceremony: a
// 60-second window during which a client may prove it saw the pairing
// code on the device screen by signing over it.
package pairing

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/crypto"
	"github.com/backkem/lattice/pkg/session"
)

// DefaultWindowTimeout is how long a pairing window stays open.
const DefaultWindowTimeout = 60 * time.Second

// Events receives pairing lifecycle notifications. The engine relays
// them to the UI channel.
type Events interface {
	// OnPairingModeStarted fires when a window opens, carrying the
	// 8-digit code the device displays.
	OnPairingModeStarted(deviceID, code string)

	// OnPairingModeEnded fires exactly once per window, on finalize,
	// timeout, explicit exit or unpair.
	OnPairingModeEnded(deviceID string)

	// OnPairingChanged fires when a session's pairing bit flips.
	OnPairingChanged(deviceID string, paired bool)
}

// ControllerConfig configures a pairing controller.
type ControllerConfig struct {
	// DeviceID names the device the controller belongs to. Required.
	DeviceID string

	// WindowTimeout is the pairing window duration.
	// Default: DefaultWindowTimeout.
	WindowTimeout time.Duration

	// Events receives lifecycle notifications. Optional.
	Events Events

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// window is one active pairing interval.
type window struct {
	code      string
	startedAt time.Time
	timer     *time.Timer
}

// Controller owns the pairing window of one device. At most one
// window is active at a time; a CONNECT from an unpaired session
// opens it (or joins the one already open) and finalize, timeout,
// explicit exit or unpair closes it.
type Controller struct {
	deviceID string
	timeout  time.Duration
	events   Events
	log      logging.LeveledLogger

	mu     sync.Mutex
	window *window
}

// NewController creates a controller with no window open.
func NewController(config ControllerConfig) *Controller {
	if config.WindowTimeout <= 0 {
		config.WindowTimeout = DefaultWindowTimeout
	}

	c := &Controller{
		deviceID: config.DeviceID,
		timeout:  config.WindowTimeout,
		events:   config.Events,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("pairing")
	}
	return c
}

// Open opens the pairing window and returns its code. When a window
// is already active its existing code is returned; a device shows a
// single code no matter how many clients are knocking.
func (c *Controller) Open() (string, error) {
	c.mu.Lock()

	if c.window != nil {
		code := c.window.code
		c.mu.Unlock()
		return code, nil
	}

	code, err := crypto.GeneratePairingCode()
	if err != nil {
		c.mu.Unlock()
		return "", err
	}

	w := &window{code: code, startedAt: time.Now()}
	w.timer = time.AfterFunc(c.timeout, func() { c.expire(w) })
	c.window = w

	c.mu.Unlock()

	if c.log != nil {
		c.log.Infof("pairing window opened: device=%s", c.deviceID)
	}
	if c.events != nil {
		c.events.OnPairingModeStarted(c.deviceID, code)
	}

	return code, nil
}

// Active returns the open window's code and start time, if any.
func (c *Controller) Active() (code string, startedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == nil {
		return "", time.Time{}, false
	}
	return c.window.code, c.window.startedAt, true
}

// Finalize validates a client's pairing proof: a DER encoded ECDSA
// signature over SHA-256(clientPub || appName || code), checked
// against the public key the session saw at CONNECT. Success flips
// the session's pairing bit and closes the window; a bad signature
// leaves the window open for another attempt.
func (c *Controller) Finalize(sess *session.Session, appName string, derSig []byte) error {
	clientPub := sess.ClientPublicKey()
	if clientPub == nil {
		return ErrNoSession
	}

	c.mu.Lock()
	w := c.window
	c.mu.Unlock()
	if w == nil {
		return ErrNoWindow
	}

	msg := crypto.PairingMessage(clientPub, appName, w.code)
	ok, err := crypto.VerifyDER(clientPub, msg, derSig)
	if err != nil || !ok {
		if c.log != nil {
			c.log.Warnf("pairing finalize rejected: device=%s app=%q", c.deviceID, appName)
		}
		return ErrBadSignature
	}

	sess.SetPaired(true)
	sess.ClearPairingCode()
	c.close(w)

	if c.log != nil {
		c.log.Infof("paired: device=%s app=%q", c.deviceID, appName)
	}
	if c.events != nil {
		c.events.OnPairingChanged(c.deviceID, true)
	}

	return nil
}

// Exit closes the window without pairing anyone. No-op when no window
// is open.
func (c *Controller) Exit() {
	c.mu.Lock()
	w := c.window
	c.mu.Unlock()
	if w != nil {
		c.close(w)
	}
}

// Unpair clears the pairing bit on the given session only and closes
// any open window. Other sessions keep their bits.
func (c *Controller) Unpair(sess *session.Session) {
	wasPaired := sess.Paired()
	sess.SetPaired(false)

	c.Exit()

	if wasPaired && c.events != nil {
		c.events.OnPairingChanged(c.deviceID, false)
	}
}

// expire is the window timer callback.
func (c *Controller) expire(w *window) {
	if c.log != nil {
		c.log.Infof("pairing window timed out: device=%s", c.deviceID)
	}
	c.close(w)
}

// close removes w if it is still the active window and fires the
// ended event. The identity check makes close idempotent per window:
// a timer racing an explicit close fires the event once.
func (c *Controller) close(w *window) {
	c.mu.Lock()
	if c.window != w {
		c.mu.Unlock()
		return
	}
	c.window = nil
	c.mu.Unlock()

	w.timer.Stop()

	if c.events != nil {
		c.events.OnPairingModeEnded(c.deviceID)
	}
}
