package lattice

import (
	"net"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/device"
	"github.com/backkem/lattice/pkg/wire"
)

// Network defaults.
const (
	// DefaultListenAddr is the default direct-connection TCP address.
	DefaultListenAddr = ":8884"

	// DefaultUIAddr is the default UI WebSocket address.
	DefaultUIAddr = ":8885"
)

// Config holds all configuration for a Simulator.
type Config struct {
	// DeviceID is the hex identifier of the device served on the direct
	// TCP transport. A random id is generated when empty.
	DeviceID string

	// DeviceName is the display name for devices created by this
	// simulator. Default: "Lattice1".
	DeviceName string

	// Firmware is the firmware version devices report.
	// Default: device.DefaultFirmware (0.15.0).
	Firmware wire.FirmwareVersion

	// Locked starts the primary device in the locked state.
	Locked bool

	// ListenAddr is the direct-connection TCP address.
	// Default: DefaultListenAddr.
	ListenAddr string

	// RelayAddr is the relay HTTP address. Empty disables the relay
	// transport unless RelayListener is set.
	RelayAddr string

	// UIAddr is the UI WebSocket address. Default: DefaultUIAddr.
	UIAddr string

	// EnableDiscovery publishes devices over DNS-SD while running.
	EnableDiscovery bool

	// MaxSessionsPerDevice caps concurrent sessions per device.
	// Default: session.DefaultMaxSessions.
	MaxSessionsPerDevice int

	// SigningTimeout bounds pending user decisions.
	// Default: signing.DefaultTimeout.
	SigningTimeout time.Duration

	// WindowTimeout is the pairing window duration.
	// Default: pairing.DefaultWindowTimeout.
	WindowTimeout time.Duration

	// RequestTimeout bounds UI round-trips.
	// Default: uichannel.DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HeartbeatInterval paces UI link keep-alives. Negative disables
	// them. Default: uichannel.DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Listener, RelayListener and UIListener inject pre-bound listeners
	// for the three servers. For testing.
	Listener      net.Listener
	RelayListener net.Listener
	UIListener    net.Listener

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.MaxSessionsPerDevice < 0 || c.SigningTimeout < 0 || c.WindowTimeout < 0 || c.RequestTimeout < 0 {
		return ErrNegativeLimit
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.DeviceName == "" {
		c.DeviceName = "Lattice1"
	}
	if c.Firmware == (wire.FirmwareVersion{}) {
		c.Firmware = device.DefaultFirmware
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.UIAddr == "" {
		c.UIAddr = DefaultUIAddr
	}
}
