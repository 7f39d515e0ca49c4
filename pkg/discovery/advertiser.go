// Package discovery publishes simulated devices on the local network
// over DNS-SD so client SDKs can find them without the relay.
package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// Service constants for device discovery.
const (
	// ServiceLattice is the DNS-SD service type for devices.
	ServiceLattice = "_lattice._tcp"

	// DefaultDomain is the DNS-SD domain.
	DefaultDomain = "local."

	// DefaultPort is the default direct-connection port.
	DefaultPort = 8884
)

// MDNSServer is the interface for an active mDNS registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// activeService tracks one advertised device.
type activeService struct {
	server       MDNSServer
	instanceName string
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Port is the direct-connection port to advertise (default: 8884).
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes one DNS-SD service per registered device.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.RWMutex
	services map[string]*activeService // Key: device id
	closed   bool
}

// NewAdvertiser creates an Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:   config,
		factory:  factory,
		services: make(map[string]*activeService),
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// StartDevice begins advertising one device on _lattice._tcp.
func (a *Advertiser) StartDevice(txt DeviceTXT) error {
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("advertiser: txt validation failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if _, exists := a.services[txt.DeviceID]; exists {
		return ErrAlreadyStarted
	}

	instanceName := InstanceName(txt.DeviceID)
	txtRecords := txt.Encode()
	if a.log != nil {
		a.log.Debugf("registering mDNS service: instance=%s service=%s port=%d",
			instanceName, ServiceLattice, a.config.Port)
		a.log.Tracef("TXT records: %v", txtRecords)
	}

	server, err := a.factory.Register(
		instanceName,
		ServiceLattice,
		DefaultDomain,
		a.config.Port,
		txtRecords,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", txt.DeviceID, err)
	}

	if a.log != nil {
		a.log.Infof("advertising %s as %s", txt.DeviceID, instanceName)
	}

	a.services[txt.DeviceID] = &activeService{
		server:       server,
		instanceName: instanceName,
	}

	return nil
}

// StopDevice stops advertising a device.
func (a *Advertiser) StopDevice(deviceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	svc, exists := a.services[deviceID]
	if !exists {
		return ErrNotStarted
	}

	svc.server.Shutdown()
	delete(a.services, deviceID)

	return nil
}

// StopAll stops all active advertisements.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, svc := range a.services {
		svc.server.Shutdown()
	}
	a.services = make(map[string]*activeService)
}

// Close stops all advertisements and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	for _, svc := range a.services {
		svc.server.Shutdown()
	}
	a.services = nil
	a.closed = true

	return nil
}

// IsAdvertising reports whether the device is currently advertised.
func (a *Advertiser) IsAdvertising(deviceID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.services[deviceID]
	return exists
}

// GetInstanceName returns the instance name for an advertised device.
// Returns the empty string if the device is not advertised.
func (a *Advertiser) GetInstanceName(deviceID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if svc, exists := a.services[deviceID]; exists {
		return svc.instanceName
	}
	return ""
}

// InstanceName returns the DNS-SD instance name for a device id:
// "Lattice-" plus the uppercased short id.
func InstanceName(deviceID string) string {
	short := deviceID
	if len(short) > 6 {
		short = short[:6]
	}
	return "Lattice-" + strings.ToUpper(short)
}
