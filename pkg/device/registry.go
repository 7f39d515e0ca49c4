package device

import (
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/wire"
)

// RegistryConfig configures the process-wide device registry.
type RegistryConfig struct {
	// DefaultName is given to devices created on first reference.
	DefaultName string

	// DefaultFirmware is given to devices created on first reference.
	DefaultFirmware wire.FirmwareVersion

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Registry is the process-wide map of device id to device. Devices
// come into being on first reference and live until removed.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	defaultName     string
	defaultFirmware wire.FirmwareVersion
	log             logging.LeveledLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	r := &Registry{
		devices:         make(map[string]*Device),
		defaultName:     config.DefaultName,
		defaultFirmware: config.DefaultFirmware,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("device")
	}
	return r
}

// GetOrCreate returns the device with the given id, creating it on
// first reference.
func (r *Registry) GetOrCreate(id string) *Device {
	r.mu.RLock()
	d, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[id]; ok {
		return d
	}

	d = New(Config{ID: id, Name: r.defaultName, Firmware: r.defaultFirmware})
	r.devices[id] = d

	if r.log != nil {
		r.log.Infof("created device %s (fw %s)", id, d.Firmware())
	}

	return d
}

// Get returns the device with the given id, if it exists.
func (r *Registry) Get(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Remove deletes the device with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; ok {
		delete(r.devices, id)
		if r.log != nil {
			r.log.Infof("removed device %s", id)
		}
	}
}

// List returns all registered devices.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
