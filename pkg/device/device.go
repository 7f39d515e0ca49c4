// Package device holds the state of one simulated Lattice device: its
// identity, firmware, lock flag, wallet slots, SafeCard reference and
// key/value store, plus the process-wide registry of devices.
package device

import (
	"sync"

	"github.com/backkem/lattice/pkg/wire"
)

// DefaultFirmware is the firmware version fresh devices report.
var DefaultFirmware = wire.FirmwareVersion{Major: 0, Minor: 15, Patch: 0}

// Config configures a device instance.
type Config struct {
	// ID is the hex device identifier clients address. Required.
	ID string

	// Name is the device display name.
	Name string

	// Firmware is the reported firmware version.
	Firmware wire.FirmwareVersion

	// Locked starts the device in the locked state.
	Locked bool
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "Lattice1"
	}
	if c.Firmware == (wire.FirmwareVersion{}) {
		c.Firmware = DefaultFirmware
	}
}

// Device is one simulated device. All methods are safe for concurrent
// use; cross-session mutations serialize on the device mutex.
type Device struct {
	id string

	mu       sync.RWMutex
	name     string
	firmware wire.FirmwareVersion
	locked   bool
	internal Wallet
	safeCard *SafeCard
	external Wallet
	kv       *KVStore
}

// New creates a device.
func New(config Config) *Device {
	config.applyDefaults()

	return &Device{
		id:       config.ID,
		name:     config.Name,
		firmware: config.Firmware,
		locked:   config.Locked,
		internal: Wallet{
			UID:  deriveUID("internal:" + config.ID),
			Name: []byte(config.Name),
		},
		kv: NewKVStore(),
	}
}

// ID returns the device identifier.
func (d *Device) ID() string {
	return d.id
}

// Name returns the display name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// SetName updates the display name.
func (d *Device) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name != "" {
		d.name = name
	}
}

// Firmware returns the reported firmware version.
func (d *Device) Firmware() wire.FirmwareVersion {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.firmware
}

// SetFirmware updates the reported firmware version.
func (d *Device) SetFirmware(v wire.FirmwareVersion) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.firmware = v
}

// Locked reports whether the device is locked.
func (d *Device) Locked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locked
}

// SetLocked flips the lock flag.
func (d *Device) SetLocked(locked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked = locked
}

// ActiveWallets returns the internal and external wallet slots. The
// external slot is the zero Wallet when no SafeCard is active.
func (d *Device) ActiveWallets() (internal, external Wallet) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.internal, d.external
}

// ActiveSafeCard returns a copy of the active SafeCard, if any.
func (d *Device) ActiveSafeCard() (SafeCard, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.safeCard == nil {
		return SafeCard{}, false
	}
	return *d.safeCard, true
}

// SetActiveSafeCard makes card the active external wallet source. A
// nil card deactivates the external slot. The mnemonic is normalized
// on the way in.
func (d *Device) SetActiveSafeCard(card *SafeCard) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if card == nil {
		d.safeCard = nil
		d.external = Wallet{}
		return
	}

	c := *card
	c.Mnemonic = NormalizeMnemonic(c.Mnemonic)
	d.safeCard = &c
	d.external = Wallet{
		UID:      c.WalletUID(),
		External: true,
		Name:     []byte(c.Name),
	}
}

// AddKvRecords inserts the entries atomically: if any entry collides
// with a stored record or another entry in the batch, nothing is
// inserted and the error for the first bad entry is returned.
func (d *Device) AddKvRecords(entries []wire.KvEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staged := NewKVStore()
	for _, e := range entries {
		if err := staged.Add(e.Type, e.Key, e.Val); err != nil {
			return err
		}
		if _, exists := d.kv.Get(e.Key); exists {
			return ErrDuplicateKey
		}
	}

	for _, e := range entries {
		if err := d.kv.Add(e.Type, e.Key, e.Val); err != nil {
			return err
		}
	}

	return nil
}

// GetKvPage reads one page of the key/value store.
func (d *Device) GetKvPage(count uint8, start uint32) (uint32, []wire.KvRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kv.Page(count, start)
}

// GetKvRecord looks a record up by key.
func (d *Device) GetKvRecord(key string) (KvPair, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kv.Get(key)
}

// KvLen returns the number of stored key/value records.
func (d *Device) KvLen() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kv.Len()
}

// RemoveKvRecords deletes records by position, atomically.
func (d *Device) RemoveKvRecords(ids []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kv.RemoveBatch(ids)
}

// Reset clears the mutable device state: key/value records, the
// active SafeCard and the lock flag. Identity and firmware stay.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.kv = NewKVStore()
	d.safeCard = nil
	d.external = Wallet{}
	d.locked = false
}
