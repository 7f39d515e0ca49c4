package session

import (
	"sync"

	"github.com/pion/logging"
)

// DefaultMaxSessions is the per-device cap on concurrent sessions.
const DefaultMaxSessions = 16

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessionsPerDevice limits concurrent sessions per device.
	// Default: DefaultMaxSessions.
	MaxSessionsPerDevice int

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Manager tables sessions two ways: by transport key for stream
// connections, and by device for the relay transport, whose frames
// carry no connection identity and are matched to a session through
// their in-clear ephemeral id.
type Manager struct {
	mu       sync.RWMutex
	byKey    map[string]*Session
	byDevice map[string]map[string]*Session

	max int
	log logging.LeveledLogger
}

// NewManager creates an empty manager.
func NewManager(config ManagerConfig) *Manager {
	if config.MaxSessionsPerDevice <= 0 {
		config.MaxSessionsPerDevice = DefaultMaxSessions
	}

	m := &Manager{
		byKey:    make(map[string]*Session),
		byDevice: make(map[string]map[string]*Session),
		max:      config.MaxSessionsPerDevice,
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("session")
	}
	return m
}

// Create tables a fresh session for the device under the given
// transport key. An existing session under the same key is disposed
// and replaced. Returns ErrTableFull at the per-device cap.
func (m *Manager) Create(deviceID, key string) (*Session, error) {
	m.mu.Lock()

	old := m.byKey[key]
	if old != nil {
		m.removeLocked(key, old)
	}

	device := m.byDevice[deviceID]
	if len(device) >= m.max {
		m.mu.Unlock()
		if old != nil {
			old.Dispose()
		}
		return nil, ErrTableFull
	}

	s := New(deviceID)
	s.key = key

	m.byKey[key] = s
	if device == nil {
		device = make(map[string]*Session)
		m.byDevice[deviceID] = device
	}
	device[key] = s

	m.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
	if m.log != nil {
		m.log.Debugf("session created: device=%s key=%s", deviceID, key)
	}

	return s, nil
}

// Get returns the session tabled under the given transport key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byKey[key]
	return s, ok
}

// FindByEphemeralID returns the device session whose current ephemeral
// id equals id. Used to demux relay frames, which carry no connection
// identity. Sessions per device are few; a scan beats maintaining a
// rotating index.
func (m *Manager) FindByEphemeralID(deviceID string, id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.byDevice[deviceID] {
		if !s.Disposed() && s.EphemeralID() == id {
			return s, true
		}
	}
	return nil, false
}

// Dispose tears down and removes the session under the given key.
func (m *Manager) Dispose(key string) {
	m.mu.Lock()
	s := m.byKey[key]
	if s != nil {
		m.removeLocked(key, s)
	}
	m.mu.Unlock()

	if s != nil {
		s.Dispose()
		if m.log != nil {
			m.log.Debugf("session disposed: device=%s key=%s", s.deviceID, key)
		}
	}
}

// DisposeDevice tears down and removes every session of a device.
func (m *Manager) DisposeDevice(deviceID string) {
	m.mu.Lock()
	device := m.byDevice[deviceID]
	sessions := make([]*Session, 0, len(device))
	for key, s := range device {
		delete(m.byKey, key)
		sessions = append(sessions, s)
	}
	delete(m.byDevice, deviceID)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
	if m.log != nil && len(sessions) > 0 {
		m.log.Debugf("disposed %d session(s): device=%s", len(sessions), deviceID)
	}
}

// Count returns the number of sessions tabled for a device.
func (m *Manager) Count(deviceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDevice[deviceID])
}

// Len returns the total number of tabled sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// ForEach calls fn for every tabled session of a device until fn
// returns false.
func (m *Manager) ForEach(deviceID string, fn func(*Session) bool) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.byDevice[deviceID]))
	for _, s := range m.byDevice[deviceID] {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

func (m *Manager) removeLocked(key string, s *Session) {
	delete(m.byKey, key)
	if device := m.byDevice[s.deviceID]; device != nil {
		delete(device, key)
		if len(device) == 0 {
			delete(m.byDevice, s.deviceID)
		}
	}
}
