package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSServerFactory records registrations for testing without
// real network I/O.
type MockMDNSServerFactory struct {
	mu            sync.Mutex
	registrations []MockRegistration
}

// MockRegistration captures one Register call.
type MockRegistration struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string

	server *MockMDNSServer
}

// Shutdown reports whether the registration's server was shut down.
func (r MockRegistration) Shutdown() bool {
	return r.server.IsShutdown()
}

// MockMDNSServer is a no-op mDNS server that tracks shutdown.
type MockMDNSServer struct {
	mu       sync.Mutex
	shutdown bool
}

// Shutdown implements MDNSServer.
func (s *MockMDNSServer) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

// IsShutdown reports whether Shutdown was called.
func (s *MockMDNSServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// NewMockMDNSServerFactory creates a mock factory.
func NewMockMDNSServerFactory() *MockMDNSServerFactory {
	return &MockMDNSServerFactory{}
}

// Register implements MDNSServerFactory.
func (f *MockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, _ []net.Interface) (MDNSServer, error) {
	server := &MockMDNSServer{}

	f.mu.Lock()
	f.registrations = append(f.registrations, MockRegistration{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      append([]string{}, txt...),
		server:   server,
	})
	f.mu.Unlock()

	return server, nil
}

// Registrations returns a copy of all Register calls so far.
func (f *MockMDNSServerFactory) Registrations() []MockRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MockRegistration{}, f.registrations...)
}

// MockMDNSResolver provides a mock mDNS browser for testing without
// real network I/O.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService registers an entry to be returned by Browse.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	m.mu.RLock()
	svcEntries := make([]*zeroconf.ServiceEntry, len(m.services[service]))
	copy(svcEntries, m.services[service])
	m.mu.RUnlock()

	// Deliver in the background like the real client. The channel is
	// closed once every entry is out, so tests finish without waiting
	// for the browse deadline.
	go func() {
		defer close(entries)
		for _, entry := range svcEntries {
			select {
			case entries <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// MockDeviceService creates a discoverable device entry for testing.
func MockDeviceService(txt DeviceTXT, port int, ip net.IP) *zeroconf.ServiceEntry {
	instanceName := InstanceName(txt.DeviceID)
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instanceName,
			Service:  ServiceLattice,
			Domain:   DefaultDomain,
		},
		HostName: instanceName + ".local.",
		Port:     port,
		AddrIPv4: []net.IP{ip},
		Text:     txt.Encode(),
	}
}
