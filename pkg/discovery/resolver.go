package discovery

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// ResolvedDevice describes one device found on the network.
type ResolvedDevice struct {
	// TXT carries the parsed TXT record set.
	TXT DeviceTXT

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the direct-connection port.
	Port int

	// IPs contains the resolved IP addresses.
	IPs []net.IP
}

// Addr returns a dialable host:port for the device, preferring IPv4.
// Returns the empty string when no address was resolved.
func (r *ResolvedDevice) Addr() string {
	for _, ip := range r.IPs {
		if ip.To4() != nil {
			return net.JoinHostPort(ip.String(), itoa(r.Port))
		}
	}
	if len(r.IPs) > 0 {
		return net.JoinHostPort(r.IPs[0].String(), itoa(r.Port))
	}
	return ""
}

// MDNSResolver is the interface for mDNS browsing.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying browser. If nil, a zeroconf
	// resolver is created.
	MDNSResolver MDNSResolver

	// LoggerFactory customizes logging. No logging when nil.
	LoggerFactory logging.LoggerFactory
}

// Resolver finds devices on the local network.
type Resolver struct {
	mdns MDNSResolver
	log  logging.LeveledLogger
}

// NewResolver creates a Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	mdns := config.MDNSResolver
	if mdns == nil {
		z, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		mdns = z
	}

	r := &Resolver{mdns: mdns}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Discover browses _lattice._tcp until ctx ends and returns every
// device whose TXT records parse. Entries without a device id are
// skipped.
func (r *Resolver) Discover(ctx context.Context) ([]ResolvedDevice, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	// The zeroconf client owns the entries channel and closes it when
	// ctx ends; the browse call itself returns promptly.
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := r.mdns.Browse(ctx, ServiceLattice, DefaultDomain, entries); err != nil {
		return nil, err
	}

	var devices []ResolvedDevice
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return devices, nil
			}
			txt, err := ParseDeviceTXT(entry.Text)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("skipping %s: %v", entry.Instance, err)
				}
				continue
			}
			devices = append(devices, ResolvedDevice{
				TXT:          txt,
				InstanceName: entry.Instance,
				HostName:     entry.HostName,
				Port:         entry.Port,
				IPs:          append(append([]net.IP{}, entry.AddrIPv4...), entry.AddrIPv6...),
			})
		case <-ctx.Done():
			return devices, nil
		}
	}
}

// Lookup browses until a device with the given id is found or ctx
// ends.
func (r *Resolver) Lookup(ctx context.Context, deviceID string) (ResolvedDevice, bool, error) {
	devices, err := r.Discover(ctx)
	if err != nil {
		return ResolvedDevice{}, false, err
	}
	for _, d := range devices {
		if d.TXT.DeviceID == deviceID {
			return d, true, nil
		}
	}
	return ResolvedDevice{}, false, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
