// ABOUTME: mDNS discovery for syncwatch relays
// ABOUTME: Relays advertise themselves; clients browse when no server is configured
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service relays advertise
const ServiceType = "_syncwatch-relay._tcp"

const browseTimeout = 3 * time.Second

// ErrNoRelay is returned when browsing finds nothing in time
var ErrNoRelay = errors.New("no relay found")

// Config holds discovery configuration
type Config struct {
	// ServiceName is the instance name advertised by a relay
	ServiceName string
	Port        int
	Logger      *zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	relays   chan *RelayInfo
}

// RelayInfo describes a discovered relay
type RelayInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port
func (r *RelayInfo) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "discovery").Logger()
	}

	return &Manager{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		relays: make(chan *RelayInfo, 10),
	}
}

// Advertise announces a relay until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/ws"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info().Str("name", m.config.ServiceName).Int("port", m.config.Port).Msg("advertising relay")

	go func() {
		<-m.ctx.Done()
		_ = server.Shutdown()
	}()

	return nil
}

// Browse searches for relays until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				relay := toRelay(entry)
				if relay == nil {
					continue
				}
				m.logger.Info().Str("name", relay.Name).Str("addr", relay.Addr()).Msg("discovered relay")

				select {
				case m.relays <- relay:
				case <-m.ctx.Done():
				default:
					// nobody is listening; drop
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = browseTimeout
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.logger.Debug().Err(err).Msg("mdns query failed")
		}
		close(entries)
		<-forwarded

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func toRelay(entry *mdns.ServiceEntry) *RelayInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	return &RelayInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
}

// Relays returns the channel of discovered relays
func (m *Manager) Relays() <-chan *RelayInfo {
	return m.relays
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.stopOnce.Do(m.cancel)
}

// FindRelay browses until the first relay answers or timeout elapses
func FindRelay(ctx context.Context, timeout time.Duration, logger *zerolog.Logger) (*RelayInfo, error) {
	m := NewManager(Config{Logger: logger})
	defer m.Stop()

	m.Browse()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case relay := <-m.Relays():
		return relay, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrNoRelay, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// getLocalIPs returns non-loopback IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
