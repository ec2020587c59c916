// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager lifecycle and entry conversion
package discovery

import (
	"context"
	"net"
	"time"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "living-room", Port: 8080})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.ServiceName != "living-room" {
		t.Errorf("Expected ServiceName 'living-room', got '%s'", mgr.config.ServiceName)
	}
	if mgr.Relays() == nil {
		t.Error("expected relays channel")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	mgr := NewManager(Config{})
	mgr.Stop()
	mgr.Stop()

	select {
	case <-mgr.ctx.Done():
	default:
		t.Error("expected context to be cancelled")
	}
}

func TestToRelay(t *testing.T) {
	if toRelay(nil) != nil {
		t.Error("nil entry should be skipped")
	}
	if toRelay(&mdns.ServiceEntry{Name: "v6-only"}) != nil {
		t.Error("entry without an IPv4 address should be skipped")
	}

	relay := toRelay(&mdns.ServiceEntry{
		Name:   "living-room._syncwatch-relay._tcp.local.",
		AddrV4: net.ParseIP("192.168.1.20"),
		Port:   8080,
	})
	if relay == nil {
		t.Fatal("expected relay")
	}
	if relay.Addr() != "192.168.1.20:8080" {
		t.Errorf("unexpected addr %s", relay.Addr())
	}
}

func TestFindRelayHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := FindRelay(ctx, 10*time.Second, nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
