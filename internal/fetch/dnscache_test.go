package fetch

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func addrs(ips ...string) []net.IPAddr {
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out
}

func TestResolve_LiteralIPPassesThrough(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		t.Fatal("lookup must not be called for literal IPs")
		return nil, nil
	}

	ip, err := cache.Resolve(context.Background(), "192.0.2.1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ip != "192.0.2.1" {
		t.Errorf("Resolve() = %q, want %q", ip, "192.0.2.1")
	}
}

func TestResolve_CachesWithinTTL(t *testing.T) {
	var lookups atomic.Int32
	cache := NewDNSCache(time.Minute)
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		lookups.Add(1)
		return addrs("192.0.2.10"), nil
	}

	for i := 0; i < 3; i++ {
		ip, err := cache.Resolve(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if ip != "192.0.2.10" {
			t.Errorf("Resolve() = %q, want %q", ip, "192.0.2.10")
		}
	}
	if got := lookups.Load(); got != 1 {
		t.Errorf("lookup count = %d, want 1 (cached within TTL)", got)
	}
}

func TestResolve_ExpiredEntryReQueries(t *testing.T) {
	var lookups atomic.Int32
	now := time.Now()
	cache := NewDNSCache(time.Minute)
	cache.now = func() time.Time { return now }
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		lookups.Add(1)
		return addrs("192.0.2.10"), nil
	}

	if _, err := cache.Resolve(context.Background(), "example.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Resolve(context.Background(), "example.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := lookups.Load(); got != 2 {
		t.Errorf("lookup count = %d, want 2 after TTL expiry", got)
	}
}

func TestResolve_StaleFallbackOnLookupFailure(t *testing.T) {
	now := time.Now()
	failing := false
	cache := NewDNSCache(time.Minute)
	cache.now = func() time.Time { return now }
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		if failing {
			return nil, errors.New("resolver unavailable")
		}
		return addrs("192.0.2.10"), nil
	}

	if _, err := cache.Resolve(context.Background(), "example.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	failing = true

	ip, err := cache.Resolve(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want stale fallback", err)
	}
	if ip != "192.0.2.10" {
		t.Errorf("Resolve() = %q, want stale %q", ip, "192.0.2.10")
	}
}

func TestResolve_FailureWithoutCacheSurfaces(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, errors.New("resolver unavailable")
	}

	if _, err := cache.Resolve(context.Background(), "example.com"); err == nil {
		t.Error("Resolve() error = nil, want lookup failure")
	}
}

func TestResolve_PrefersIPv4(t *testing.T) {
	cache := NewDNSCache(time.Minute)
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return addrs("2001:db8::1", "192.0.2.20"), nil
	}

	ip, err := cache.Resolve(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ip != "192.0.2.20" {
		t.Errorf("Resolve() = %q, want IPv4 %q", ip, "192.0.2.20")
	}
}

func TestInvalidate_ForcesReQuery(t *testing.T) {
	var lookups atomic.Int32
	cache := NewDNSCache(time.Minute)
	cache.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		lookups.Add(1)
		return addrs("192.0.2.10"), nil
	}

	if _, err := cache.Resolve(context.Background(), "example.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	cache.Invalidate("example.com")
	if _, err := cache.Resolve(context.Background(), "example.com"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := lookups.Load(); got != 2 {
		t.Errorf("lookup count = %d, want 2 after invalidation", got)
	}
}
