package fetch

import (
	"context"
	"net"
	"sync"
	"time"
)

// dnsEntry is one cached resolution.
type dnsEntry struct {
	ip        string
	expiresAt time.Time
}

// DNSCache caches hostname resolutions for a fixed TTL.
//
// All keys target the same upstream host, so without caching every polling
// cycle would re-resolve the same name once per key. Cached entries that have
// expired are still used as a fallback when a fresh lookup fails, keeping
// checks running through transient resolver outages.
type DNSCache struct {
	mu      sync.Mutex
	entries map[string]dnsEntry
	ttl     time.Duration

	// lookup is swappable for tests; defaults to the system resolver.
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
	now    func() time.Time
}

// NewDNSCache creates a DNS cache with the given TTL.
// A zero TTL defaults to 5 minutes.
func NewDNSCache(ttl time.Duration) *DNSCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &DNSCache{
		entries: make(map[string]dnsEntry),
		ttl:     ttl,
		lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		},
		now: time.Now,
	}
}

// Resolve returns an IP for host, preferring a live cache entry.
//
// Literal IP addresses pass through untouched. On lookup failure an expired
// cache entry is returned as a fallback when one exists.
func (c *DNSCache) Resolve(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	now := c.now()

	c.mu.Lock()
	entry, cached := c.entries[host]
	c.mu.Unlock()

	if cached && now.Before(entry.expiresAt) {
		return entry.ip, nil
	}

	addrs, err := c.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		if cached {
			// stale fallback beats failing the check outright
			return entry.ip, nil
		}
		if err != nil {
			return "", err
		}
		return "", &net.DNSError{Err: "no addresses found", Name: host, IsNotFound: true}
	}

	ip := pickAddr(addrs)

	c.mu.Lock()
	c.entries[host] = dnsEntry{ip: ip, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return ip, nil
}

// Invalidate expires the cache entry for host so the next Resolve re-queries.
func (c *DNSCache) Invalidate(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[host]; ok {
		entry.expiresAt = c.now().Add(-time.Minute)
		c.entries[host] = entry
	}
}

// pickAddr prefers the first IPv4 address, falling back to the first address.
func pickAddr(addrs []net.IPAddr) string {
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String()
		}
	}
	return addrs[0].IP.String()
}
