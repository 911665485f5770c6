package resolver

import (
	"net/netip"
	"testing"
	"time"
)

func TestResolveNilResolverReturnsAddrString(t *testing.T) {
	var r *Resolver
	addr := netip.MustParseAddr("198.51.100.1")
	if got := r.Resolve(addr); got != addr.String() {
		t.Errorf("got %q, want %q", got, addr.String())
	}
}

func TestResolveNoServerReturnsAddrString(t *testing.T) {
	r := New("", 0, 0)
	addr := netip.MustParseAddr("198.51.100.1")
	if got := r.Resolve(addr); got != addr.String() {
		t.Errorf("got %q, want %q", got, addr.String())
	}
	if r.CacheSize() != 0 {
		t.Errorf("a server-less resolver must never populate its cache")
	}
}

func TestResolveHitsCacheWithoutALookup(t *testing.T) {
	r := New("192.0.2.53:53", time.Second, time.Hour)
	addr := netip.MustParseAddr("198.51.100.1")

	r.mu.Lock()
	r.cache[addr] = cacheEntry{hostname: "exporter-a.example.net", expires: time.Now().Add(time.Hour)}
	r.mu.Unlock()

	if got := r.Resolve(addr); got != "exporter-a.example.net" {
		t.Errorf("got %q, want the cached hostname", got)
	}
}

func TestResolveNegativeCacheReturnsAddrString(t *testing.T) {
	r := New("192.0.2.53:53", time.Second, time.Hour)
	addr := netip.MustParseAddr("198.51.100.2")

	r.mu.Lock()
	r.cache[addr] = cacheEntry{notFound: true, expires: time.Now().Add(time.Hour)}
	r.mu.Unlock()

	if got := r.Resolve(addr); got != addr.String() {
		t.Errorf("got %q, want %q for a negatively cached address", got, addr.String())
	}
}

func TestNewAppliesTimeoutAndTTLDefaults(t *testing.T) {
	r := New("192.0.2.53:53", 0, 0)
	if r.timeout != 2*time.Second {
		t.Errorf("got timeout %v, want default 2s", r.timeout)
	}
	if r.ttl != 10*time.Minute {
		t.Errorf("got ttl %v, want default 10m", r.ttl)
	}
}

func TestCacheSizeReflectsEntries(t *testing.T) {
	r := New("192.0.2.53:53", time.Second, time.Hour)
	if r.CacheSize() != 0 {
		t.Fatalf("expected an empty cache on a fresh resolver")
	}
	r.mu.Lock()
	r.cache[netip.MustParseAddr("198.51.100.1")] = cacheEntry{hostname: "a", expires: time.Now().Add(time.Hour)}
	r.cache[netip.MustParseAddr("198.51.100.2")] = cacheEntry{hostname: "b", expires: time.Now().Add(time.Hour)}
	r.mu.Unlock()
	if r.CacheSize() != 2 {
		t.Errorf("got cache size %d, want 2", r.CacheSize())
	}
}
