// Package resolver resolves an exporter's source address to a hostname
// for display, via direct PTR lookups against a configured DNS server.
package resolver

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Resolver performs cached reverse-DNS lookups for exporter addresses.
// Unlike a flow/conversation resolver, an IPFIX collector only ever needs
// to name a small, slowly-changing set of exporters, so the cache has no
// eviction pressure beyond a per-entry TTL.
type Resolver struct {
	mu      sync.RWMutex
	cache   map[netip.Addr]cacheEntry
	server  string // "host:port" of the upstream DNS server
	timeout time.Duration
	ttl     time.Duration
	client  *dns.Client
}

type cacheEntry struct {
	hostname string
	expires  time.Time
	notFound bool
}

// New returns a Resolver that queries server (e.g. "192.0.2.53:53") for
// PTR records, caching results for ttl.
func New(server string, timeout, ttl time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{
		cache:   make(map[netip.Addr]cacheEntry),
		server:  server,
		timeout: timeout,
		ttl:     ttl,
		client:  &dns.Client{Timeout: timeout},
	}
}

// Resolve returns the cached or freshly looked-up hostname for addr. It
// never returns an error for a negative result: a lookup that fails or
// returns nothing yields addr's string form, suitable for direct display.
func (r *Resolver) Resolve(addr netip.Addr) string {
	if r == nil || r.server == "" {
		return addr.String()
	}

	r.mu.RLock()
	entry, ok := r.cache[addr]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		if entry.notFound {
			return addr.String()
		}
		return entry.hostname
	}

	hostname, err := r.lookupPTR(addr)
	r.mu.Lock()
	if err != nil || hostname == "" {
		r.cache[addr] = cacheEntry{expires: time.Now().Add(r.ttl), notFound: true}
		r.mu.Unlock()
		return addr.String()
	}
	r.cache[addr] = cacheEntry{hostname: hostname, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return hostname
}

func (r *Resolver) lookupPTR(addr netip.Addr) (string, error) {
	name, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", fmt.Errorf("resolver: build reverse name: %w", err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)
	msg.RecursionDesired = true

	reply, _, err := r.client.Exchange(msg, r.server)
	if err != nil {
		return "", fmt.Errorf("resolver: PTR query for %s: %w", addr, err)
	}
	for _, rr := range reply.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}

// CacheSize reports the number of addresses currently cached, for
// metrics and the monitor's status line.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
