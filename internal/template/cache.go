package template

import (
	"crypto/sha1"
	"sync"
)

// Cache memoizes parsed templates by the exact bytes of the template
// record. Exporters routinely retransmit a byte-identical template on
// every refresh interval; returning the same *Template pointer for two
// identical records lets a pointer-keyed downstream cache (the
// dispatcher's compiled Program cache) skip recompiling a Sequencer
// Program that was already built for this exact template.
type Cache struct {
	mu sync.Mutex
	m  map[[sha1.Size]byte]*Template
}

// NewCache returns an empty Parse Cache.
func NewCache() *Cache {
	return &Cache{m: make(map[[sha1.Size]byte]*Template)}
}

// GetOrParse parses raw with parse (one of
// ParseTemplateRecord/ParseOptionsTemplateRecord bound to raw) and
// returns the canonical *Template for its exact on-wire bytes: a fresh
// pointer on first sight, or the previously cached pointer if an
// identical record was parsed before. The record must always be parsed
// to learn how many bytes it consumes, so caching here saves the
// downstream recompile, not the parse itself.
func (c *Cache) GetOrParse(raw []byte, parse func([]byte) (*Template, int, error)) (*Template, int, error) {
	t, n, err := parse(raw)
	if err != nil || t == nil {
		return t, n, err
	}

	key := sha1.Sum(raw[:n])

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.m[key]; ok {
		return cached, n, nil
	}
	c.m[key] = t
	return t, n, nil
}

// Evict removes a template id's cached entries. The cache is keyed by
// content rather than id, so eviction scans; this is only called on the
// withdraw path, which is rare compared to steady-state lookups.
func (c *Cache) Evict(id uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, t := range c.m {
		if t.ID == id {
			delete(c.m, k)
		}
	}
}
