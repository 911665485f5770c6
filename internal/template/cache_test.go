package template

import (
	"encoding/binary"
	"testing"
)

func buildTemplateBytes(id, fieldCount uint16, elementID, length uint16) []byte {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], id)
	binary.BigEndian.PutUint16(header[2:4], fieldCount)
	return append(header, fieldSpecifier(elementID, length)...)
}

func TestCacheReturnsSamePointerForIdenticalBytes(t *testing.T) {
	c := NewCache()
	raw := buildTemplateBytes(256, 1, 8, 4)

	t1, n1, err := c.GetOrParse(raw, ParseTemplateRecord)
	if err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	t2, n2, err := c.GetOrParse(raw, ParseTemplateRecord)
	if err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	if t1 != t2 {
		t.Errorf("expected the same *Template pointer for identical template bytes")
	}
	if n1 != n2 {
		t.Errorf("consumed length should be stable across calls: %d vs %d", n1, n2)
	}
}

func TestCacheDistinguishesByExactRecordBytes(t *testing.T) {
	c := NewCache()

	// Two template records back to back in the same flowset body; the
	// cache key must be scoped to each record's own bytes, not whatever
	// tail happens to follow it.
	first := buildTemplateBytes(256, 1, 8, 4)
	second := buildTemplateBytes(257, 1, 12, 4)
	body := append(append([]byte{}, first...), second...)

	t1, n1, err := c.GetOrParse(body, ParseTemplateRecord)
	if err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	if n1 != len(first) {
		t.Fatalf("consumed %d bytes, want %d", n1, len(first))
	}
	t2, _, err := c.GetOrParse(body[n1:], ParseTemplateRecord)
	if err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	if t1 == t2 {
		t.Errorf("two distinct templates must not share a cached pointer")
	}
	if t1.ID != 256 || t2.ID != 257 {
		t.Errorf("got ids %d, %d, want 256, 257", t1.ID, t2.ID)
	}

	// Re-parsing the first template's bytes alone (as a lone record, no
	// trailing bytes) must hit the same cache entry as the first call.
	t3, _, err := c.GetOrParse(first, ParseTemplateRecord)
	if err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	if t3 != t1 {
		t.Errorf("expected a cache hit for the first template's exact bytes")
	}
}

func TestCacheEvict(t *testing.T) {
	c := NewCache()
	raw := buildTemplateBytes(256, 1, 8, 4)
	if _, _, err := c.GetOrParse(raw, ParseTemplateRecord); err != nil {
		t.Fatalf("GetOrParse: %v", err)
	}
	c.Evict(256)
	if len(c.m) != 0 {
		t.Errorf("expected the cache to be empty after evicting the only entry")
	}
}
