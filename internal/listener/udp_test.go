package listener

import (
	"net/netip"
	"testing"
)

func TestShardOfIsDeterministic(t *testing.T) {
	addr := netip.MustParseAddr("203.0.113.9")
	first := shardOf(addr, 8)
	for i := 0; i < 50; i++ {
		if got := shardOf(addr, 8); got != first {
			t.Fatalf("shardOf is not deterministic: got %d, want %d", got, first)
		}
	}
}

func TestShardOfStaysInRange(t *testing.T) {
	addrs := []string{"198.51.100.1", "198.51.100.2", "2001:db8::1", "10.0.0.1"}
	for _, a := range addrs {
		addr := netip.MustParseAddr(a)
		for _, workers := range []int{1, 2, 3, 16} {
			shard := shardOf(addr, workers)
			if shard < 0 || shard >= workers {
				t.Errorf("shardOf(%s, %d) = %d, out of range", a, workers, shard)
			}
		}
	}
}

func TestShardOfTreatsUnmappedV4LikeBareV4(t *testing.T) {
	// src addresses fed into shardOf are always Unmap()'d by the read loop
	// before hashing, so a v4-mapped and bare v4 form of the same address
	// must hash identically here.
	bare := netip.MustParseAddr("192.0.2.55")
	mapped := netip.MustParseAddr("::ffff:192.0.2.55").Unmap()
	if shardOf(bare, 4) != shardOf(mapped, 4) {
		t.Errorf("expected an unmapped v4-in-v6 address to shard the same as its bare v4 form")
	}
}

func TestNewDefaultsPortAndWorkerCount(t *testing.T) {
	l := New(0, 0, nil, nil, nil)
	if l.Port() != DefaultPort {
		t.Errorf("got port %d, want default %d", l.Port(), DefaultPort)
	}
	if len(l.workers) != 1 {
		t.Errorf("got %d worker channels, want at least 1", len(l.workers))
	}
}
