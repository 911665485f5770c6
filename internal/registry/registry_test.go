package registry

import "testing"

func TestLookupExactWidth(t *testing.T) {
	r := New()

	row, ok := r.Lookup(ElementOctetDeltaCount, 4)
	if !ok {
		t.Fatalf("expected a row for octetDeltaCount/4")
	}
	if row.Move != Move32Sampled || row.OutputLength != 8 {
		t.Errorf("got move=%s outputLength=%d, want Move32Sampled/8", row.Move, row.OutputLength)
	}

	if _, ok := r.Lookup(ElementOctetDeltaCount, 5); ok {
		t.Errorf("expected no row for an unannounced width")
	}
}

func TestLookupWidthPolymorphism(t *testing.T) {
	r := New()

	cases := []struct {
		length uint16
		want   Opcode
	}{
		{4, Move32Sampled},
		{6, Move48Sampled},
		{8, Move64Sampled},
	}
	for _, c := range cases {
		row, ok := r.Lookup(ElementOctetDeltaCount, c.length)
		if !ok {
			t.Fatalf("length %d: expected a row", c.length)
		}
		if row.Move != c.want {
			t.Errorf("length %d: got %s, want %s", c.length, row.Move, c.want)
		}
	}
}

func TestHas(t *testing.T) {
	r := New()
	if !r.Has(ElementSourceIPv4Address) {
		t.Errorf("expected sourceIPv4Address to be a known element")
	}
	if r.Has(0xFFFE) {
		t.Errorf("did not expect an unassigned element id to be known")
	}
}

func TestZeroOfMatchesOutputWidth(t *testing.T) {
	r := New()
	row, ok := r.Lookup(ElementSourceIPv6Address, 16)
	if !ok {
		t.Fatalf("expected a row for sourceIPv6Address")
	}
	if row.Zero != Zero128 {
		t.Errorf("got zero opcode %s, want ZERO128 for a 16-byte move", row.Zero)
	}
}

func TestZeroOfMatchesSampledOutputWidth(t *testing.T) {
	r := New()
	row, ok := r.Lookup(ElementPacketDeltaCount, 4)
	if !ok {
		t.Fatalf("expected a row for packetDeltaCount/4")
	}
	if row.Zero != Zero64 {
		t.Errorf("got zero opcode %s, want ZERO64: a 4-byte Move32Sampled field still widens to an 8-byte output slot", row.Zero)
	}
}

func TestForwardOfBiflowReverseElements(t *testing.T) {
	fwd, ok := ForwardOf(ElementOctetDeltaCount)
	if !ok || fwd != ElementPostOctetDeltaCount {
		t.Errorf("ForwardOf(octetDeltaCount) = (%d, %v), want (postOctetDeltaCount, true)", fwd, ok)
	}

	if _, ok := ForwardOf(ElementSourceIPv4Address); ok {
		t.Errorf("sourceIPv4Address has no reverse-direction counterpart")
	}
}
