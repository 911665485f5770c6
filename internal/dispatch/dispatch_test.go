package dispatch

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"ipfixcore/internal/exporter"
	"ipfixcore/internal/registry"
	"ipfixcore/internal/sink"
	"ipfixcore/pkg/record"
)

func u16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func u32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }

func messageHeader(length uint16, exportTime, seq, domain uint32) []byte {
	h := make([]byte, headerSize)
	binary.BigEndian.PutUint16(h[0:2], 10)
	binary.BigEndian.PutUint16(h[2:4], length)
	binary.BigEndian.PutUint32(h[4:8], exportTime)
	binary.BigEndian.PutUint32(h[8:12], seq)
	binary.BigEndian.PutUint32(h[12:16], domain)
	return h
}

func templateSetFlowset(templateID uint16, fields [][2]uint16) []byte {
	body := append([]byte{}, u16(templateID)...)
	body = append(body, u16(uint16(len(fields)))...)
	for _, f := range fields {
		body = append(body, u16(f[0])...)
		body = append(body, u16(f[1])...)
	}
	fh := append(u16(flowsetTemplate), u16(uint16(len(body)+flowsetHeaderSize))...)
	return append(fh, body...)
}

func dataSetFlowset(templateID uint16, records ...[]byte) []byte {
	var body []byte
	for _, r := range records {
		body = append(body, r...)
	}
	fh := append(u16(templateID), u16(uint16(len(body)+flowsetHeaderSize))...)
	return append(fh, body...)
}

func simpleV4Fields() [][2]uint16 {
	return [][2]uint16{
		{registry.ElementSourceIPv4Address, 4},
		{registry.ElementDestinationIPv4Address, 4},
		{registry.ElementSourceTransportPort, 2},
		{registry.ElementDestinationTransportPort, 2},
		{registry.ElementProtocolIdentifier, 1},
		{registry.ElementPacketDeltaCount, 4},
		{registry.ElementOctetDeltaCount, 4},
	}
}

func simpleV4Record(srcIP, dstIP [4]byte, srcPort, dstPort uint16, proto uint8, packets, octets uint32) []byte {
	var r []byte
	r = append(r, srcIP[:]...)
	r = append(r, dstIP[:]...)
	r = append(r, u16(srcPort)...)
	r = append(r, u16(dstPort)...)
	r = append(r, proto)
	r = append(r, u32(packets)...)
	r = append(r, u32(octets)...)
	return r
}

func newTestDispatcher() (*Dispatcher, *sink.Memory) {
	sk := sink.NewMemory()
	d := NewDispatcher(registry.New(), exporter.NewRegistry(), sk, nil, nil)
	return d, sk
}

func TestHandlePacketTemplateThenData(t *testing.T) {
	d, sk := newTestDispatcher()
	src := netip.MustParseAddr("198.51.100.1")

	const templateID = 300
	tmplFlowset := templateSetFlowset(templateID, simpleV4Fields())
	rec := simpleV4Record([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 1111, 80, 6, 3, 900)
	dataFlowset := dataSetFlowset(templateID, rec)

	tmplBody := append([]byte{}, tmplFlowset...)
	msg1 := messageHeader(uint16(headerSize+len(tmplBody)), 1000, 1, 5)
	msg1 = append(msg1, tmplBody...)
	if err := d.HandlePacket(src, msg1, time.Now()); err != nil {
		t.Fatalf("HandlePacket (template): %v", err)
	}
	if sk.Len() != 0 {
		t.Fatalf("a template-only packet must not produce any records")
	}

	dataBody := append([]byte{}, dataFlowset...)
	msg2 := messageHeader(uint16(headerSize+len(dataBody)), 1001, 2, 5)
	msg2 = append(msg2, dataBody...)
	if err := d.HandlePacket(src, msg2, time.Now()); err != nil {
		t.Fatalf("HandlePacket (data): %v", err)
	}
	if sk.Len() != 1 {
		t.Fatalf("got %d records, want 1", sk.Len())
	}

	out := sk.Records[0]
	if got := binary.BigEndian.Uint16(out[record.OffsetSrcPort:]); got != 1111 {
		t.Errorf("src port = %d, want 1111", got)
	}
}

func TestHandlePacketFlushesExporterInfoOnFirstSight(t *testing.T) {
	d, sk := newTestDispatcher()
	src := netip.MustParseAddr("198.51.100.9")
	msg := messageHeader(uint16(headerSize), 1000, 1, 42)

	if err := d.HandlePacket(src, msg, time.Now()); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if len(sk.Exporters) != 1 {
		t.Fatalf("got %d exporter info flushes, want 1", len(sk.Exporters))
	}
	if sk.Exporters[0].Addr != src || sk.Exporters[0].Domain != 42 {
		t.Errorf("got exporter info %+v, want addr=%v domain=42", sk.Exporters[0], src)
	}

	if err := d.HandlePacket(src, msg, time.Now()); err != nil {
		t.Fatalf("HandlePacket (second): %v", err)
	}
	if len(sk.Exporters) != 1 {
		t.Errorf("a previously seen exporter should not flush exporter info again, got %d entries", len(sk.Exporters))
	}
}

func TestHandlePacketUnknownTemplateIsIgnored(t *testing.T) {
	d, sk := newTestDispatcher()
	src := netip.MustParseAddr("198.51.100.1")

	rec := simpleV4Record([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 1, 2, 6, 1, 1)
	dataFlowset := dataSetFlowset(999, rec)
	msg := messageHeader(uint16(headerSize+len(dataFlowset)), 1000, 1, 0)
	msg = append(msg, dataFlowset...)

	if err := d.HandlePacket(src, msg, time.Now()); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if sk.Len() != 0 {
		t.Fatalf("a data set for an unknown template must produce no records")
	}
}

func TestHandlePacketRejectsBadVersion(t *testing.T) {
	d, _ := newTestDispatcher()
	msg := messageHeader(uint16(headerSize), 1000, 1, 0)
	binary.BigEndian.PutUint16(msg[0:2], 9) // not IPFIX

	if err := d.HandlePacket(netip.MustParseAddr("198.51.100.1"), msg, time.Now()); err == nil {
		t.Fatalf("expected an error for a non-IPFIX version field")
	}
}

func TestWithdrawnTemplateStopsFurtherData(t *testing.T) {
	d, sk := newTestDispatcher()
	src := netip.MustParseAddr("198.51.100.1")
	const templateID = 301

	tmplFlowset := templateSetFlowset(templateID, simpleV4Fields())
	msg1 := messageHeader(uint16(headerSize+len(tmplFlowset)), 1000, 1, 0)
	msg1 = append(msg1, tmplFlowset...)
	if err := d.HandlePacket(src, msg1, time.Now()); err != nil {
		t.Fatalf("HandlePacket (template): %v", err)
	}

	withdraw := templateSetFlowset(templateID, nil)
	msg2 := messageHeader(uint16(headerSize+len(withdraw)), 1001, 2, 0)
	msg2 = append(msg2, withdraw...)
	if err := d.HandlePacket(src, msg2, time.Now()); err != nil {
		t.Fatalf("HandlePacket (withdraw): %v", err)
	}

	rec := simpleV4Record([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 1, 2, 6, 1, 1)
	dataFlowset := dataSetFlowset(templateID, rec)
	msg3 := messageHeader(uint16(headerSize+len(dataFlowset)), 1002, 3, 0)
	msg3 = append(msg3, dataFlowset...)
	if err := d.HandlePacket(src, msg3, time.Now()); err != nil {
		t.Fatalf("HandlePacket (data after withdraw): %v", err)
	}
	if sk.Len() != 0 {
		t.Fatalf("expected no records for a data set under a withdrawn template")
	}
}

func TestWithdrawAllTemplateIDResetsEveryTemplate(t *testing.T) {
	d, sk := newTestDispatcher()
	src := netip.MustParseAddr("198.51.100.1")
	const templateA, templateB = 303, 304

	fields := simpleV4Fields()
	tmplFlowsets := append(append([]byte{}, templateSetFlowset(templateA, fields)...), templateSetFlowset(templateB, fields)...)
	msg1 := messageHeader(uint16(headerSize+len(tmplFlowsets)), 1000, 1, 0)
	msg1 = append(msg1, tmplFlowsets...)
	if err := d.HandlePacket(src, msg1, time.Now()); err != nil {
		t.Fatalf("HandlePacket (templates): %v", err)
	}

	state, _ := d.Exporters.Get(exporter.Key{Addr: src})
	if len(state.Templates) != 2 {
		t.Fatalf("got %d templates before withdraw-all, want 2", len(state.Templates))
	}

	// A zero-field template record naming the reserved id 2 withdraws
	// every template this exporter has announced, not just id 2 itself.
	withdrawAll := templateSetFlowset(withdrawAllTemplateID, nil)
	msg2 := messageHeader(uint16(headerSize+len(withdrawAll)), 1001, 2, 0)
	msg2 = append(msg2, withdrawAll...)
	if err := d.HandlePacket(src, msg2, time.Now()); err != nil {
		t.Fatalf("HandlePacket (withdraw-all): %v", err)
	}
	if len(state.Templates) != 0 {
		t.Errorf("got %d templates after withdraw-all, want 0", len(state.Templates))
	}

	rec := simpleV4Record([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 1, 2, 6, 1, 1)
	dataFlowset := dataSetFlowset(templateA, rec)
	msg3 := messageHeader(uint16(headerSize+len(dataFlowset)), 1002, 3, 0)
	msg3 = append(msg3, dataFlowset...)
	if err := d.HandlePacket(src, msg3, time.Now()); err != nil {
		t.Fatalf("HandlePacket (data after withdraw-all): %v", err)
	}
	if sk.Len() != 0 {
		t.Fatalf("expected no records for a data set under a template withdrawn by withdraw-all")
	}
}

func TestCompiledProgramIsReusedAcrossExporters(t *testing.T) {
	d, _ := newTestDispatcher()
	fields := simpleV4Fields()

	tmplFlowset := templateSetFlowset(302, fields)
	srcA := netip.MustParseAddr("198.51.100.1")
	srcB := netip.MustParseAddr("198.51.100.2")

	msgA := messageHeader(uint16(headerSize+len(tmplFlowset)), 1000, 1, 0)
	msgA = append(msgA, tmplFlowset...)
	if err := d.HandlePacket(srcA, msgA, time.Now()); err != nil {
		t.Fatalf("HandlePacket A: %v", err)
	}
	msgB := messageHeader(uint16(headerSize+len(tmplFlowset)), 1000, 1, 0)
	msgB = append(msgB, tmplFlowset...)
	if err := d.HandlePacket(srcB, msgB, time.Now()); err != nil {
		t.Fatalf("HandlePacket B: %v", err)
	}

	stateA, _ := d.Exporters.Get(exporter.Key{Addr: srcA})
	stateB, _ := d.Exporters.Get(exporter.Key{Addr: srcB})
	progA := stateA.Templates[302].Program
	progB := stateB.Templates[302].Program
	if progA != progB {
		t.Errorf("two exporters announcing an identical template should share one compiled Program")
	}
}
