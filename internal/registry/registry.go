// Package registry implements the Element Registry: the static catalog
// mapping (information-element id, announced input length) pairs to a
// transcode opcode, a zero-fill opcode, an output byte width, and an
// extension-group tag.
package registry

import "ipfixcore/pkg/record"

// Row is one entry of the Element Registry. Several rows may share
// ElementID to express width polymorphism (e.g. a counter accepting 4-,
// 6-, or 8-byte wire encodings).
type Row struct {
	ElementID    uint16
	InputLength  uint16
	OutputLength uint8
	Move         Opcode
	Zero         Opcode
	Extension    record.ExtensionTag // zero value means "core", not an optional group
}

// Registry is an immutable, process-wide lookup table built once at
// startup from the static element table below.
type Registry struct {
	byElement map[uint16][]Row
}

// New builds the Element Registry from the built-in element table. It
// never fails: the table is a compile-time literal.
func New() *Registry {
	r := &Registry{byElement: make(map[uint16][]Row, len(elementTable))}
	for _, row := range elementTable {
		r.byElement[row.ElementID] = append(r.byElement[row.ElementID], row)
	}
	return r
}

// Lookup returns the registry row matching elementID at the announced
// inputLength. ok is false when the element is unmapped (unknown id, or
// a length no row declares) — the caller must then treat the field as
// SKIP_ELEMENT, preserving its declared length, per spec.md §4.1.
func (r *Registry) Lookup(elementID, inputLength uint16) (Row, bool) {
	for _, row := range r.byElement[elementID] {
		if row.InputLength == inputLength {
			return row, true
		}
	}
	return Row{}, false
}

// Has reports whether any row exists for elementID, regardless of length —
// used by the compiler to decide whether a template announces a field at
// all (e.g. when selecting the time base or address family) without
// needing to already know its wire length.
func (r *Registry) Has(elementID uint16) bool {
	return len(r.byElement[elementID]) > 0
}

func row(elementID, inputLength uint16, outputLength uint8, move Opcode, ext record.ExtensionTag) Row {
	return Row{
		ElementID:    elementID,
		InputLength:  inputLength,
		OutputLength: outputLength,
		Move:         move,
		Zero:         zeroOf(move),
		Extension:    ext,
	}
}

// elementTable is the static Element Registry content. Core common-record
// fields carry the zero ExtensionTag; everything else belongs to one of
// the optional extension groups emitted by the Sequencer Compiler
// (spec.md §4.3 step 6).
var elementTable = []Row{
	// --- core common-record fields ---
	row(ElementProtocolIdentifier, 1, 1, Move8, 0),
	row(ElementIPClassOfService, 1, 1, Move8, 0),
	row(ElementTCPControlBits, 1, 1, Move8, 0),
	row(ElementTCPControlBits, 2, 1, MoveFlags, 0),
	row(ElementForwardingStatus, 1, 1, Move8, 0),
	row(ElementSourceTransportPort, 2, 2, Move16, 0),
	row(ElementDestinationTransportPort, 2, 2, Move16, 0),
	row(ElementBiflowDirection, 1, 1, Move8, 0),
	row(ElementFlowEndReason, 1, 1, Move8, 0),
	row(ElementSourceIPv4Address, 4, 4, Move32, 0),
	row(ElementDestinationIPv4Address, 4, 4, Move32, 0),
	row(ElementSourceIPv6Address, 16, 16, Move128, 0),
	row(ElementDestinationIPv6Address, 16, 16, Move128, 0),
	row(ElementPacketDeltaCount, 4, 8, Move32Sampled, 0),
	row(ElementPacketDeltaCount, 8, 8, Move64Sampled, 0),
	row(ElementPacketTotalCount, 4, 8, Move32Sampled, 0),
	row(ElementPacketTotalCount, 8, 8, Move64Sampled, 0),
	row(ElementOctetDeltaCount, 4, 8, Move32Sampled, 0),
	row(ElementOctetDeltaCount, 6, 8, Move48Sampled, 0),
	row(ElementOctetDeltaCount, 8, 8, Move64Sampled, 0),
	row(ElementOctetTotalCount, 4, 8, Move32Sampled, 0),
	row(ElementOctetTotalCount, 6, 8, Move48Sampled, 0),
	row(ElementOctetTotalCount, 8, 8, Move64Sampled, 0),

	// --- time elements: write only to the scratch frame (OutputLength 0) ---
	row(ElementFlowStartSeconds, 4, 0, TimeUnix, 0),
	row(ElementFlowEndSeconds, 4, 0, TimeUnix, 0),
	row(ElementFlowStartMilliseconds, 8, 0, Time64Milli, 0),
	row(ElementFlowEndMilliseconds, 8, 0, Time64Milli, 0),
	row(ElementFlowDurationMilliseconds, 4, 0, Time64MilliDur, 0),
	row(ElementFlowStartDeltaMicroseconds, 4, 0, TimeDeltaMicro, 0),
	row(ElementFlowEndDeltaMicroseconds, 4, 0, TimeDeltaMicro, 0),
	row(ElementFlowStartSysUpTime, 4, 0, TimeMilli, 0),
	row(ElementFlowEndSysUpTime, 4, 0, TimeMilli, 0),
	row(ElementSystemInitTimeMilliseconds, 8, 0, SysInitTime, 0),
	row(ElementICMPTypeCodeIPv4, 2, 0, SaveICMP, 0),
	row(ElementICMPTypeCodeIPv6, 2, 0, SaveICMP, 0),

	// --- SNMP interface extension ---
	row(ElementIngressInterface, 2, 2, Move16, record.ExtIOSNMP2),
	row(ElementEgressInterface, 2, 2, Move16, record.ExtIOSNMP2),
	row(ElementIngressInterface, 4, 4, Move32, record.ExtIOSNMP4),
	row(ElementEgressInterface, 4, 4, Move32, record.ExtIOSNMP4),

	// --- AS extension ---
	row(ElementBGPSourceASNumber, 2, 2, Move16, record.ExtAS2),
	row(ElementBGPDestinationASNumber, 2, 2, Move16, record.ExtAS2),
	row(ElementBGPSourceASNumber, 4, 4, Move32, record.ExtAS4),
	row(ElementBGPDestinationASNumber, 4, 4, Move32, record.ExtAS4),

	// --- prefix-length / post-ToS / direction bundle ---
	row(ElementSourceIPv4PrefixLength, 1, 1, Move8, record.ExtMultiple),
	row(ElementDestinationIPv4PrefixLength, 1, 1, Move8, record.ExtMultiple),
	row(ElementSourceIPv6PrefixLength, 1, 1, Move8, record.ExtMultiple),
	row(ElementDestinationIPv6PrefixLength, 1, 1, Move8, record.ExtMultiple),
	row(ElementPostIPClassOfService, 1, 1, Move8, record.ExtMultiple),
	row(ElementFlowDirection, 1, 1, Move8, record.ExtMultiple),

	// --- next hop extensions ---
	row(ElementIPNextHopIPv4Address, 4, 4, Move32, record.ExtNextHopV4),
	row(ElementIPNextHopIPv6Address, 16, 16, Move128, record.ExtNextHopV6),
	row(ElementBGPNextHopIPv4Address, 4, 4, Move32, record.ExtBGPNextHopV4),
	row(ElementBGPNextHopIPv6Address, 16, 16, Move128, record.ExtBGPNextHopV6),

	// --- VLAN extension ---
	row(ElementVlanID, 2, 2, Move16, record.ExtVlan),
	row(ElementPostVlanID, 2, 2, Move16, record.ExtVlan),
	row(ElementDot1qVlanID, 2, 2, Move16, record.ExtVlan),
	row(ElementPostDot1qVlanID, 2, 2, Move16, record.ExtVlan),

	// --- egress (out) counters: sampling-corrected like the primary
	// packet/octet counters, so every wire width widens to an 8-byte
	// output slot in the same OutPkg group ---
	row(ElementPostPacketDeltaCount, 4, 8, Move32Sampled, record.ExtOutPkg8),
	row(ElementPostOctetDeltaCount, 4, 8, Move32Sampled, record.ExtOutPkg8),
	row(ElementPostPacketDeltaCount, 8, 8, Move64Sampled, record.ExtOutPkg8),
	row(ElementPostOctetDeltaCount, 8, 8, Move64Sampled, record.ExtOutPkg8),
	row(ElementPostPacketTotalCount, 8, 8, Move64Sampled, record.ExtOutPkg8),
	row(ElementPostOctetTotalCount, 8, 8, Move64Sampled, record.ExtOutPkg8),

	// --- MAC address extensions ---
	row(ElementSourceMacAddress, 6, 8, MoveMAC, record.ExtMac1),
	row(ElementPostDestinationMacAddress, 6, 8, MoveMAC, record.ExtMac1),
	row(ElementDestinationMacAddress, 6, 8, MoveMAC, record.ExtMac2),
	row(ElementPostSourceMacAddress, 6, 8, MoveMAC, record.ExtMac2),

	// --- MPLS label stack (10 slots) ---
	row(ElementMPLSLabelStackSection1, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection2, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection3, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection4, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection5, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection6, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection7, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection8, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection9, 3, 4, MoveMPLS, record.ExtMPLS),
	row(ElementMPLSLabelStackSection10, 3, 4, MoveMPLS, record.ExtMPLS),

	// --- NAT event / VRF extension (NEL) ---
	row(ElementNatEvent, 1, 1, Move8, record.ExtNelCommon),
	row(ElementIngressVRFID, 4, 4, Move32, record.ExtNelCommon),
	row(ElementEgressVRFID, 4, 4, Move32, record.ExtNelCommon),

	// --- NAT translated addresses/ports extension (NSEL) ---
	row(ElementPostNATSourceIPv4Address, 4, 4, Move32, record.ExtNselXlate),
	row(ElementPostNATDestinationIPv4Address, 4, 4, Move32, record.ExtNselXlate),
	row(ElementPostNAPTSourceTransportPort, 2, 2, Move16, record.ExtNselXlate),
	row(ElementPostNAPTDestinationTransportPort, 2, 2, Move16, record.ExtNselXlate),
}
