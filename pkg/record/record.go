// Package record defines the canonical output layout the sequencer writes
// into: a fixed Common Record header followed by a variable set of
// extension blocks, as registered through an ExtensionMap.
package record

import "encoding/binary"

// Flag bits asserted on a Common Record's header, matching the output
// feature flags spec.md §3 names for a Template.
const (
	FlagIPv6Address uint8 = 1 << iota
	FlagIPv6NextHop
	FlagCounters64
	FlagSampled
	FlagReceivedTimestamp
	FlagIPv6Exporter
)

// CommonRecordType is the fixed type tag written into every transcoded
// record, matching the "type=1" Common Record convention.
const CommonRecordType uint8 = 1

// NfVersion is the protocol-version tag stamped into every output record.
const NfVersion uint8 = 10

// Fixed byte offsets of the Common Record header. InitHeader writes the
// fields before OffsetFirst and the reserved pad at offsetReservedPad;
// WriteTimes writes OffsetFirst through OffsetMSecLast; the sequencer
// program writes (or zero-fills) the rest.
const (
	OffsetSize             = 0
	OffsetType             = 2
	OffsetFlags            = 3
	OffsetExtMapID         = 4
	OffsetExporterSysID    = 6
	OffsetNfVersion        = 8
	offsetHeaderPad        = 9
	OffsetFirst            = 10
	OffsetMSecFirst        = 14
	OffsetLast             = 16
	OffsetMSecLast         = 20
	OffsetForwardingStatus = 22
	OffsetTCPFlags         = 23
	OffsetProtocol         = 24
	OffsetToS              = 25
	OffsetSrcPort          = 26
	OffsetDstPort          = 28
	offsetReservedPad      = 30
	OffsetBiflowDirection  = 32
	OffsetFlowEndReason    = 33
	OffsetAddresses        = 34

	// FixedHeaderSize is the byte length of everything before the address
	// block; it is the same for IPv4 and IPv6 records.
	FixedHeaderSize = OffsetAddresses
)

// AddressWidth returns the byte width of a single address (source or
// destination) for a record using the given family, and the offset of
// the packet/byte counters that follow both addresses.
func AddressWidth(ipv6 bool) (width, countersOffset int) {
	if ipv6 {
		return 16, OffsetAddresses + 32
	}
	return 4, OffsetAddresses + 8
}

// FixedRecordSize returns the size, in bytes, of the Common Record's
// non-extension portion (header + addresses + counters) for the given
// address family.
func FixedRecordSize(ipv6 bool) int {
	_, countersOffset := AddressWidth(ipv6)
	return countersOffset + 16 // packets(8) + bytes(8)
}

// InitHeader stamps the portion of the Common Record header that is
// constant across every data record produced by one template: size, type,
// flags, extension map id, exporter system id, and protocol version.
func InitHeader(out []byte, size int, flags uint8, extMapID, exporterSysID uint16) {
	binary.BigEndian.PutUint16(out[OffsetSize:], uint16(size))
	out[OffsetType] = CommonRecordType
	out[OffsetFlags] = flags
	binary.BigEndian.PutUint16(out[OffsetExtMapID:], extMapID)
	binary.BigEndian.PutUint16(out[OffsetExporterSysID:], exporterSysID)
	out[OffsetNfVersion] = NfVersion
	out[offsetHeaderPad] = 0
	binary.BigEndian.PutUint16(out[offsetReservedPad:], 0)
}

// WriteTimes splits flow_start/flow_end millisecond epochs into
// (epoch-seconds, ms-remainder) pairs and writes them at their fixed
// offsets.
func WriteTimes(out []byte, flowStartMs, flowEndMs uint64) {
	first := flowStartMs / 1000
	msecFirst := flowStartMs % 1000
	last := flowEndMs / 1000
	msecLast := flowEndMs % 1000

	binary.BigEndian.PutUint32(out[OffsetFirst:], uint32(first))
	binary.BigEndian.PutUint16(out[OffsetMSecFirst:], uint16(msecFirst))
	binary.BigEndian.PutUint32(out[OffsetLast:], uint32(last))
	binary.BigEndian.PutUint16(out[OffsetMSecLast:], uint16(msecLast))
}
