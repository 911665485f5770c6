package record

// ExtensionTag identifies one optional extension group a template may
// populate. Values are stable across the process lifetime (they are the
// wire identity of an extension block) and are assigned in the canonical
// emission order the Sequencer Compiler follows, per spec.md §4.3 step 6.
type ExtensionTag uint16

const (
	ExtIOSNMP2 ExtensionTag = iota + 1
	ExtIOSNMP4
	ExtAS2
	ExtAS4
	ExtMultiple // src/dst prefix length + post-ToS + flow direction bundle
	ExtNextHopV4
	ExtNextHopV6
	ExtBGPNextHopV4
	ExtBGPNextHopV6
	ExtVlan
	ExtOutPkg8 // post-direction packet+octet counters, sampling-corrected to 8 bytes each regardless of wire width
	ExtMac1 // in: source MAC, out: destination MAC
	ExtMac2 // in: destination MAC, out: source MAC
	ExtMPLS
	ExtNelCommon  // NAT event + ingress/egress VRF ids
	ExtNselXlate  // post-NAT translated addresses/ports
	ExtRouterIP   // synthesized from the exporter's transport source
	ExtReceived   // synthesized wall-clock receive timestamp
)

// Width returns the on-the-wire byte width of one instance of the
// extension group, given whether the record's addresses are IPv6.
func (t ExtensionTag) Width(ipv6 bool) int {
	switch t {
	case ExtIOSNMP2, ExtAS2, ExtMultiple, ExtVlan:
		return 4
	case ExtIOSNMP4, ExtAS4:
		return 8
	case ExtNextHopV4, ExtBGPNextHopV4:
		return 4
	case ExtNextHopV6, ExtBGPNextHopV6:
		return 16
	case ExtOutPkg8, ExtMac1, ExtMac2:
		return 16
	case ExtMPLS:
		return 40
	case ExtNelCommon:
		return 12
	case ExtNselXlate:
		return 12
	case ExtRouterIP:
		if ipv6 {
			return 16
		}
		return 4
	case ExtReceived:
		return 8
	default:
		return 0
	}
}

func (t ExtensionTag) String() string {
	switch t {
	case ExtIOSNMP2:
		return "IO_SNMP_2"
	case ExtIOSNMP4:
		return "IO_SNMP_4"
	case ExtAS2:
		return "AS_2"
	case ExtAS4:
		return "AS_4"
	case ExtMultiple:
		return "MULTIPLE"
	case ExtNextHopV4:
		return "NEXT_HOP_V4"
	case ExtNextHopV6:
		return "NEXT_HOP_V6"
	case ExtBGPNextHopV4:
		return "BGP_NEXT_HOP_V4"
	case ExtBGPNextHopV6:
		return "BGP_NEXT_HOP_V6"
	case ExtVlan:
		return "VLAN"
	case ExtOutPkg8:
		return "OUT_PKG_8"
	case ExtMac1:
		return "MAC_1"
	case ExtMac2:
		return "MAC_2"
	case ExtMPLS:
		return "MPLS"
	case ExtNelCommon:
		return "NEL_COMMON"
	case ExtNselXlate:
		return "NSEL_XLATE"
	case ExtRouterIP:
		return "ROUTER_IP"
	case ExtReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// ExtensionMap is the ordered set of extension groups a template
// populates, the unit registered with and assigned an id by the
// downstream Sink (spec.md §6 register_extension_map).
type ExtensionMap struct {
	ID   uint16
	Tags []ExtensionTag
}

// Equal reports whether two maps declare the same tags in the same order,
// used to decide extension_map_changed on template refresh.
func (m ExtensionMap) Equal(other ExtensionMap) bool {
	if len(m.Tags) != len(other.Tags) {
		return false
	}
	for i, t := range m.Tags {
		if other.Tags[i] != t {
			return false
		}
	}
	return true
}

// ByteSize returns the total extension payload size for the given address
// family, rounded up to a 4-byte multiple with a zero terminator as
// spec.md §4.3 step 7 requires.
func (m ExtensionMap) ByteSize(ipv6 bool) int {
	size := 0
	for _, t := range m.Tags {
		size += t.Width(ipv6)
	}
	size += 4 // zero terminator word
	return (size + 3) &^ 3
}
