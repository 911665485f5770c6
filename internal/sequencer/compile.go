package sequencer

import (
	"fmt"

	"ipfixcore/internal/registry"
	"ipfixcore/internal/template"
	"ipfixcore/pkg/record"
)

// Compile turns a parsed data template into a Program, resolving every
// declared field against the Element Registry, picking the record's
// address family and time base, and laying out the extension region in
// canonical order. tmpl must not be an options template; the dispatcher
// routes those through the exporter's OptionDescriptor path instead.
func Compile(tmpl *template.Template, reg *registry.Registry) (*Program, error) {
	if tmpl.IsOption() {
		return nil, fmt.Errorf("%w: template %d is an options template", ErrUnsupportedTemplateShape, tmpl.ID)
	}

	ipv6, err := chooseAddressFamily(tmpl)
	if err != nil {
		return nil, fmt.Errorf("template %d: %w", tmpl.ID, err)
	}
	timeBase := chooseTimeBase(tmpl)

	p := &Program{
		TemplateID: tmpl.ID,
		IPv6:       ipv6,
		TimeBase:   timeBase,
	}

	filled := make(map[int]bool)      // core output offsets a step already targets
	tagSeen := make(map[record.ExtensionTag]bool)
	var tagOrder []record.ExtensionTag

	for _, f := range tmpl.Fields {
		elementID := f.ElementID
		if f.EnterpriseNumber == registry.ReverseEnterpriseNumber {
			fwd, ok := registry.ForwardOf(elementID)
			if !ok {
				p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
				continue
			}
			elementID = fwd
		} else if f.EnterpriseNumber != 0 {
			// Unknown enterprise scope: not an error, just unmapped.
			p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
			continue
		}

		if isTimeElement(elementID) {
			tier := timeTierOf(elementID)
			if tier != timeBase {
				p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
				continue
			}
			row, ok := reg.Lookup(elementID, f.Length)
			if !ok {
				p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
				continue
			}
			p.Steps = append(p.Steps, Step{Op: row.Move, InputLength: int(f.Length), TimeRole: timeRoleOf(elementID)})
			continue
		}

		row, ok := reg.Lookup(elementID, f.Length)
		if !ok {
			p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
			continue
		}
		if row.Move == registry.SaveICMP {
			p.Steps = append(p.Steps, Step{Op: row.Move, InputLength: int(f.Length)})
			continue
		}

		var outOffset int
		if row.Extension == 0 {
			off, ok := coreOutputOffset(elementID, ipv6)
			if !ok {
				p.Steps = append(p.Steps, Step{Op: registry.DynSkip, InputLength: int(f.Length)})
				continue
			}
			outOffset = off
		} else {
			if !tagSeen[row.Extension] {
				tagSeen[row.Extension] = true
				tagOrder = append(tagOrder, row.Extension)
			}
			outOffset = -1 // resolved once every tag's base offset is known, below
		}

		p.Steps = append(p.Steps, Step{Op: row.Move, InputLength: int(f.Length), OutputOffset: outOffset})
		if outOffset >= 0 {
			filled[outOffset] = true
		}
	}

	if len(tmpl.Fields) > 0 {
		mapped := false
		for _, s := range p.Steps {
			if s.Op != registry.DynSkip {
				mapped = true
				break
			}
		}
		if !mapped {
			return nil, fmt.Errorf("%w: template %d maps no field", ErrUnsupportedTemplateShape, tmpl.ID)
		}
	}

	// Always carry the synthesized extensions: received wall-clock
	// timestamp and the exporter's own transport-layer address.
	for _, t := range []record.ExtensionTag{record.ExtRouterIP, record.ExtReceived} {
		if !tagSeen[t] {
			tagSeen[t] = true
			tagOrder = append(tagOrder, t)
		}
	}
	sortCanonical(tagOrder)

	p.FixedSize = record.FixedRecordSize(ipv6)
	extBase := make(map[record.ExtensionTag]int, len(tagOrder))
	cursor := p.FixedSize
	for _, t := range tagOrder {
		extBase[t] = cursor
		cursor += t.Width(ipv6)
	}
	p.RouterIPOffset = extBase[record.ExtRouterIP]
	p.ReceivedOffset = extBase[record.ExtReceived]
	p.RecordSize = (cursor + 4 + 3) &^ 3 // zero-terminator word, 4-byte aligned
	p.ExtMap = record.ExtensionMap{Tags: tagOrder}

	// Second pass: resolve the deferred extension-field output offsets now
	// that every tag's base offset is fixed.
	fieldIdx := 0
	for _, f := range tmpl.Fields {
		elementID := f.ElementID
		if f.EnterpriseNumber == registry.ReverseEnterpriseNumber {
			if fwd, ok := registry.ForwardOf(elementID); ok {
				elementID = fwd
			} else {
				fieldIdx++
				continue
			}
		} else if f.EnterpriseNumber != 0 {
			fieldIdx++
			continue
		}
		if isTimeElement(elementID) {
			fieldIdx++
			continue
		}
		row, ok := reg.Lookup(elementID, f.Length)
		if !ok || row.Extension == 0 {
			fieldIdx++
			continue
		}
		step := &p.Steps[fieldIdx]
		step.OutputOffset = extBase[row.Extension] + extensionSubOffset(row.Extension, elementID)
		fieldIdx++
	}

	// Fill every core and extension slot no step targets.
	for elementID, off := range coreOffsets(ipv6) {
		if filled[off] {
			continue
		}
		row, ok := reg.Lookup(elementID, coreCanonicalLength(elementID, ipv6))
		if !ok {
			continue
		}
		p.ZeroFills = append(p.ZeroFills, ZeroFill{Op: row.Zero, Offset: off})
	}
	for _, t := range tagOrder {
		for _, off := range extensionZeroOffsets(t, extBase[t], ipv6) {
			p.ZeroFills = append(p.ZeroFills, off)
		}
	}

	return p, nil
}

func chooseAddressFamily(tmpl *template.Template) (bool, error) {
	v4, v6 := false, false
	for _, f := range tmpl.Fields {
		switch f.ElementID {
		case registry.ElementSourceIPv4Address, registry.ElementDestinationIPv4Address:
			v4 = true
		case registry.ElementSourceIPv6Address, registry.ElementDestinationIPv6Address:
			v6 = true
		}
	}
	if v4 && v6 {
		return false, fmt.Errorf("%w: declares both IPv4 and IPv6 addresses", ErrUnsupportedTemplateShape)
	}
	return v6, nil
}

func hasField(tmpl *template.Template, id uint16) bool {
	for _, f := range tmpl.Fields {
		if f.ElementID == id && f.EnterpriseNumber == 0 {
			return true
		}
	}
	return false
}

// chooseTimeBase applies the exporter preference order: delta
// microseconds, then milliseconds (with duration as an end-time
// fallback), then sysUpTime relative to the exporter's init time, then
// plain seconds, then none.
func chooseTimeBase(tmpl *template.Template) TimeBase {
	switch {
	case hasField(tmpl, registry.ElementFlowStartDeltaMicroseconds) && hasField(tmpl, registry.ElementFlowEndDeltaMicroseconds):
		return TimeBaseDeltaMicroseconds
	case hasField(tmpl, registry.ElementFlowStartMilliseconds):
		return TimeBaseMilliseconds
	case hasField(tmpl, registry.ElementFlowStartSysUpTime) && hasField(tmpl, registry.ElementFlowEndSysUpTime):
		return TimeBaseSysUpTime
	case hasField(tmpl, registry.ElementFlowStartSeconds):
		return TimeBaseSeconds
	default:
		return TimeBaseNone
	}
}

func isTimeElement(id uint16) bool {
	return timeTierOf(id) != TimeBaseNone || id == registry.ElementSystemInitTimeMilliseconds
}

func timeRoleOf(id uint16) TimeRole {
	switch id {
	case registry.ElementFlowStartDeltaMicroseconds, registry.ElementFlowStartMilliseconds, registry.ElementFlowStartSysUpTime, registry.ElementFlowStartSeconds:
		return RoleStart
	case registry.ElementFlowEndDeltaMicroseconds, registry.ElementFlowEndMilliseconds, registry.ElementFlowEndSysUpTime, registry.ElementFlowEndSeconds:
		return RoleEnd
	case registry.ElementFlowDurationMilliseconds:
		return RoleDuration
	case registry.ElementSystemInitTimeMilliseconds:
		return RoleSysInit
	default:
		return RoleNone
	}
}

func timeTierOf(id uint16) TimeBase {
	switch id {
	case registry.ElementFlowStartDeltaMicroseconds, registry.ElementFlowEndDeltaMicroseconds:
		return TimeBaseDeltaMicroseconds
	case registry.ElementFlowStartMilliseconds, registry.ElementFlowEndMilliseconds, registry.ElementFlowDurationMilliseconds:
		return TimeBaseMilliseconds
	case registry.ElementFlowStartSysUpTime, registry.ElementFlowEndSysUpTime, registry.ElementSystemInitTimeMilliseconds:
		return TimeBaseSysUpTime
	case registry.ElementFlowStartSeconds, registry.ElementFlowEndSeconds:
		return TimeBaseSeconds
	default:
		return TimeBaseNone
	}
}

// sortCanonical orders extension tags by their assigned enum value, the
// emission order spec.md §4.3 step 6 fixes.
func sortCanonical(tags []record.ExtensionTag) {
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j-1] > tags[j]; j-- {
			tags[j-1], tags[j] = tags[j], tags[j-1]
		}
	}
}

// coreOutputOffset returns the fixed Common Record offset a core
// (non-extension) element id writes to.
func coreOutputOffset(elementID uint16, ipv6 bool) (int, bool) {
	off, ok := coreOffsets(ipv6)[elementID]
	return off, ok
}

func coreOffsets(ipv6 bool) map[uint16]int {
	width, countersOffset := record.AddressWidth(ipv6)
	return map[uint16]int{
		registry.ElementProtocolIdentifier:       record.OffsetProtocol,
		registry.ElementIPClassOfService:         record.OffsetToS,
		registry.ElementTCPControlBits:           record.OffsetTCPFlags,
		registry.ElementForwardingStatus:         record.OffsetForwardingStatus,
		registry.ElementSourceTransportPort:      record.OffsetSrcPort,
		registry.ElementDestinationTransportPort: record.OffsetDstPort,
		registry.ElementBiflowDirection:          record.OffsetBiflowDirection,
		registry.ElementFlowEndReason:            record.OffsetFlowEndReason,
		registry.ElementSourceIPv4Address:        record.OffsetAddresses,
		registry.ElementSourceIPv6Address:        record.OffsetAddresses,
		registry.ElementDestinationIPv4Address:   record.OffsetAddresses + width,
		registry.ElementDestinationIPv6Address:   record.OffsetAddresses + width,
		registry.ElementPacketDeltaCount:         countersOffset,
		registry.ElementPacketTotalCount:         countersOffset,
		registry.ElementOctetDeltaCount:          countersOffset + 8,
		registry.ElementOctetTotalCount:          countersOffset + 8,
	}
}

// coreCanonicalLength returns the input length Lookup should be queried
// with to find the ZERO opcode for a core slot nothing filled; any row
// sharing the element id carries the same Zero opcode family, so the
// narrowest declared width is used.
func coreCanonicalLength(elementID uint16, ipv6 bool) uint16 {
	switch elementID {
	case registry.ElementSourceIPv6Address, registry.ElementDestinationIPv6Address:
		return 16
	case registry.ElementSourceIPv4Address, registry.ElementDestinationIPv4Address:
		return 4
	case registry.ElementSourceTransportPort, registry.ElementDestinationTransportPort:
		return 2
	case registry.ElementPacketDeltaCount, registry.ElementPacketTotalCount, registry.ElementOctetDeltaCount, registry.ElementOctetTotalCount:
		return 4
	default:
		return 1
	}
}

// extensionSubOffset locates an element within its extension tag's
// region: several tags pack two related elements (ingress/egress,
// source/destination) into one 4- or 8-byte group.
func extensionSubOffset(tag record.ExtensionTag, elementID uint16) int {
	switch tag {
	case record.ExtIOSNMP2, record.ExtIOSNMP4:
		if elementID == registry.ElementEgressInterface {
			if tag == record.ExtIOSNMP2 {
				return 2
			}
			return 4
		}
		return 0
	case record.ExtAS2, record.ExtAS4:
		if elementID == registry.ElementBGPDestinationASNumber {
			if tag == record.ExtAS2 {
				return 2
			}
			return 4
		}
		return 0
	case record.ExtMultiple:
		switch elementID {
		case registry.ElementSourceIPv4PrefixLength, registry.ElementSourceIPv6PrefixLength:
			return 0
		case registry.ElementDestinationIPv4PrefixLength, registry.ElementDestinationIPv6PrefixLength:
			return 1
		case registry.ElementPostIPClassOfService:
			return 2
		case registry.ElementFlowDirection:
			return 3
		}
	case record.ExtVlan:
		if elementID == registry.ElementPostVlanID || elementID == registry.ElementPostDot1qVlanID {
			return 2
		}
		return 0
	case record.ExtOutPkg8:
		if elementID == registry.ElementPostOctetDeltaCount || elementID == registry.ElementPostOctetTotalCount {
			return 8
		}
		return 0
	case record.ExtMac1, record.ExtMac2:
		if elementID == registry.ElementPostDestinationMacAddress || elementID == registry.ElementPostSourceMacAddress {
			return 8
		}
		return 0
	case record.ExtMPLS:
		return 4 * int(elementID-registry.ElementMPLSLabelStackSection1)
	case record.ExtNelCommon:
		switch elementID {
		case registry.ElementNatEvent:
			return 0
		case registry.ElementIngressVRFID:
			return 4
		case registry.ElementEgressVRFID:
			return 8
		}
	case record.ExtNselXlate:
		switch elementID {
		case registry.ElementPostNATSourceIPv4Address:
			return 0
		case registry.ElementPostNATDestinationIPv4Address:
			return 4
		case registry.ElementPostNAPTSourceTransportPort:
			return 8
		case registry.ElementPostNAPTDestinationTransportPort:
			return 10
		}
	}
	return 0
}

// extensionZeroOffsets returns the zero-fill writes needed to clear any
// sub-slot of tag that no compiled step targets, so stale bytes from a
// pooled output buffer never leak into a reused record.
func extensionZeroOffsets(tag record.ExtensionTag, base int, ipv6 bool) []ZeroFill {
	width := tag.Width(ipv6)
	switch tag {
	case record.ExtIOSNMP2, record.ExtAS2, record.ExtVlan:
		return []ZeroFill{{Op: registry.Zero32, Offset: base}}
	case record.ExtIOSNMP4, record.ExtAS4:
		return []ZeroFill{{Op: registry.Zero64, Offset: base}}
	case record.ExtMultiple:
		return []ZeroFill{{Op: registry.Zero32, Offset: base}}
	case record.ExtNextHopV4, record.ExtBGPNextHopV4:
		return []ZeroFill{{Op: registry.Zero32, Offset: base}}
	case record.ExtNextHopV6, record.ExtBGPNextHopV6:
		return []ZeroFill{{Op: registry.Zero128, Offset: base}}
	case record.ExtOutPkg8, record.ExtMac1, record.ExtMac2:
		return []ZeroFill{{Op: registry.Zero64, Offset: base}, {Op: registry.Zero64, Offset: base + 8}}
	case record.ExtMPLS:
		fills := make([]ZeroFill, 0, 10)
		for i := 0; i < 10; i++ {
			fills = append(fills, ZeroFill{Op: registry.Zero32, Offset: base + 4*i})
		}
		return fills
	case record.ExtNelCommon:
		return []ZeroFill{{Op: registry.Zero32, Offset: base}, {Op: registry.Zero32, Offset: base + 4}, {Op: registry.Zero32, Offset: base + 8}}
	case record.ExtNselXlate:
		return []ZeroFill{{Op: registry.Zero64, Offset: base}, {Op: registry.Zero32, Offset: base + 8}}
	case record.ExtRouterIP:
		if ipv6 {
			return []ZeroFill{{Op: registry.Zero128, Offset: base}}
		}
		return []ZeroFill{{Op: registry.Zero32, Offset: base}}
	case record.ExtReceived:
		return []ZeroFill{{Op: registry.Zero64, Offset: base}}
	default:
		_ = width
		return nil
	}
}
