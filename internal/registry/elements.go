package registry

// IPFIX Information Element identifiers, as assigned by IANA and used on
// the wire inside template and data records. Only the subset the
// transcoder actually recognizes is named here; everything else falls
// through Lookup as unmapped and is skipped on wire.
const (
	ElementOctetDeltaCount            = 1
	ElementPacketDeltaCount           = 2
	ElementProtocolIdentifier         = 4
	ElementIPClassOfService           = 5
	ElementTCPControlBits             = 6
	ElementSourceTransportPort        = 7
	ElementSourceIPv4Address          = 8
	ElementSourceIPv4PrefixLength     = 9
	ElementIngressInterface           = 10
	ElementDestinationTransportPort   = 11
	ElementDestinationIPv4Address     = 12
	ElementDestinationIPv4PrefixLength = 13
	ElementEgressInterface            = 14
	ElementIPNextHopIPv4Address       = 15
	ElementBGPSourceASNumber          = 16
	ElementBGPDestinationASNumber     = 17
	ElementBGPNextHopIPv4Address      = 18
	ElementFlowEndSysUpTime           = 21
	ElementFlowStartSysUpTime         = 22
	ElementPostOctetDeltaCount        = 23
	ElementPostPacketDeltaCount       = 24
	ElementSourceIPv6Address          = 27
	ElementDestinationIPv6Address     = 28
	ElementSourceIPv6PrefixLength     = 29
	ElementDestinationIPv6PrefixLength = 30
	ElementICMPTypeCodeIPv4           = 32
	ElementSamplingInterval           = 34
	ElementSamplingAlgorithm          = 35
	ElementMPLSTopLabelIPv4Address    = 47
	ElementSamplerID                  = 48
	ElementSamplerMode                = 49
	ElementSamplerRandomInterval      = 50
	ElementPostIPClassOfService       = 55
	ElementSourceMacAddress           = 56
	ElementPostDestinationMacAddress  = 57
	ElementVlanID                     = 58
	ElementPostVlanID                 = 59
	ElementIPNextHopIPv6Address       = 62
	ElementBGPNextHopIPv6Address      = 63
	ElementMPLSLabelStackSection1     = 70
	ElementMPLSLabelStackSection2     = 71
	ElementMPLSLabelStackSection3     = 72
	ElementMPLSLabelStackSection4     = 73
	ElementMPLSLabelStackSection5     = 74
	ElementMPLSLabelStackSection6     = 75
	ElementMPLSLabelStackSection7     = 76
	ElementMPLSLabelStackSection8     = 77
	ElementMPLSLabelStackSection9     = 78
	ElementMPLSLabelStackSection10    = 79
	ElementDestinationMacAddress      = 80
	ElementPostSourceMacAddress       = 81
	ElementOctetTotalCount            = 85
	ElementPacketTotalCount           = 86
	ElementForwardingStatus           = 89
	ElementPostIPDiffServCodePoint    = 98
	ElementBGPPrevAdjacentASNumber    = 129
	ElementFlowEndReason              = 136
	ElementICMPTypeCodeIPv6           = 139
	ElementMPLSTopLabelIPv6Address    = 140
	ElementFlowStartSeconds           = 150
	ElementFlowEndSeconds             = 151
	ElementFlowStartMilliseconds      = 152
	ElementFlowEndMilliseconds        = 153
	ElementFlowStartMicroseconds      = 154
	ElementFlowEndMicroseconds        = 155
	ElementFlowStartDeltaMicroseconds = 158
	ElementFlowEndDeltaMicroseconds   = 159
	ElementSystemInitTimeMilliseconds = 160
	ElementFlowDurationMilliseconds   = 161
	ElementIngressVRFID               = 234
	ElementEgressVRFID                = 235
	ElementPostMPLSTopLabelExp        = 237
	ElementBiflowDirection            = 239
	ElementDot1qVlanID                = 243
	ElementPostDot1qVlanID            = 254
	ElementPostNATSourceIPv4Address   = 225
	ElementPostNATDestinationIPv4Address = 226
	ElementPostNAPTSourceTransportPort   = 227
	ElementPostNAPTDestinationTransportPort = 228
	ElementNatEvent                   = 230
	ElementFlowDirection              = 61

	// RFC 5101/7015 options-template scope and sampler elements used by
	// newer exporters; both the legacy (34/35/48-50) and the "selector"
	// naming (302/304/305) are recognized, per spec.md §4.5.
	ElementSelectorID         = 302
	ElementSelectorAlgorithm  = 304
	ElementSamplingPacketInterval = 305

	// Post-direction total counters, looked up as ordinary IANA elements
	// like every other registry row.
	ElementPostOctetTotalCount  = 171
	ElementPostPacketTotalCount = 172
)

// ReverseEnterpriseNumber is the enterprise number IANA assigned to the
// biflow "reverse information element" convention (RFC 5103): an
// enterprise-scoped field whose type equals a forward element's type
// denotes that forward element's reverse-direction counterpart.
const ReverseEnterpriseNumber = 29305

// reverseToForward maps a reverse-direction element ID (as seen under
// ReverseEnterpriseNumber) to the forward element it mirrors. Only
// elements the sequencer compiler understands are worth mapping; anything
// else under the reverse enterprise number is skipped like any other
// unmapped field.
var reverseToForward = map[uint16]uint16{
	ElementOctetDeltaCount:  ElementPostOctetDeltaCount,
	ElementPacketDeltaCount: ElementPostPacketDeltaCount,
	ElementOctetTotalCount:  ElementPostOctetTotalCount,
	ElementPacketTotalCount: ElementPostPacketTotalCount,
}

// ForwardOf resolves a reverse information element (enterprise number
// ReverseEnterpriseNumber, type id elementID) to its forward-direction
// counterpart. ok is false when the reverse element isn't one the
// transcoder populates.
func ForwardOf(elementID uint16) (forward uint16, ok bool) {
	forward, ok = reverseToForward[elementID]
	return forward, ok
}
