package sequencer

import (
	"encoding/binary"
	"net/netip"

	"ipfixcore/internal/registry"
	"ipfixcore/internal/template"
	"ipfixcore/pkg/record"
)

// sanityEpochSeconds is nfdump's floor for a believable flow timestamp:
// 1996-01-01T00:00:00Z. A reconstructed time before it almost always means
// a missing or garbled time base, and both endpoints are zeroed instead.
const sanityEpochSeconds = 820454400

// ExecContext carries the per-packet values the VM needs but that no
// template field supplies: the active sampling rate, the exporter's wire
// identity, the two timestamps (packet export time, local receipt time)
// synthesized extensions and time reconstruction depend on, and the
// exporter's option-announced SystemInitTime (0 if the exporter has never
// sent one), the preferred anchor for sysUpTime-relative reconstruction.
type ExecContext struct {
	SamplingRate     uint64
	ExporterSysID    uint16
	ExporterAddr     netip.Addr
	ExportTimeMs     uint64
	ReceivedAtMs     uint64
	SystemInitTimeMs uint64
}

type timeScratch struct {
	startSeconds, endSeconds uint32
	startMs, endMs           uint64
	haveEnd                  bool
	durationMs               uint32
	startDeltaUs, endDeltaUs uint64
	sysUpStart, sysUpEnd     uint32
	sysInitTimeMs            uint64
	icmpType, icmpCode       uint8
	haveICMP                 bool
}

// Run executes p against the data record starting at data[0], writing the
// transcoded Common Record into out. data may hold more than one record
// back to back (a Data Set's full payload); Run consumes only the bytes
// the program's steps read and returns that count as consumedIn, so the
// caller can slice the next record off data[consumedIn:].
func Run(p *Program, data []byte, out []byte, ctx ExecContext) (consumedIn, consumedOut int, err error) {
	if len(out) < p.RecordSize {
		return 0, 0, ErrOutputBufferFull
	}

	for _, zf := range p.ZeroFills {
		writeZero(out, zf.Offset, zf.Op)
	}

	var sc timeScratch
	cursor := 0
	for _, st := range p.Steps {
		length := st.InputLength
		if length == template.VariableLength {
			l, n, ok := readVarLength(data[cursor:])
			if !ok {
				return 0, 0, ErrTruncatedRecord
			}
			cursor += n
			length = l
		}
		if cursor+length > len(data) {
			return 0, 0, ErrTruncatedRecord
		}
		field := data[cursor : cursor+length]

		switch {
		case st.Op == registry.NOP || st.Op == registry.DynSkip:
			// consume only
		case st.Op == registry.SaveICMP:
			sc.haveICMP = true
			sc.icmpType = field[0]
			sc.icmpCode = field[1]
		case st.Op.IsTimeOp():
			applyTime(&sc, st, field)
		default:
			applyMove(out, st, field, ctx.SamplingRate)
		}
		cursor += length
	}

	writeReconstructedTime(out, p.TimeBase, sc, ctx.ExportTimeMs, ctx.SystemInitTimeMs)

	if sc.haveICMP {
		proto := out[record.OffsetProtocol]
		if proto == 1 || proto == 58 {
			binary.BigEndian.PutUint16(out[record.OffsetDstPort:], uint16(sc.icmpType)<<8|uint16(sc.icmpCode))
		}
	}

	writeRouterIP(out, p.RouterIPOffset, p.IPv6, ctx.ExporterAddr)
	binary.BigEndian.PutUint64(out[p.ReceivedOffset:], ctx.ReceivedAtMs)

	flags := uint8(0)
	if p.IPv6 {
		flags |= record.FlagIPv6Address
	}
	for _, t := range p.ExtMap.Tags {
		if t == record.ExtNextHopV6 || t == record.ExtBGPNextHopV6 {
			flags |= record.FlagIPv6NextHop
		}
	}
	flags |= record.FlagCounters64
	if ctx.SamplingRate > 1 {
		flags |= record.FlagSampled
	}
	flags |= record.FlagReceivedTimestamp
	if ctx.ExporterAddr.Is6() && !ctx.ExporterAddr.Is4In6() {
		flags |= record.FlagIPv6Exporter
	}
	record.InitHeader(out, p.RecordSize, flags, p.ExtMap.ID, ctx.ExporterSysID)

	return cursor, p.RecordSize, nil
}

func readVarLength(data []byte) (length, consumed int, ok bool) {
	if len(data) < 1 {
		return 0, 0, false
	}
	first := int(data[0])
	if first < 255 {
		return first, 1, true
	}
	if len(data) < 3 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(data[1:3])), 3, true
}

func writeZero(out []byte, offset int, op registry.Opcode) {
	var n int
	switch op {
	case registry.Zero8:
		n = 1
	case registry.Zero16:
		n = 2
	case registry.Zero32:
		n = 4
	case registry.Zero64:
		n = 8
	case registry.Zero128:
		n = 16
	default:
		return
	}
	for i := 0; i < n; i++ {
		out[offset+i] = 0
	}
}

func applyMove(out []byte, st Step, field []byte, samplingRate uint64) {
	off := st.OutputOffset
	switch st.Op {
	case registry.Move8:
		out[off] = field[0]
	case registry.Move16:
		copy(out[off:off+2], field[:2])
	case registry.Move32:
		copy(out[off:off+4], field[:4])
	case registry.Move40:
		copy(out[off:off+5], field[:5])
	case registry.Move48:
		copy(out[off:off+6], field[:6])
	case registry.Move56:
		copy(out[off:off+7], field[:7])
	case registry.Move64:
		copy(out[off:off+8], field[:8])
	case registry.Move128:
		copy(out[off:off+16], field[:16])
	case registry.Move32Sampled:
		v := uint64(binary.BigEndian.Uint32(field)) * samplingRate
		binary.BigEndian.PutUint64(out[off:off+8], v)
	case registry.Move48Sampled:
		v := uint48(field) * samplingRate
		binary.BigEndian.PutUint64(out[off:off+8], v)
	case registry.Move64Sampled:
		v := binary.BigEndian.Uint64(field) * samplingRate
		binary.BigEndian.PutUint64(out[off:off+8], v)
	case registry.MoveMAC:
		copy(out[off:off+6], field[:6])
		out[off+6], out[off+7] = 0, 0
	case registry.MoveMPLS:
		out[off] = 0
		copy(out[off+1:off+4], field[:3])
	case registry.MoveFlags:
		out[off] = field[1]
	}
}

func uint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func applyTime(sc *timeScratch, st Step, field []byte) {
	switch st.Op {
	case registry.TimeUnix:
		v := binary.BigEndian.Uint32(field)
		if st.TimeRole == RoleStart {
			sc.startSeconds = v
		} else {
			sc.endSeconds = v
		}
	case registry.Time64Milli:
		v := binary.BigEndian.Uint64(field)
		if st.TimeRole == RoleStart {
			sc.startMs = v
		} else {
			sc.endMs = v
			sc.haveEnd = true
		}
	case registry.Time64MilliDur:
		sc.durationMs = binary.BigEndian.Uint32(field)
	case registry.TimeDeltaMicro:
		v := uint64(binary.BigEndian.Uint32(field))
		if st.TimeRole == RoleStart {
			sc.startDeltaUs = v
		} else {
			sc.endDeltaUs = v
		}
	case registry.TimeMilli:
		v := binary.BigEndian.Uint32(field)
		if st.TimeRole == RoleStart {
			sc.sysUpStart = v
		} else {
			sc.sysUpEnd = v
		}
	case registry.SysInitTime:
		sc.sysInitTimeMs = binary.BigEndian.Uint64(field)
	}
}

func writeReconstructedTime(out []byte, base TimeBase, sc timeScratch, exportTimeMs, ctxSystemInitTimeMs uint64) {
	var startMs, endMs uint64
	switch base {
	case TimeBaseDeltaMicroseconds:
		startMs = saturatingSub(exportTimeMs, sc.startDeltaUs/1000)
		endMs = saturatingSub(exportTimeMs, sc.endDeltaUs/1000)
	case TimeBaseMilliseconds:
		startMs = sc.startMs
		if sc.haveEnd {
			endMs = sc.endMs
		} else {
			endMs = sc.startMs + uint64(sc.durationMs)
		}
	case TimeBaseSysUpTime:
		// Preference order: a per-record SystemInitTime field, then the
		// exporter's option-announced SystemInitTime, then the weakest
		// fallback of deriving it from this packet's own export time.
		initMs := sc.sysInitTimeMs
		if initMs == 0 {
			initMs = ctxSystemInitTimeMs
		}
		if initMs == 0 {
			initMs = saturatingSub(exportTimeMs, uint64(sc.sysUpEnd))
		}
		startMs = initMs + uint64(sc.sysUpStart)
		endMs = initMs + uint64(sc.sysUpEnd)
	case TimeBaseSeconds:
		startMs = uint64(sc.startSeconds) * 1000
		endMs = uint64(sc.endSeconds) * 1000
	default:
		startMs, endMs = 0, 0
	}

	if startMs/1000 < sanityEpochSeconds || endMs/1000 < sanityEpochSeconds {
		startMs, endMs = 0, 0
	}
	record.WriteTimes(out, startMs, endMs)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// writeRouterIP stamps the exporter's own transport address into the
// record's router-IP extension slot, whose width follows the record's own
// address family. An exporter reachable over the other family is recorded
// as unknown (the slot stays zero) rather than truncated or overrun.
func writeRouterIP(out []byte, offset int, recordIsIPv6 bool, addr netip.Addr) {
	if !addr.IsValid() {
		return
	}
	if !recordIsIPv6 {
		if addr.Is4() || addr.Is4In6() {
			a4 := addr.As4()
			copy(out[offset:offset+4], a4[:])
		}
		return
	}
	if addr.Is6() && !addr.Is4In6() {
		a16 := addr.As16()
		copy(out[offset:offset+16], a16[:])
	}
}
