package dispatch

import (
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"ipfixcore/internal/exporter"
	"ipfixcore/internal/metrics"
	"ipfixcore/internal/registry"
	"ipfixcore/internal/sequencer"
	"ipfixcore/internal/sink"
	"ipfixcore/internal/template"
	"ipfixcore/pkg/record"
)

// Dispatcher is the Packet Dispatcher: it owns the Element Registry, the
// Template Parse Cache, and the exporter Registry, and turns raw IPFIX
// datagrams into Common Records delivered to a Sink. One Dispatcher is
// shared by every worker goroutine: its caches are lock-guarded and each
// data set transcodes into its own buffer; the exporter State it mutates
// per packet is only ever touched from the worker goroutine that owns
// that exporter's shard (spec.md §5).
type Dispatcher struct {
	Registry  *registry.Registry
	Templates *template.Cache
	Exporters *exporter.Registry
	Sink      sink.Sink
	Metrics   *metrics.Metrics
	Log       *zap.Logger

	progMu   sync.Mutex
	programs map[*template.Template]*sequencer.Program
}

// NewDispatcher wires the Packet Dispatcher's dependencies together. log
// and m may be nil in tests; a nop logger and a fresh metrics set are
// substituted.
func NewDispatcher(reg *registry.Registry, exp *exporter.Registry, sk sink.Sink, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Dispatcher{
		Registry:  reg,
		Templates: template.NewCache(),
		Exporters: exp,
		Sink:      sk,
		Metrics:   m,
		Log:       log,
		programs:  make(map[*template.Template]*sequencer.Program),
	}
}

// compileCached returns the Sequencer Program for tmpl, compiling it only
// the first time this exact *Template pointer is seen. The Template
// Parse Cache guarantees that byte-identical template records from any
// exporter resolve to the same pointer, so this also dedups compilation
// across exporters announcing the same template shape.
func (d *Dispatcher) compileCached(tmpl *template.Template) (*sequencer.Program, error) {
	d.progMu.Lock()
	if prog, ok := d.programs[tmpl]; ok {
		d.progMu.Unlock()
		return prog, nil
	}
	d.progMu.Unlock()

	prog, err := sequencer.Compile(tmpl, d.Registry)
	if err != nil {
		return nil, err
	}
	mapID, _ := d.Sink.RegisterExtensionMap(tmpl.ID, prog.ExtMap)
	prog.ExtMap.ID = mapID

	d.progMu.Lock()
	d.programs[tmpl] = prog
	d.progMu.Unlock()
	return prog, nil
}

// HandlePacket decodes one IPFIX Message received from src at receivedAt
// and routes each of its flowsets to the template, options, or data path.
// A malformed header aborts the whole packet. A malformed flowset header
// is logged and aborts the rest of the message: flowsets before it have
// already been processed, and the error is returned.
func (d *Dispatcher) HandlePacket(src netip.Addr, data []byte, receivedAt time.Time) error {
	hdr, err := ParseHeader(data)
	if err != nil {
		d.Metrics.PacketErrors.Inc()
		return err
	}

	key := exporter.Key{Addr: src, Domain: hdr.ObservationID}
	state, existed := d.Exporters.Get(key)
	state.Touch()

	if !existed {
		if err := d.Sink.FlushExporterInfo(sink.ExporterInfo{
			Addr:   src,
			Domain: hdr.ObservationID,
			SysID:  state.SysID,
		}); err != nil {
			d.Log.Warn("flush exporter info failed", zap.Error(err))
		}
	}

	if gap, reordered := state.CheckSequence(hdr.SequenceNumber); gap > 0 || reordered {
		d.Metrics.SequenceMismatches.Inc()
		d.Log.Warn("sequence mismatch",
			zap.Stringer("exporter", src),
			zap.Uint32("domain", hdr.ObservationID),
			zap.Uint32("gap", gap),
			zap.Bool("reordered", reordered),
		)
	}

	exportTimeMs := uint64(hdr.ExportTimeSec) * 1000
	receivedAtMs := uint64(receivedAt.UnixMilli())

	cursor := headerSize
	for cursor < len(data) {
		fh, err := parseFlowsetHeader(data[cursor:])
		if err != nil {
			d.Metrics.FlowsetErrors.Inc()
			d.Log.Warn("malformed flowset, aborting remainder of packet", zap.Error(err))
			return err
		}
		body := data[cursor+flowsetHeaderSize : cursor+int(fh.Length)]

		switch {
		case fh.ID == flowsetTemplate:
			d.handleTemplateSet(state, body)
		case fh.ID == flowsetOptionsTemplate:
			d.handleOptionsTemplateSet(state, body)
		case fh.ID >= minDataFlowsetID:
			d.handleDataSet(state, fh.ID, body, exportTimeMs, receivedAtMs, src)
		default:
			d.Log.Debug("skipping reserved flowset id", zap.Uint16("id", fh.ID))
		}

		cursor += int(fh.Length)
	}

	d.Metrics.PacketsTotal.Inc()
	return nil
}

// withdrawAllTemplateID is the reserved template id a zero-field
// withdrawal record uses to mean "withdraw every template announced by
// this exporter", rather than the one id it names (spec.md §4.5).
const withdrawAllTemplateID = 2

func (d *Dispatcher) handleTemplateSet(state *exporter.State, body []byte) {
	offset := 0
	for offset < len(body) {
		tmpl, n, err := d.Templates.GetOrParse(body[offset:], template.ParseTemplateRecord)
		if err != nil {
			d.Log.Warn("truncated template record", zap.Error(err))
			return
		}
		offset += n

		if tmpl.Withdrawn() {
			if tmpl.ID == withdrawAllTemplateID {
				d.withdrawAllTemplates(state)
				continue
			}
			d.Sink.RemoveExtensionMap(tmpl.ID)
			state.WithdrawTemplate(tmpl.ID)
			d.Templates.Evict(tmpl.ID)
			continue
		}

		prog, err := d.compileCached(tmpl)
		if err != nil {
			d.Log.Warn("unsupported template shape", zap.Uint16("template_id", tmpl.ID), zap.Error(err))
			continue
		}

		state.UpsertTemplate(tmpl.ID, tmpl, prog)
	}
}

// withdrawAllTemplates resets an exporter's entire template set and
// evicts every extension map it was holding, the effect of a zero-field
// template record naming the reserved withdraw-all id.
func (d *Dispatcher) withdrawAllTemplates(state *exporter.State) {
	for id := range state.Templates {
		d.Sink.RemoveExtensionMap(id)
		d.Templates.Evict(id)
	}
	state.WithdrawAll()
}

func (d *Dispatcher) handleOptionsTemplateSet(state *exporter.State, body []byte) {
	offset := 0
	for offset < len(body) {
		tmpl, n, err := d.Templates.GetOrParse(body[offset:], template.ParseOptionsTemplateRecord)
		if err != nil {
			d.Log.Warn("truncated options template record", zap.Error(err))
			return
		}
		offset += n

		if tmpl.Withdrawn() {
			delete(state.OptionTemplates, tmpl.ID)
			continue
		}
		state.UpsertOptionTemplate(tmpl.ID, tmpl)
	}
}

func (d *Dispatcher) handleDataSet(state *exporter.State, flowsetID uint16, body []byte, exportTimeMs, receivedAtMs uint64, src netip.Addr) {
	if opt, ok := state.OptionTemplates[flowsetID]; ok {
		d.applyOptionRecords(state, opt, body)
		return
	}

	entry, ok := state.Templates[flowsetID]
	if !ok {
		d.Log.Debug("data set for unknown template", zap.Uint16("template_id", flowsetID))
		return
	}

	var systemInitTimeMs uint64
	if !state.SystemInitTime.IsZero() {
		systemInitTimeMs = uint64(state.SystemInitTime.UnixMilli())
	}

	ctx := sequencer.ExecContext{
		SamplingRate:     state.SamplingRate(),
		ExporterSysID:    state.SysID,
		ExporterAddr:     src,
		ExportTimeMs:     exportTimeMs,
		ReceivedAtMs:     receivedAtMs,
		SystemInitTimeMs: systemInitTimeMs,
	}

	out := make([]byte, entry.Program.RecordSize)

	offset := 0
	for offset < len(body) {
		in, n, err := sequencer.Run(entry.Program, body[offset:], out, ctx)
		if err != nil {
			d.Metrics.DroppedRecords.Inc()
			d.Log.Warn("dropping truncated data record",
				zap.Uint16("template_id", flowsetID), zap.Error(err))
			return
		}
		if in == 0 {
			// The program consumed no input (every template field has
			// length zero), so stop instead of looping on the same bytes.
			break
		}
		if err := d.Sink.EnsureOutputSpace(1); err != nil {
			d.Log.Error("sink backpressure", zap.Error(err))
			return
		}
		if err := d.Sink.WriteRecord(out[:n]); err != nil {
			d.Log.Error("sink write failed", zap.Error(err))
			return
		}
		d.Sink.AdvanceCursor(1)
		d.Metrics.RecordsTotal.Inc()
		d.Metrics.ObserveProtocol(out[record.OffsetProtocol])
		offset += in
	}
}

func (d *Dispatcher) applyOptionRecords(state *exporter.State, opt *exporter.OptionDescriptor, body []byte) {
	// Options data carries scoped metadata (sampler configuration, the
	// exporter's SystemInitTime) rather than flow data; it is interpreted
	// directly against the option template's field order instead of going
	// through the sequencer.
	recLen := 0
	for _, f := range opt.Template.Fields {
		recLen += int(f.Length)
	}
	if recLen == 0 {
		return
	}

	for offset := 0; offset+recLen <= len(body); offset += recLen {
		rec := body[offset : offset+recLen]
		d.applySamplerOptionRecord(state, opt.Template.Fields, rec)
	}
}

func (d *Dispatcher) applySamplerOptionRecord(state *exporter.State, fields []template.Field, rec []byte) {
	var id int64 = -1
	var interval uint64
	var algorithm uint8
	var haveSampler bool
	cursor := 0
	for _, f := range fields {
		length := int(f.Length)
		if cursor+length > len(rec) {
			return
		}
		val := rec[cursor : cursor+length]
		switch f.ElementID {
		case registry.ElementSamplerID, registry.ElementSelectorID:
			id = int64(beUint(val))
			haveSampler = true
		case registry.ElementSamplerRandomInterval, registry.ElementSamplingInterval, registry.ElementSamplingPacketInterval:
			interval = beUint(val)
			haveSampler = true
		case registry.ElementSamplerMode, registry.ElementSamplingAlgorithm, registry.ElementSelectorAlgorithm:
			algorithm = uint8(beUint(val))
		case registry.ElementSystemInitTimeMilliseconds:
			ms := beUint(val)
			state.SystemInitTime = time.UnixMilli(int64(ms)).UTC()
			if err := d.Sink.FlushExporterInfo(sink.ExporterInfo{
				Addr:           state.Key.Addr,
				Domain:         state.Key.Domain,
				SysID:          state.SysID,
				SystemInitTime: state.SystemInitTime,
			}); err != nil {
				d.Log.Warn("flush exporter info failed", zap.Error(err))
			}
		}
		cursor += length
	}
	if haveSampler {
		state.Samplers[id] = &exporter.Sampler{ID: id, Interval: interval, Algorithm: algorithm}
		if err := d.Sink.FlushSamplerInfo(sink.SamplerInfo{
			Addr:      state.Key.Addr,
			Domain:    state.Key.Domain,
			ID:        id,
			Interval:  interval,
			Algorithm: algorithm,
		}); err != nil {
			d.Log.Warn("flush sampler info failed", zap.Error(err))
		}
	}
}

func beUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
