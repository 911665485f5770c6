// Package sink defines the downstream boundary a collected, transcoded
// Common Record crosses on its way out of the collector core, along with
// the two concrete sinks the rest of the repo wires up: an in-memory sink
// for tests and a Postgres/TimescaleDB sink for production ingestion.
package sink

import (
	"net/netip"
	"time"

	"ipfixcore/pkg/record"
)

// ExporterInfo is the identity snapshot a Sink records whenever the
// dispatcher recognizes a previously-unseen exporter or learns its
// option-announced SystemInitTime.
type ExporterInfo struct {
	Addr           netip.Addr
	Domain         uint32
	SysID          uint16
	SystemInitTime time.Time
}

// SamplerInfo is one sampler descriptor a Sink records whenever an
// exporter's Options Template data announces or changes a sampler.
type SamplerInfo struct {
	Addr      netip.Addr
	Domain    uint32
	ID        int64
	Interval  uint64
	Algorithm uint8
}

// Sink is the opaque downstream boundary spec.md §6 describes: the
// collector core never depends on what a record becomes after this call
// returns.
type Sink interface {
	// RegisterExtensionMap assigns a stable id to an extension map,
	// reusing the id of any other template's equal map (same tags, same
	// order) if one is already registered. changed reports whether this
	// call allocated a brand new id rather than reusing one — true only
	// the first time a given tag sequence is ever seen.
	RegisterExtensionMap(templateID uint16, m record.ExtensionMap) (id uint16, changed bool)

	// RemoveExtensionMap releases templateID's hold on its registered
	// extension map. The underlying map id is only retired once no other
	// template still references it, since RegisterExtensionMap dedups
	// identical maps across templates.
	RemoveExtensionMap(templateID uint16)

	// WriteRecord delivers one transcoded Common Record. The byte slice
	// is only valid for the duration of the call; implementations that
	// need to retain it must copy it.
	WriteRecord(rec []byte) error

	// Flush requests any buffered records be made durable/visible. Sinks
	// that do not buffer may treat this as a no-op.
	Flush() error

	// FlushExporterInfo records or updates one exporter's identity, the
	// downstream analogue of nfdump's exporter stat file.
	FlushExporterInfo(info ExporterInfo) error

	// FlushSamplerInfo records or updates one exporter's sampler
	// descriptor, mirroring FlushExporterInfo for sampler metadata.
	FlushSamplerInfo(info SamplerInfo) error

	// EnsureOutputSpace guarantees the sink can absorb n more queued
	// records without an unbounded buffer grow, flushing eagerly if
	// needed. Sinks that don't buffer treat this as a no-op.
	EnsureOutputSpace(n int) error

	// CurrentOutputCursor reports how many records are currently queued
	// since the last AdvanceCursor/Flush, letting a caller watch buffer
	// depth without reaching into sink-private state.
	CurrentOutputCursor() int

	// AdvanceCursor marks n queued records as accounted for. Memory lowers
	// the value CurrentOutputCursor reports by n; Postgres ignores it, and
	// its count falls when the buffer is flushed.
	AdvanceCursor(n int)
}
