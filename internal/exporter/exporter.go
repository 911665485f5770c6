// Package exporter tracks the per-exporter state an IPFIX collector must
// keep between packets: announced templates and their compiled programs,
// option-scoped samplers, and the sequence-number stream used to detect
// loss and reordering.
package exporter

import (
	"net/netip"
	"time"

	"ipfixcore/internal/sequencer"
	"ipfixcore/internal/template"
)

// Key identifies one exporter: the (source transport address, Observation
// Domain ID) pair spec.md uses to scope every other piece of state.
// Two different Observation Domains from the same source address are
// different exporters; the same Domain ID from two source addresses are
// also different exporters.
type Key struct {
	Addr   netip.Addr
	Domain uint32
}

// TemplateEntry pairs one exporter's announced template with its compiled
// transcoding program and the extension map id the Sink assigned it.
type TemplateEntry struct {
	Template  *template.Template
	Program   *sequencer.Program
	UpdatedAt time.Time
}

// Sampler is the decoded content of one (sub)sampler an Options Template
// data record announced: a sampling interval keyed either by a sampler id
// or, for the single legacy "standard sampler" convention, by id -1.
type Sampler struct {
	ID       int64 // -1 for the standard/default sampler
	Interval uint64
	Algorithm uint8
}

// OptionDescriptor records an Options Template's shape: which scope
// fields and which option fields it declares, so the dispatcher knows how
// to interpret the option data records an exporter later sends under it.
type OptionDescriptor struct {
	Template  *template.Template
	UpdatedAt time.Time
}

// State is everything a collector remembers about one exporter. All
// mutation happens from the single worker goroutine that owns this
// exporter's shard; State itself holds no lock.
type State struct {
	Key Key

	SysID uint16 // small, stable per-exporter id assigned at first sight

	Templates       map[uint16]*TemplateEntry
	OptionTemplates map[uint16]*OptionDescriptor
	Samplers        map[int64]*Sampler

	// OverwriteSamplingRate, when non-zero, takes precedence over any
	// announced sampler (spec.md §4.5 sampling-rate selection).
	OverwriteSamplingRate uint64
	DefaultSamplingRate   uint64

	LastSequence    uint32
	HaveSequence    bool
	SystemInitTime  time.Time
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}

// NewState returns a freshly initialized, empty exporter State for key,
// tagged with the collector-assigned sysID used in output records.
func NewState(key Key, sysID uint16) *State {
	now := time.Now()
	return &State{
		Key:                 key,
		SysID:               sysID,
		Templates:           make(map[uint16]*TemplateEntry),
		OptionTemplates:     make(map[uint16]*OptionDescriptor),
		Samplers:            make(map[int64]*Sampler),
		DefaultSamplingRate: 1,
		FirstSeenAt:         now,
		LastSeenAt:          now,
	}
}

// UpsertTemplate installs or replaces the compiled program for a data
// template, returning whether this changes an existing declaration (as
// opposed to a first-time announcement).
func (s *State) UpsertTemplate(id uint16, tmpl *template.Template, prog *sequencer.Program) bool {
	_, existed := s.Templates[id]
	s.Templates[id] = &TemplateEntry{Template: tmpl, Program: prog, UpdatedAt: time.Now()}
	return existed
}

// WithdrawTemplate removes one data template, the effect of an exporter
// sending a zero-field template record for id.
func (s *State) WithdrawTemplate(id uint16) {
	delete(s.Templates, id)
}

// WithdrawAll drops every remembered template and option descriptor, the
// effect of a zero-field template record naming the reserved id 2 (the
// "withdraw all templates" convention some exporters use on restart).
func (s *State) WithdrawAll() {
	s.Templates = make(map[uint16]*TemplateEntry)
	s.OptionTemplates = make(map[uint16]*OptionDescriptor)
}

// UpsertOptionTemplate installs or replaces an Options Template
// descriptor.
func (s *State) UpsertOptionTemplate(id uint16, tmpl *template.Template) {
	s.OptionTemplates[id] = &OptionDescriptor{Template: tmpl, UpdatedAt: time.Now()}
}

// CheckSequence compares an incoming packet's sequence number against the
// last one observed, reporting whether a gap (lost packets) or a
// regression (reordering/resync) occurred. The caller decides policy;
// CheckSequence only classifies and advances the tracked value.
func (s *State) CheckSequence(seq uint32) (gap uint32, reordered bool) {
	defer func() { s.LastSequence = seq; s.HaveSequence = true }()
	if !s.HaveSequence {
		return 0, false
	}
	if seq == s.LastSequence+1 {
		return 0, false
	}
	if seq <= s.LastSequence {
		return 0, true
	}
	return seq - s.LastSequence - 1, false
}

// SamplingRate resolves the active sampling rate for a data record under
// this exporter, following the precedence order spec.md §4.5 fixes:
// operator overwrite, then the standard sampler (id -1), then the
// exporter-wide default, then 1 (no scaling).
func (s *State) SamplingRate() uint64 {
	if s.OverwriteSamplingRate > 0 {
		return s.OverwriteSamplingRate
	}
	if std, ok := s.Samplers[-1]; ok && std.Interval > 0 {
		return std.Interval
	}
	if s.DefaultSamplingRate > 0 {
		return s.DefaultSamplingRate
	}
	return 1
}

// Touch records that a packet from this exporter was just processed.
func (s *State) Touch() {
	s.LastSeenAt = time.Now()
}
