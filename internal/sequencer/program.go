// Package sequencer implements the Sequencer Compiler and Sequencer VM:
// turning a parsed template into an ordered program of copy/zero/skip/time
// opcodes, then executing that program against each data record an
// exporter sends under the template.
package sequencer

import (
	"ipfixcore/internal/registry"
	"ipfixcore/pkg/record"
)

// Step is one compiled instruction that consumes bytes from the incoming
// data record in field-declaration order. DynSkip and the TIME* variants
// have no OutputOffset; they either advance the input cursor only, or
// write into the per-record scratch frame the VM keeps for time
// reconstruction.
type Step struct {
	Op           registry.Opcode
	InputLength  int // declared wire length; template.VariableLength if dynamic
	OutputOffset int
	TimeRole     TimeRole // meaningful only when Op.IsTimeOp()
}

// TimeRole distinguishes which half of a flow's lifetime (or which
// auxiliary value) a TIME* step's field represents. Several elements
// across tiers share the same opcode, so the role carries what the
// opcode alone cannot.
type TimeRole byte

const (
	RoleNone TimeRole = iota
	RoleStart
	RoleEnd
	RoleDuration
	RoleSysInit
)

// ZeroFill is a single fixed write of zero bytes to an output slot that no
// field in the template populates. Unlike Step, it does not consume any
// input and runs once per record regardless of record content.
type ZeroFill struct {
	Op     registry.Opcode
	Offset int
}

// Program is the compiled form of one data template: the fixed sequence
// the VM walks to transcode a data record, plus the record layout it
// targets.
type Program struct {
	TemplateID uint16
	IPv6       bool
	Steps      []Step
	ZeroFills  []ZeroFill
	ExtMap     record.ExtensionMap
	FixedSize  int // bytes before the extension region
	RecordSize int // FixedSize + extension region + 4-byte zero terminator, 4-byte aligned

	TimeBase TimeBase

	// RouterIPOffset and ReceivedOffset locate the two extensions the VM
	// always synthesizes itself, independent of any template field.
	RouterIPOffset int
	ReceivedOffset int
}

// TimeBase names which tier of flow timestamp elements a program reads,
// following the exporter's preference order (spec.md §4.3 step 3).
type TimeBase int

const (
	TimeBaseNone TimeBase = iota
	TimeBaseSeconds
	TimeBaseSysUpTime
	TimeBaseMilliseconds
	TimeBaseDeltaMicroseconds
)
