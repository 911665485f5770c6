// Package template implements the Template Parse Cache: decoding wire
// Template Set and Options Template Set records into an ordered field
// list, independent of any particular exporter's prior state.
package template

import (
	"encoding/binary"
	"fmt"
)

// VariableLength is the RFC 7011 sentinel field length (0xFFFF) marking a
// field as variable-length on the wire.
const VariableLength = 0xFFFF

// enterpriseBit is set on a field's type octet when a 4-byte enterprise
// number follows the type/length pair.
const enterpriseBit = 0x8000

// Field is one (element id, enterprise number, declared length) triple as
// announced by a template, in declaration order.
type Field struct {
	ElementID        uint16
	EnterpriseNumber uint32 // 0 for IANA-registered elements
	Length           uint16
}

// Template is a fully decoded Template Set or Options Template Set record.
type Template struct {
	ID     uint16
	Fields []Field

	// ScopeCount is non-zero for an Options Template: the first
	// ScopeCount entries of Fields are scope fields, the rest are the
	// option's data fields, per RFC 7011 §3.4.2.2.
	ScopeCount int
}

// IsOption reports whether t was decoded from an Options Template Set.
func (t *Template) IsOption() bool {
	return t.ScopeCount > 0
}

// FieldCount returns the number of declared fields, scope and data
// combined.
func (t *Template) FieldCount() int {
	return len(t.Fields)
}

// Withdrawn reports whether the template record declares zero fields,
// the wire convention an exporter uses to revoke a previously announced
// template id (spec.md's withdraw_template operation).
func (t *Template) Withdrawn() bool {
	return len(t.Fields) == 0
}

// ParseTemplateRecord decodes one Template Set (flowset id 2) record
// starting at data[0]. It returns the parsed template and the number of
// bytes consumed, or an error if data is truncated mid-field.
func ParseTemplateRecord(data []byte) (*Template, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("template record header truncated: %d bytes", len(data))
	}
	id := binary.BigEndian.Uint16(data[0:2])
	fieldCount := binary.BigEndian.Uint16(data[2:4])
	offset := 4

	if fieldCount == 0 {
		// Withdrawal: no field specifiers follow.
		return &Template{ID: id}, offset, nil
	}

	fields, consumed, err := parseFieldSpecifiers(data[offset:], int(fieldCount))
	if err != nil {
		return nil, 0, fmt.Errorf("template %d: %w", id, err)
	}
	return &Template{ID: id, Fields: fields}, offset + consumed, nil
}

// ParseOptionsTemplateRecord decodes one Options Template Set (flowset id
// 3) record starting at data[0].
func ParseOptionsTemplateRecord(data []byte) (*Template, int, error) {
	if len(data) < 6 {
		return nil, 0, fmt.Errorf("options template record header truncated: %d bytes", len(data))
	}
	id := binary.BigEndian.Uint16(data[0:2])
	fieldCount := binary.BigEndian.Uint16(data[2:4])
	scopeCount := binary.BigEndian.Uint16(data[4:6])
	offset := 6

	if fieldCount == 0 {
		return &Template{ID: id}, offset, nil
	}
	if scopeCount == 0 || scopeCount > fieldCount {
		return nil, 0, fmt.Errorf("options template %d: invalid scope count %d of %d fields", id, scopeCount, fieldCount)
	}

	fields, consumed, err := parseFieldSpecifiers(data[offset:], int(fieldCount))
	if err != nil {
		return nil, 0, fmt.Errorf("options template %d: %w", id, err)
	}
	return &Template{ID: id, Fields: fields, ScopeCount: int(scopeCount)}, offset + consumed, nil
}

func parseFieldSpecifiers(data []byte, count int) ([]Field, int, error) {
	fields := make([]Field, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		if offset+4 > len(data) {
			return nil, 0, fmt.Errorf("field specifier %d truncated", i)
		}
		rawType := binary.BigEndian.Uint16(data[offset : offset+2])
		length := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4

		field := Field{ElementID: rawType &^ enterpriseBit, Length: length}
		if rawType&enterpriseBit != 0 {
			if offset+4 > len(data) {
				return nil, 0, fmt.Errorf("field specifier %d: enterprise number truncated", i)
			}
			field.EnterpriseNumber = binary.BigEndian.Uint32(data[offset : offset+4])
			offset += 4
		}
		fields = append(fields, field)
	}
	return fields, offset, nil
}
