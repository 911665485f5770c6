package template

import (
	"encoding/binary"
	"testing"
)

func fieldSpecifier(elementID, length uint16) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], elementID)
	binary.BigEndian.PutUint16(b[2:4], length)
	return b
}

func enterpriseFieldSpecifier(elementID, length uint16, enterprise uint32) []byte {
	b := fieldSpecifier(elementID|enterpriseBit, length)
	e := make([]byte, 4)
	binary.BigEndian.PutUint32(e, enterprise)
	return append(b, e...)
}

func TestParseTemplateRecordBasic(t *testing.T) {
	var data []byte
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], 256) // template ID
	binary.BigEndian.PutUint16(header[2:4], 2)   // field count
	data = append(data, header...)
	data = append(data, fieldSpecifier(8, 4)...)  // sourceIPv4Address
	data = append(data, fieldSpecifier(12, 4)...) // destinationIPv4Address

	tmpl, n, err := ParseTemplateRecord(data)
	if err != nil {
		t.Fatalf("ParseTemplateRecord: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	if tmpl.ID != 256 || tmpl.FieldCount() != 2 {
		t.Fatalf("got id=%d fields=%d, want id=256 fields=2", tmpl.ID, tmpl.FieldCount())
	}
	if tmpl.Fields[0].ElementID != 8 || tmpl.Fields[1].ElementID != 12 {
		t.Errorf("unexpected field order: %+v", tmpl.Fields)
	}
	if tmpl.IsOption() {
		t.Errorf("a Template Set record must not report as an options template")
	}
}

func TestParseTemplateRecordWithEnterpriseField(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], 300)
	binary.BigEndian.PutUint16(header[2:4], 1)
	data := append(header, enterpriseFieldSpecifier(1, 8, 29305)...)

	tmpl, n, err := ParseTemplateRecord(data)
	if err != nil {
		t.Fatalf("ParseTemplateRecord: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	f := tmpl.Fields[0]
	if f.ElementID != 1 || f.EnterpriseNumber != 29305 {
		t.Errorf("got %+v, want elementID=1 enterprise=29305", f)
	}
}

func TestParseTemplateRecordWithdrawal(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], 500)
	binary.BigEndian.PutUint16(header[2:4], 0)

	tmpl, n, err := ParseTemplateRecord(header)
	if err != nil {
		t.Fatalf("ParseTemplateRecord: %v", err)
	}
	if n != 4 {
		t.Errorf("consumed %d bytes, want 4", n)
	}
	if !tmpl.Withdrawn() {
		t.Errorf("a zero-field template record must report as withdrawn")
	}
}

func TestParseTemplateRecordTruncated(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], 256)
	binary.BigEndian.PutUint16(header[2:4], 3)
	data := append(header, fieldSpecifier(8, 4)...) // only 1 of 3 declared fields

	if _, _, err := ParseTemplateRecord(data); err == nil {
		t.Fatalf("expected an error for a field count exceeding the data present")
	}
}

func TestParseOptionsTemplateRecord(t *testing.T) {
	header := make([]byte, 6)
	binary.BigEndian.PutUint16(header[0:2], 400)
	binary.BigEndian.PutUint16(header[2:4], 2) // total fields
	binary.BigEndian.PutUint16(header[4:6], 1) // scope fields
	data := append(header, fieldSpecifier(148, 4)...)
	data = append(data, fieldSpecifier(48, 4)...)

	tmpl, n, err := ParseOptionsTemplateRecord(data)
	if err != nil {
		t.Fatalf("ParseOptionsTemplateRecord: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	if !tmpl.IsOption() {
		t.Errorf("expected IsOption() to be true")
	}
	if tmpl.ScopeCount != 1 {
		t.Errorf("got scope count %d, want 1", tmpl.ScopeCount)
	}
}

func TestParseOptionsTemplateRecordInvalidScopeCount(t *testing.T) {
	header := make([]byte, 6)
	binary.BigEndian.PutUint16(header[0:2], 401)
	binary.BigEndian.PutUint16(header[2:4], 1)
	binary.BigEndian.PutUint16(header[4:6], 5) // exceeds field count
	data := append(header, fieldSpecifier(48, 4)...)

	if _, _, err := ParseOptionsTemplateRecord(data); err == nil {
		t.Fatalf("expected an error for scope count exceeding field count")
	}
}
