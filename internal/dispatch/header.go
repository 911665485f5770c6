package dispatch

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize        = 16
	flowsetHeaderSize = 4

	flowsetTemplate        = 2
	flowsetOptionsTemplate = 3
	minDataFlowsetID       = 256
)

// Header is an IPFIX Message Header, RFC 7011 §3.1.
type Header struct {
	Version        uint16
	Length         uint16
	ExportTimeSec  uint32
	SequenceNumber uint32
	ObservationID  uint32
}

// ParseHeader decodes the fixed 16-byte IPFIX header from the start of
// data. It rejects a header whose Length differs from len(data), the size
// of the datagram actually received.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", ErrMalformedHeader, len(data), headerSize)
	}
	h := Header{
		Version:        binary.BigEndian.Uint16(data[0:2]),
		Length:         binary.BigEndian.Uint16(data[2:4]),
		ExportTimeSec:  binary.BigEndian.Uint32(data[4:8]),
		SequenceNumber: binary.BigEndian.Uint32(data[8:12]),
		ObservationID:  binary.BigEndian.Uint32(data[12:16]),
	}
	if h.Version != 10 {
		return Header{}, fmt.Errorf("%w: version %d is not IPFIX", ErrMalformedHeader, h.Version)
	}
	if int(h.Length) != len(data) {
		return Header{}, fmt.Errorf("%w: header length %d does not match datagram size %d", ErrMalformedHeader, h.Length, len(data))
	}
	return h, nil
}

// flowsetHeader is the common (id, length) prefix every Template Set,
// Options Template Set, and Data Set shares.
type flowsetHeader struct {
	ID     uint16
	Length uint16
}

func parseFlowsetHeader(data []byte) (flowsetHeader, error) {
	if len(data) < flowsetHeaderSize {
		return flowsetHeader{}, fmt.Errorf("%w: flowset header truncated", ErrMalformedFlowset)
	}
	fh := flowsetHeader{
		ID:     binary.BigEndian.Uint16(data[0:2]),
		Length: binary.BigEndian.Uint16(data[2:4]),
	}
	if int(fh.Length) < flowsetHeaderSize || int(fh.Length) > len(data) {
		return flowsetHeader{}, fmt.Errorf("%w: flowset %d declares length %d in %d remaining bytes", ErrMalformedFlowset, fh.ID, fh.Length, len(data))
	}
	return fh, nil
}
