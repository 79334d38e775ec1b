package packet

import "errors"

// MaxPDPacketSize bounds a PD packet (header + padded payload). TRDP caps
// PD datagrams at typical-MTU size to avoid IP fragmentation in the field.
const MaxPDPacketSize = 1500

// MaxMDDatasetSize is the largest MD payload, per spec.md §3.
const MaxMDDatasetSize = 65388

// MaxMDPacketSize is MDHeaderSize + MaxMDDatasetSize.
const MaxMDPacketSize = MDHeaderSize + MaxMDDatasetSize

var (
	errSize    = errors.New("SIZE_ERR: packet size out of bounds")
	errCRC     = errors.New("CRC_ERR: header CRC does not match")
	errVersion = errors.New("VERSION_ERR: protocol version mismatch")
	errWire    = errors.New("WIRE_ERR: malformed wire packet")
	errTopo    = errors.New("TOPO_ERR: topology counters do not match filter")
)

// ErrSize, ErrCRC, ErrVersion, ErrWire and ErrTopo are the sentinel errors
// returned by DecodePDValidate/DecodeMDValidate, one per named validation
// failure in spec.md §4.1. Callers receive them as plain errors; nothing
// in this module maps them to a trdp.Kind or counts them in a slot's
// statistics.
var (
	ErrSize    = errSize
	ErrCRC     = errCRC
	ErrVersion = errVersion
	ErrWire    = errWire
	ErrTopo    = errTopo
)
