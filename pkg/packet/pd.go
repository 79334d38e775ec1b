package packet

import "encoding/binary"

// PDHeaderSize is the fixed 40-byte PD header of spec.md §3.
const PDHeaderSize = 40

// PDHeader is the fixed PD header. Field layout (all big-endian on the
// wire except FrameCheckSum, which is little-endian, per spec.md §3/§6):
//
//	SequenceCounter  uint32  offset 0
//	ProtocolVersion  uint16  offset 4
//	MsgType          [2]byte offset 6
//	ComId            uint32  offset 8
//	EtbTopoCnt       uint32  offset 12
//	OpTrnTopoCnt     uint32  offset 16
//	DatasetLength    uint32  offset 20
//	Reserved         uint32  offset 24
//	ReplyComId       uint32  offset 28
//	ReplyIpAddress   uint32  offset 32
//	FrameCheckSum    uint32  offset 36
//
// The destination/source URI labels named in spec.md §3 are resolved to
// SrcIp/DstIp addresses before a PDHeader is ever built (the DNR client,
// C7, performs that resolution); they are not carried on the wire as part
// of the 40-byte PD header, keeping its size exactly as specified and
// matching IEC 61375-2-3 Annex A's actual PD frame layout.
type PDHeader struct {
	SequenceCounter uint32
	ProtocolVersion uint16
	MsgType         MsgType
	ComId           uint32
	EtbTopoCnt      uint32
	OpTrnTopoCnt    uint32
	DatasetLength   uint32
	Reserved        uint32
	ReplyComId      uint32
	ReplyIpAddress  uint32
	FrameCheckSum   uint32
}

// EncodePDHeader writes h into dst, which must be at least PDHeaderSize
// bytes, and recomputes and stores the header CRC. Returns the number of
// bytes written.
func EncodePDHeader(dst []byte, h *PDHeader) int {
	_ = dst[:PDHeaderSize]
	binary.BigEndian.PutUint32(dst[0:4], h.SequenceCounter)
	binary.BigEndian.PutUint16(dst[4:6], h.ProtocolVersion)
	dst[6], dst[7] = h.MsgType[0], h.MsgType[1]
	binary.BigEndian.PutUint32(dst[8:12], h.ComId)
	binary.BigEndian.PutUint32(dst[12:16], h.EtbTopoCnt)
	binary.BigEndian.PutUint32(dst[16:20], h.OpTrnTopoCnt)
	binary.BigEndian.PutUint32(dst[20:24], h.DatasetLength)
	binary.BigEndian.PutUint32(dst[24:28], h.Reserved)
	binary.BigEndian.PutUint32(dst[28:32], h.ReplyComId)
	binary.BigEndian.PutUint32(dst[32:36], h.ReplyIpAddress)
	crc := headerCRC(dst[:PDHeaderSize])
	h.FrameCheckSum = crc
	putCRC(dst[:PDHeaderSize], crc)
	return PDHeaderSize
}

// DecodePDValidate decodes and validates buf as a PD packet per the
// ordered checks of spec.md §4.1. filter, if non-zero in either field, is
// matched against the packet's topology counters. checkDataToo enables
// step 5 (size >= header+datasetLength).
func DecodePDValidate(buf []byte, filter Topo, checkDataToo bool) (*PDHeader, []byte, error) {
	if len(buf) < PDHeaderSize || len(buf) > MaxPDPacketSize {
		return nil, nil, errSize
	}
	want := headerCRC(buf[:PDHeaderSize])
	got := getCRC(buf[:PDHeaderSize])
	if want != got {
		return nil, nil, errCRC
	}
	h := &PDHeader{
		SequenceCounter: binary.BigEndian.Uint32(buf[0:4]),
		ProtocolVersion: binary.BigEndian.Uint16(buf[4:6]),
		MsgType:         MsgType{buf[6], buf[7]},
		ComId:           binary.BigEndian.Uint32(buf[8:12]),
		EtbTopoCnt:      binary.BigEndian.Uint32(buf[12:16]),
		OpTrnTopoCnt:    binary.BigEndian.Uint32(buf[16:20]),
		DatasetLength:   binary.BigEndian.Uint32(buf[20:24]),
		Reserved:        binary.BigEndian.Uint32(buf[24:28]),
		ReplyComId:      binary.BigEndian.Uint32(buf[28:32]),
		ReplyIpAddress:  binary.BigEndian.Uint32(buf[32:36]),
		FrameCheckSum:   got,
	}
	if h.ProtocolVersion>>8 != ProtocolVersion>>8 {
		return nil, nil, errVersion
	}
	if !h.MsgType.valid() {
		return nil, nil, errWire
	}
	if checkDataToo && uint32(len(buf)) < uint32(PDHeaderSize)+h.DatasetLength {
		return nil, nil, errSize
	}
	if !filter.Matches(Topo{EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt}) {
		return nil, nil, errTopo
	}
	return h, buf[PDHeaderSize:], nil
}

// UpdatePDPacket recomputes the header CRC of an already-encoded PD
// packet in place. Called before every send since the sequence counter
// (and possibly the payload) may have changed since the packet was last
// transmitted (spec.md §4.1 "update_packet").
func UpdatePDPacket(buf []byte, seq uint32) {
	binary.BigEndian.PutUint32(buf[0:4], seq)
	crc := headerCRC(buf[:PDHeaderSize])
	putCRC(buf[:PDHeaderSize], crc)
}
