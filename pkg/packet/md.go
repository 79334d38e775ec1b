package packet

import "encoding/binary"

// MDHeaderSize is the fixed 116-byte MD header of spec.md §3.
const MDHeaderSize = 116

// SessionIDSize is the width of the session identifier that matches a
// reply to the request/notify that started it (spec.md §3 invariant 3).
const SessionIDSize = 16

// URISize is the fixed width of the source/destination URI fields in an
// MD header.
const URISize = 32

// SessionID uniquely identifies one MD session table entry.
type SessionID [SessionIDSize]byte

// MDHeader is the fixed MD header. Field layout (big-endian on the wire
// except FrameCheckSum, little-endian):
//
//	SequenceCounter  uint32     offset 0
//	ProtocolVersion  uint16     offset 4
//	MsgType          [2]byte    offset 6
//	ComId            uint32     offset 8
//	EtbTopoCnt       uint32     offset 12
//	OpTrnTopoCnt     uint32     offset 16
//	DatasetLength    uint32     offset 20
//	ReplyStatus      int16      offset 24
//	UserStatus       int16      offset 26
//	SessionID        [16]byte   offset 28
//	ReplyTimeout     uint32     offset 44
//	SourceURI        [32]byte   offset 48
//	DestinationURI   [32]byte   offset 80
//	FrameCheckSum    uint32     offset 112
//
// This totals exactly 116 bytes, matching IEC 61375-2-3 Annex A's MD frame
// layout; ReplyStatus and UserStatus split the 4-byte status word spec.md
// §3 describes as "a reply status, ... a user-status field".
type MDHeader struct {
	SequenceCounter uint32
	ProtocolVersion uint16
	MsgType         MsgType
	ComId           uint32
	EtbTopoCnt      uint32
	OpTrnTopoCnt    uint32
	DatasetLength   uint32
	ReplyStatus     int16
	UserStatus      int16
	SessionID       SessionID
	ReplyTimeout    uint32
	SourceURI       [URISize]byte
	DestinationURI  [URISize]byte
	FrameCheckSum   uint32
}

// EncodeMDHeader writes h into dst (at least MDHeaderSize bytes),
// recomputing and storing the header CRC. Returns bytes written.
func EncodeMDHeader(dst []byte, h *MDHeader) int {
	_ = dst[:MDHeaderSize]
	binary.BigEndian.PutUint32(dst[0:4], h.SequenceCounter)
	binary.BigEndian.PutUint16(dst[4:6], h.ProtocolVersion)
	dst[6], dst[7] = h.MsgType[0], h.MsgType[1]
	binary.BigEndian.PutUint32(dst[8:12], h.ComId)
	binary.BigEndian.PutUint32(dst[12:16], h.EtbTopoCnt)
	binary.BigEndian.PutUint32(dst[16:20], h.OpTrnTopoCnt)
	binary.BigEndian.PutUint32(dst[20:24], h.DatasetLength)
	binary.BigEndian.PutUint16(dst[24:26], uint16(h.ReplyStatus))
	binary.BigEndian.PutUint16(dst[26:28], uint16(h.UserStatus))
	copy(dst[28:44], h.SessionID[:])
	binary.BigEndian.PutUint32(dst[44:48], h.ReplyTimeout)
	copy(dst[48:80], h.SourceURI[:])
	copy(dst[80:112], h.DestinationURI[:])
	crc := headerCRC(dst[:MDHeaderSize])
	h.FrameCheckSum = crc
	putCRC(dst[:MDHeaderSize], crc)
	return MDHeaderSize
}

// DecodeMDValidate decodes and validates buf as an MD packet, following
// the same ordered checks as DecodePDValidate (spec.md §4.1).
func DecodeMDValidate(buf []byte, filter Topo, checkDataToo bool) (*MDHeader, []byte, error) {
	if len(buf) < MDHeaderSize || len(buf) > MaxMDPacketSize {
		return nil, nil, errSize
	}
	want := headerCRC(buf[:MDHeaderSize])
	got := getCRC(buf[:MDHeaderSize])
	if want != got {
		return nil, nil, errCRC
	}
	h := &MDHeader{
		SequenceCounter: binary.BigEndian.Uint32(buf[0:4]),
		ProtocolVersion: binary.BigEndian.Uint16(buf[4:6]),
		MsgType:         MsgType{buf[6], buf[7]},
		ComId:           binary.BigEndian.Uint32(buf[8:12]),
		EtbTopoCnt:      binary.BigEndian.Uint32(buf[12:16]),
		OpTrnTopoCnt:    binary.BigEndian.Uint32(buf[16:20]),
		DatasetLength:   binary.BigEndian.Uint32(buf[20:24]),
		ReplyStatus:     int16(binary.BigEndian.Uint16(buf[24:26])),
		UserStatus:      int16(binary.BigEndian.Uint16(buf[26:28])),
		ReplyTimeout:    binary.BigEndian.Uint32(buf[44:48]),
		FrameCheckSum:   got,
	}
	copy(h.SessionID[:], buf[28:44])
	copy(h.SourceURI[:], buf[48:80])
	copy(h.DestinationURI[:], buf[80:112])

	if h.ProtocolVersion>>8 != ProtocolVersion>>8 {
		return nil, nil, errVersion
	}
	if !h.MsgType.valid() {
		return nil, nil, errWire
	}
	if checkDataToo && uint32(len(buf)) < uint32(MDHeaderSize)+h.DatasetLength {
		return nil, nil, errSize
	}
	if !filter.Matches(Topo{EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt}) {
		return nil, nil, errTopo
	}
	return h, buf[MDHeaderSize:], nil
}

// UpdateMDPacket recomputes the header CRC of an already-encoded MD
// packet in place, e.g. before a retransmit with a bumped sequence
// counter (spec.md §4.4 retry semantics).
func UpdateMDPacket(buf []byte, seq uint32) {
	binary.BigEndian.PutUint32(buf[0:4], seq)
	crc := headerCRC(buf[:MDHeaderSize])
	putCRC(buf[:MDHeaderSize], crc)
}

// URIString trims trailing NULs from a fixed URI field for display.
func URIString(b [URISize]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// PutURI copies s (truncated to URISize) into a fixed URI field.
func PutURI(s string) [URISize]byte {
	var out [URISize]byte
	copy(out[:], s)
	return out
}
