// Package packet implements the TRDP wire codec (spec.md C1): encoding,
// decoding and validating the PD and MD header formats of §3, including the
// little-endian header CRC32 required by §3/§6.
//
// All functions operate on borrowed byte slices rather than allocating
// intermediate owning buffers (spec.md §9 "zero-copy codec").
package packet

import (
	"encoding/binary"
	"hash/crc32"
)

// ProtocolVersion is the version this implementation speaks. Only the top
// byte (the major version) is checked on decode, per spec.md §4.1 step 3.
const ProtocolVersion uint16 = 0x0100

// MsgType is one of the ten valid 16-bit ASCII message type tags
// (spec.md §4.1 step 4).
type MsgType [2]byte

func (m MsgType) String() string { return string(m[:]) }

var (
	MsgPd = MsgType{'P', 'd'} // process data
	MsgPp = MsgType{'P', 'p'} // PD reply (pull)
	MsgPr = MsgType{'P', 'r'} // PD request (pull)
	MsgPe = MsgType{'P', 'e'} // PD error
	MsgMn = MsgType{'M', 'n'} // MD notify
	MsgMr = MsgType{'M', 'r'} // MD request
	MsgMp = MsgType{'M', 'p'} // MD reply
	MsgMq = MsgType{'M', 'q'} // MD reply with query (confirm required)
	MsgMc = MsgType{'M', 'c'} // MD confirm
	MsgMe = MsgType{'M', 'e'} // MD error
)

func (m MsgType) valid() bool {
	switch m {
	case MsgPd, MsgPp, MsgPr, MsgPe, MsgMn, MsgMr, MsgMp, MsgMq, MsgMc, MsgMe:
		return true
	default:
		return false
	}
}

// headerCRC computes the IEEE-802.3 CRC32 over header[:len(header)-4] (the
// header minus its own trailing FCS field) and returns it, ready to be
// stored little-endian on the wire regardless of host byte order
// (spec.md §3, §6).
func headerCRC(header []byte) uint32 {
	return crc32.ChecksumIEEE(header[:len(header)-4])
}

func putCRC(header []byte, crc uint32) {
	binary.LittleEndian.PutUint32(header[len(header)-4:], crc)
}

func getCRC(header []byte) uint32 {
	return binary.LittleEndian.Uint32(header[len(header)-4:])
}

// pad4 rounds size up to the next multiple of 4, the PD payload padding
// rule of spec.md §3.
func pad4(size int) int {
	return (size + 3) &^ 3
}

// Pad4 is the exported form of pad4, used by PD queues (C3) to size
// publisher packet buffers.
func Pad4(size int) int { return pad4(size) }
