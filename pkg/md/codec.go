package md

import (
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

func buildFrame(msgType packet.MsgType, addr trdp.Addr, topo trdp.Topo, id packet.SessionID, seq uint32, replyStatus int16, replyTimeout time.Duration, payload []byte) []byte {
	buf := make([]byte, packet.MDHeaderSize+packet.Pad4(len(payload)))
	h := &packet.MDHeader{
		SequenceCounter: seq,
		ProtocolVersion: packet.ProtocolVersion,
		MsgType:         msgType,
		ComId:           addr.ComId,
		EtbTopoCnt:      topo.EtbTopoCnt,
		OpTrnTopoCnt:    topo.OpTrnTopoCnt,
		DatasetLength:   uint32(len(payload)),
		ReplyStatus:     replyStatus,
		SessionID:       id,
		ReplyTimeout:    uint32(replyTimeout / time.Microsecond),
	}
	packet.EncodeMDHeader(buf, h)
	copy(buf[packet.MDHeaderSize:], payload)
	return buf
}

func buildHeader(msgType packet.MsgType, addr trdp.Addr, topo trdp.Topo, id packet.SessionID, seq uint32, replyStatus int16, payload []byte) []byte {
	return buildFrame(msgType, addr, topo, id, seq, replyStatus, 0, payload)
}

func buildMDRequest(addr trdp.Addr, topo trdp.Topo, id packet.SessionID, seq uint32, replyTimeout time.Duration, payload []byte) []byte {
	return buildFrame(packet.MsgMr, addr, topo, id, seq, 0, replyTimeout, payload)
}

// BuildMeReply constructs the unicast error reply of spec.md §4.4 ("Me
// message"): sent when a replier receives Mr but no listener matches.
func BuildMeReply(addr trdp.Addr, topo trdp.Topo, id packet.SessionID, seq uint32, status ReplyStatus) []byte {
	return buildHeader(packet.MsgMe, addr, topo, id, seq, int16(status), nil)
}
