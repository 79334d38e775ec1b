package session

import (
	"net"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// SetTopo updates the topology counters used as the receive filter for
// every subsequent decode (spec.md §3's etbTopoCnt/opTrnTopoCnt pair).
func (s *Session) SetTopo(topo trdp.Topo) {
	s.topoMu.Lock()
	s.topo = topo
	s.topoMu.Unlock()
}

func (s *Session) currentTopo() trdp.Topo {
	s.topoMu.Lock()
	defer s.topoMu.Unlock()
	return s.topo
}

// dispatch routes one received frame to the PD or MD pipeline based on
// its slot type, performing codec validation first (spec.md §4.3's
// "codec validation; topography-counter filter" ordering).
func (s *Session) dispatch(now time.Time, frame rxFrame) {
	switch frame.slot.Type {
	case trdp.SlotPDUDP, trdp.SlotPDTSN:
		s.dispatchPD(now, frame)
	case trdp.SlotMDUDP, trdp.SlotMDTCP:
		s.dispatchMD(now, frame)
	}
}

func (s *Session) dispatchPD(now time.Time, frame rxFrame) {
	h, payload, err := packet.DecodePDValidate(frame.data, s.currentTopo(), true)
	if err != nil {
		s.logger.Debug("pd decode failed", "err", err)
		return
	}

	s.pdMu.Lock()
	subs := s.queues.MatchSubscribers(h.ComId)
	s.pdMu.Unlock()

	for _, sub := range subs {
		sub.OnReceive(now, frame.srcIp, h.MsgType, h.SequenceCounter, payload)
	}
}

func (s *Session) dispatchMD(now time.Time, frame rxFrame) {
	h, payload, err := packet.DecodeMDValidate(frame.data, s.currentTopo(), true)
	if err != nil {
		s.logger.Debug("md decode failed", "err", err)
		return
	}

	s.mdMu.Lock()
	replyFrame := s.mdTable.OnReceive(now, h, frame.srcIp, frame.tcp, frame.multicast, payload)
	if sess, ok := s.mdTable.Get(h.SessionID); ok {
		if sess.Dest == nil && frame.srcAddr != nil {
			sess.Dest = frame.srcAddr
			sess.Slot = frame.slot
		}
		if frame.tcp && sess.TCPConn == nil {
			sess.TCPConn = frame.tcpConn
			sess.Slot = frame.slot
		}
	}
	s.mdMu.Unlock()

	if replyFrame != nil {
		s.sendMD(frame.slot, frame.srcAddr, frame.tcpConn, replyFrame)
	}
}

// sendTo writes data on slot's connection, routing unicast UDP sends to
// dest (every PD/MD slot opened by this module is an unconnected
// ListenUDP socket, so a bare Write has no destination otherwise).
func (s *Session) sendTo(slot *trdp.Slot, dest *net.UDPAddr, data []byte) {
	if slot == nil {
		return
	}
	if conn := slot.Conn(); conn != nil {
		if dest != nil {
			_, _ = conn.WriteToUDP(data, dest)
		} else {
			_, _ = conn.Write(data)
		}
		return
	}
	if conn := slot.TCPConn(); conn != nil {
		_, _ = conn.Write(data)
	}
}

// sendMD writes an MD frame on the peer's own accepted connection when
// one is known (an MD-TCP listener slot's socket is the shared accept
// listener, not any one peer's stream, so replies to a peer accepted off
// it must bypass the slot entirely), falling back to the regular
// slot/dest send path otherwise.
func (s *Session) sendMD(slot *trdp.Slot, dest *net.UDPAddr, tcpConn net.Conn, data []byte) {
	if tcpConn != nil {
		_, _ = tcpConn.Write(data)
		return
	}
	s.sendTo(slot, dest, data)
}
