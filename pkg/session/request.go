package session

import (
	"net"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/md"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// mdSlot claims (or reuses) the session's outgoing MD-UDP slot for a
// given source IP. MD, unlike PD, shares one socket across every
// request/reply for the same local address rather than one per comId
// (spec.md §4.2's slot-reuse rule already coalesces this at the pool
// level); srcIp lets a multi-homed host bind distinct MD sockets per
// interface, the same way Publish/Subscribe already thread addr.SrcIp
// through to the pool.
func (s *Session) mdSlot(tcp bool, cornerIp net.IP, srcIp uint32) (*trdp.Slot, error) {
	if tcp {
		return s.pool.Request(trdp.RequestParams{
			Port:      s.cfg.MDDefault.TCPPort,
			Type:      trdp.SlotMDTCP,
			CornerIp:  cornerIp,
			RcvMostly: false,
		})
	}
	return s.pool.Request(trdp.RequestParams{
		Port:  s.cfg.MDDefault.UDPPort,
		Type:  trdp.SlotMDUDP,
		SrcIp: srcIp,
	})
}

// mdListenSlot claims (or reuses) the session's MD receiving socket for
// a given transport: the shared wildcard MD-UDP socket for tcp == false,
// or the shared passive-accept MD-TCP listener (spec.md §4.4 "Listeners
// reuse a single passive-accept socket managed by the session") for
// tcp == true.
func (s *Session) mdListenSlot(tcp bool) (*trdp.Slot, error) {
	if tcp {
		return s.pool.Request(trdp.RequestParams{
			Port:      s.cfg.MDDefault.TCPPort,
			Type:      trdp.SlotMDTCP,
			RcvMostly: true,
		})
	}
	return s.mdSlot(false, nil, 0)
}

// mdDestPort returns the configured MD port for the given transport.
func (s *Session) mdDestPort(tcp bool) int {
	if tcp {
		return s.cfg.MDDefault.TCPPort
	}
	return s.cfg.MDDefault.UDPPort
}

// Notify sends a one-shot MD notification (spec.md §4.4 "notify").
func (s *Session) Notify(addr trdp.Addr, topo trdp.Topo, tcp bool, payload []byte) error {
	dest := resolveDest(addr, s.mdDestPort(tcp))
	var cornerIp net.IP
	if tcp && dest != nil {
		cornerIp = dest.IP
	}
	slot, err := s.mdSlot(tcp, cornerIp, addr.SrcIp)
	if err != nil {
		return err
	}

	s.mdMu.Lock()
	sess, frame, err := s.mdTable.Notify(addr, topo, tcp, payload)
	s.mdMu.Unlock()
	if err != nil {
		return err
	}
	sess.Slot = slot
	sess.Dest = dest
	s.sendTo(slot, dest, frame)
	sess.MarkSent(time.Now())
	return nil
}

// Request sends an MD request and arms the session for replies
// (spec.md §4.4 "request"). A replyTimeout of 0 selects the session's
// configured MDDefault.ReplyTimeout.
func (s *Session) Request(addr trdp.Addr, topo trdp.Topo, tcp bool, numReplies int, replyTimeout, confirmTimeout time.Duration, retriesMax int, payload []byte) (*md.Session, error) {
	if replyTimeout == 0 {
		replyTimeout = s.cfg.MDDefault.ReplyTimeout
	}
	dest := resolveDest(addr, s.mdDestPort(tcp))
	var cornerIp net.IP
	if tcp && dest != nil {
		cornerIp = dest.IP
	}
	slot, err := s.mdSlot(tcp, cornerIp, addr.SrcIp)
	if err != nil {
		return nil, err
	}

	s.mdMu.Lock()
	sess, frame, err := s.mdTable.Request(addr, topo, tcp, numReplies, replyTimeout, confirmTimeout, retriesMax, payload)
	s.mdMu.Unlock()
	if err != nil {
		return nil, err
	}
	sess.Slot = slot
	sess.Dest = dest
	s.sendTo(slot, dest, frame)
	sess.MarkSent(time.Now())
	return sess, nil
}

// Listen claims (or reuses) the session's MD receiving socket for the
// given transport and registers a listener against it (spec.md §4.4
// "listener filter"), the MD counterpart of Subscribe claiming a PD
// socket before joining the queue. The UDP receiving socket always binds
// the wildcard address; addr.SrcIp here is purely the sender filter
// matchListener applies to incoming frames, not a bind address (unlike
// the SrcIp passed to Notify/Request, which does pick the outgoing
// socket's local address). For tcp == true, incoming connections land on
// the shared passive-accept socket opened by mdListenSlot.
func (s *Session) Listen(addr trdp.Addr, tcp bool, cb md.Callback) (*md.Listener, error) {
	if _, err := s.mdListenSlot(tcp); err != nil {
		return nil, err
	}
	l := &md.Listener{Addr: addr, TCP: tcp, Callback: cb}
	s.mdMu.Lock()
	s.mdTable.AddListener(l)
	s.mdMu.Unlock()
	return l, nil
}

// StopListening removes a listener registered with Listen.
func (s *Session) StopListening(l *md.Listener) {
	s.mdMu.Lock()
	s.mdTable.RemoveListener(l)
	s.mdMu.Unlock()
}

// Reply answers an in-progress MD session (spec.md §4.4 "reply"). A
// session accepted off the MD-TCP listener carries its own peer
// connection (sess.TCPConn) rather than a slot Write can reach directly,
// since the slot's socket is the shared accept listener, not any one
// peer's stream (spec.md §4.4 "TCP specifics").
func (s *Session) Reply(id packet.SessionID, payload []byte, expectConfirm bool) error {
	s.mdMu.Lock()
	sess, frame, err := s.mdTable.Reply(id, payload, expectConfirm)
	s.mdMu.Unlock()
	if err != nil {
		return err
	}
	s.sendMD(sess.Slot, sess.Dest, sess.TCPConn, frame)
	sess.MarkSent(time.Now())
	return nil
}

// Confirm answers a query-reply MD session (spec.md §4.4 "confirm").
func (s *Session) Confirm(id packet.SessionID, userStatus int16) error {
	s.mdMu.Lock()
	sess, frame, err := s.mdTable.Confirm(id, userStatus)
	s.mdMu.Unlock()
	if err != nil {
		return err
	}
	s.sendMD(sess.Slot, sess.Dest, sess.TCPConn, frame)
	sess.MarkSent(time.Now())
	return nil
}
