package md

import (
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// OnReceive dispatches an incoming, already-validated MD frame
// (pkg/packet.DecodeMDValidate has already run) to the right table
// operation based on its message type (spec.md §4.4).
//
// replyFrame is non-nil when the caller must transmit it immediately
// (a retransmitted reply per duplicate rule 6, or an Me error reply).
func (t *Table) OnReceive(now time.Time, h *packet.MDHeader, srcIp uint32, tcp, multicast bool, payload []byte) (replyFrame []byte) {
	switch h.MsgType {
	case packet.MsgMn:
		t.onNotify(now, h, srcIp, tcp, payload)
		return nil
	case packet.MsgMr:
		return t.onRequest(now, h, srcIp, tcp, multicast, payload)
	case packet.MsgMp, packet.MsgMq:
		t.onReply(now, h, payload)
		return nil
	case packet.MsgMc:
		t.onConfirm(now, h)
		return nil
	case packet.MsgMe:
		t.onError(now, h)
		return nil
	}
	return nil
}

func (t *Table) onNotify(now time.Time, h *packet.MDHeader, srcIp uint32, tcp bool, payload []byte) {
	l := t.matchListener(h.ComId, srcIp, tcp)
	if l == nil {
		t.log.Debugf("md: notify on comId %d: no matching listener", h.ComId)
		return
	}
	s := &Session{
		ID: h.SessionID, Direction: DirReceive, State: StateRxNotifyReceived,
		Addr: l.Addr, Topo: l.Topo, UserRef: l.UserRef, Callback: l.Callback,
		TCP: tcp, SrcIp: srcIp,
	}
	s.seq = h.SequenceCounter
	t.mu.Lock()
	t.sessions[h.SessionID] = s
	t.mu.Unlock()
	s.markMorituri()
	if s.Callback != nil {
		s.Callback(s, payload, nil)
	}
}

func (t *Table) onRequest(now time.Time, h *packet.MDHeader, srcIp uint32, tcp, multicast bool, payload []byte) []byte {
	t.mu.Lock()
	existing, hasExisting := t.sessions[h.SessionID]
	t.mu.Unlock()

	if hasExisting {
		replyAlreadySent := existing.getState() == StateRxReplyQueryW4C || existing.Morituri()
		topoChanged := existing.Topo != (trdp.Topo{EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt})
		switch checkDuplicate(existing, h.SequenceCounter, tcp, multicast, replyAlreadySent, topoChanged) {
		case dupDiscard:
			return nil
		case dupRetransmit:
			return existing.lastReply()
		case dupFallthrough:
			// fall through to a fresh listener search below
		}
	}

	l := t.matchListener(h.ComId, srcIp, tcp)
	if l == nil {
		t.log.Warnf("md: request on comId %d: no matching listener", h.ComId)
		seq := uint32(1)
		return BuildMeReply(trdp.Addr{ComId: h.ComId}, trdp.Topo{EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt}, h.SessionID, seq, ReplyNoListener)
	}

	s := &Session{
		ID: h.SessionID, Direction: DirReceive, State: StateRxReqW4ApReply,
		Addr: l.Addr, UserRef: l.UserRef, Callback: l.Callback,
		Topo:     trdp.Topo{EtbTopoCnt: h.EtbTopoCnt, OpTrnTopoCnt: h.OpTrnTopoCnt},
		TCP:      tcp,
		SrcIp:    srcIp,
		Interval: time.Duration(h.ReplyTimeout) * time.Microsecond,
	}
	s.seq = h.SequenceCounter
	// A zero reply timeout on the wire means an infinite wait: the
	// session gets no deadline and ProcessTimeouts never expires it.
	if s.Interval > 0 {
		s.Deadline = now.Add(s.Interval)
	}
	t.mu.Lock()
	t.sessions[h.SessionID] = s
	t.mu.Unlock()

	if s.Callback != nil {
		s.Callback(s, payload, nil)
	}
	return nil
}

func (t *Table) onReply(now time.Time, h *packet.MDHeader, payload []byte) {
	s, ok := t.Get(h.SessionID)
	if !ok || s.getState() != StateTxRequestW4Reply {
		return
	}
	s.mu.Lock()
	s.NumReplies++
	isQuery := h.MsgType == packet.MsgMq
	if isQuery {
		s.NumRepliesQuery++
		s.State = StateTxReqW4ApConfirm
		s.Deadline = now.Add(s.confirmTimeout)
	}
	cb := s.Callback
	done := !isQuery && s.NumReplies >= s.NumExpectedReplies && s.NumExpectedReplies > 0
	s.mu.Unlock()

	if cb != nil {
		cb(s, payload, nil)
	}
	if done {
		s.markMorituri()
	}
}

func (t *Table) onConfirm(now time.Time, h *packet.MDHeader) {
	s, ok := t.Get(h.SessionID)
	if !ok || s.getState() != StateRxReplyQueryW4C {
		return
	}
	s.setState(StateRxConfReceived)
	s.markMorituri()
	if s.Callback != nil {
		s.Callback(s, nil, nil)
	}
}

func (t *Table) onError(now time.Time, h *packet.MDHeader) {
	s, ok := t.Get(h.SessionID)
	if !ok {
		return
	}
	s.markMorituri()
	if s.Callback != nil {
		s.Callback(s, nil, trdp.Wrap(trdp.KindAppReplyTimeout, "md: replier returned Me", ReplyStatus(h.ReplyStatus)))
	}
}

// lastReply returns the session's previously-built reply frame for
// duplicate rule 6's retransmit, or nil if none was built yet.
func (s *Session) lastReply() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Buffer
}
