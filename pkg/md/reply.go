package md

import (
	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// Reply answers an RX_REQ_W4AP_REPLY session (spec.md §4.4 "reply"),
// building an Mp (expectConfirm == false) or Mq (true) frame and
// transitioning to TX_REPLY_ARM / TX_REPLYQUERY_ARM. Call
// (*Session).MarkSent once the frame has actually been written.
func (t *Table) Reply(id packet.SessionID, payload []byte, expectConfirm bool) (*Session, []byte, error) {
	s, ok := t.Get(id)
	if !ok {
		return nil, nil, trdp.ErrNoSession
	}
	if s.getState() != StateRxReqW4ApReply {
		return nil, nil, trdp.ErrParam
	}

	seq := s.NextSequence()
	var frame []byte
	if expectConfirm {
		frame = buildHeader(packet.MsgMq, s.Addr, s.Topo, s.ID, seq, 0, payload)
		s.mu.Lock()
		s.State = StateTxReplyQueryArm
		s.NumRepliesQuery = 1
		s.Buffer = frame
		s.mu.Unlock()
	} else {
		frame = buildHeader(packet.MsgMp, s.Addr, s.Topo, s.ID, seq, 0, payload)
		s.mu.Lock()
		s.State = StateTxReplyArm
		s.Buffer = frame
		s.mu.Unlock()
	}
	return s, frame, nil
}

// Confirm answers a TX_REQ_W4AP_CONFIRM session (spec.md §4.4
// "confirm"), building an Mc frame and transitioning to
// TX_CONFIRM_ARM. MarkSent finalizes the morituri bookkeeping once
// num_confirm_sent reaches num_replies_query.
func (t *Table) Confirm(id packet.SessionID, userStatus int16) (*Session, []byte, error) {
	s, ok := t.Get(id)
	if !ok {
		return nil, nil, trdp.ErrNoSession
	}
	if s.getState() != StateTxReqW4ApConfirm {
		return nil, nil, trdp.ErrParam
	}

	seq := s.NextSequence()
	frame := buildHeader(packet.MsgMc, s.Addr, s.Topo, s.ID, seq, userStatus, nil)
	s.mu.Lock()
	s.State = StateTxConfirmArm
	s.NumConfirmSent++
	s.mu.Unlock()
	return s, frame, nil
}
