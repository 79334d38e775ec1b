package md

import (
	"testing"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

func TestNotifyLifecycle(t *testing.T) {
	tab := NewTable()
	s, frame, err := tab.Notify(trdp.Addr{ComId: 42}, trdp.Topo{}, false, []byte("hello"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(frame) == 0 {
		t.Fatal("expected a non-empty Mn frame")
	}
	s.MarkSent(time.Now())
	if !s.Morituri() {
		t.Fatal("notify session must be morituri right after send")
	}
}

func TestRequestReplyRoundTrip(t *testing.T) {
	requester := NewTable()
	replier := NewTable()

	var gotReply bool
	var replySessionID packet.SessionID
	listener := &Listener{
		Addr: trdp.Addr{ComId: 100},
		Callback: func(s *Session, payload []byte, err error) {
			gotReply = true
			replySessionID = s.ID
		},
	}
	replier.AddListener(listener)

	now := time.Now()
	reqSession, reqFrame, err := requester.Request(trdp.Addr{ComId: 100}, trdp.Topo{}, false, 1, time.Second, time.Second, 2, []byte("ping"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	reqSession.MarkSent(now)
	if reqSession.getState() != StateTxRequestW4Reply {
		t.Fatalf("expected TX_REQUEST_W4REPLY, got %v", reqSession.State)
	}

	h, payload, err := packet.DecodeMDValidate(reqFrame, packet.Topo{}, true)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if h.MsgType != packet.MsgMr {
		t.Fatalf("expected Mr, got %v", h.MsgType)
	}

	replyFrame := replier.OnReceive(now, h, 0, false, false, payload)
	if replyFrame != nil {
		t.Fatal("a fresh request must not produce an immediate reply frame")
	}
	if !gotReply {
		t.Fatal("listener callback did not fire on request")
	}

	replySession, mpFrame, err := replier.Reply(replySessionID, []byte("pong"), false)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	replySession.MarkSent(now)
	if !replySession.Morituri() {
		t.Fatal("a reply without confirm must be morituri after send")
	}

	mh, mpPayload, err := packet.DecodeMDValidate(mpFrame, packet.Topo{}, true)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if mh.MsgType != packet.MsgMp {
		t.Fatalf("expected Mp, got %v", mh.MsgType)
	}

	requester.OnReceive(now, mh, 0, false, false, mpPayload)
	if reqSession.getState() != StateTxRequestW4Reply {
		t.Fatalf("unexpected state after reply: %v", reqSession.State)
	}
	if !reqSession.Morituri() {
		t.Fatal("requester session must be morituri once its one expected reply arrived")
	}
}

func TestDuplicateRequestSameSequenceDiscarded(t *testing.T) {
	replier := NewTable()
	var calls int
	replier.AddListener(&Listener{
		Addr:     trdp.Addr{ComId: 7},
		Callback: func(s *Session, payload []byte, err error) { calls++ },
	})

	now := time.Now()
	var id packet.SessionID
	id[0] = 1
	h := &packet.MDHeader{MsgType: packet.MsgMr, ComId: 7, SessionID: id, SequenceCounter: 5}

	replier.OnReceive(now, h, 0, false, false, nil)
	replier.OnReceive(now, h, 0, false, false, nil)
	if calls != 1 {
		t.Fatalf("expected exactly one listener invocation for a duplicate request, got %d", calls)
	}
}

func TestDuplicateMulticastRequestDiscardedEvenWithDifferentSequence(t *testing.T) {
	replier := NewTable()
	var calls int
	replier.AddListener(&Listener{
		Addr:     trdp.Addr{ComId: 7},
		Callback: func(s *Session, payload []byte, err error) { calls++ },
	})

	now := time.Now()
	var id packet.SessionID
	id[0] = 1
	first := &packet.MDHeader{MsgType: packet.MsgMr, ComId: 7, SessionID: id, SequenceCounter: 5}
	second := &packet.MDHeader{MsgType: packet.MsgMr, ComId: 7, SessionID: id, SequenceCounter: 6}

	replier.OnReceive(now, first, 0, false, true, nil)
	replier.OnReceive(now, second, 0, false, true, nil)
	if calls != 1 {
		t.Fatalf("a multicast duplicate must be discarded (rule 3) even with a new sequence counter, got %d listener invocations", calls)
	}
}

func TestDropTCPPeerDrainsOnlyThatPeersTCPSessions(t *testing.T) {
	tab := NewTable()
	var failedA, failedB, failedC bool

	sessA := &Session{ID: packet.SessionID{1}, TCP: true, SrcIp: 0x0A000001}
	sessA.Callback = func(s *Session, payload []byte, err error) { failedA = err != nil }
	sessB := &Session{ID: packet.SessionID{2}, TCP: true, SrcIp: 0x0A000002}
	sessB.Callback = func(s *Session, payload []byte, err error) { failedB = err != nil }
	sessC := &Session{ID: packet.SessionID{3}, TCP: false, SrcIp: 0x0A000001}
	sessC.Callback = func(s *Session, payload []byte, err error) { failedC = err != nil }

	tab.mu.Lock()
	tab.sessions[sessA.ID] = sessA
	tab.sessions[sessB.ID] = sessB
	tab.sessions[sessC.ID] = sessC
	tab.mu.Unlock()

	tab.DropTCPPeer(0x0A000001)

	if !failedA {
		t.Fatal("the replaced peer's TCP session must be reported as failed")
	}
	if !sessA.Morituri() {
		t.Fatal("the replaced peer's TCP session must be marked morituri")
	}
	if failedB || sessB.Morituri() {
		t.Fatal("a different peer's TCP session must be left alone")
	}
	if failedC || sessC.Morituri() {
		t.Fatal("a UDP session sharing the same source IP must be left alone")
	}
}

func TestProcessTimeoutsRetriesUnicastUDP(t *testing.T) {
	tab := NewTable()
	now := time.Now()
	s, _, err := tab.Request(trdp.Addr{ComId: 1}, trdp.Topo{}, false, 1, 10*time.Millisecond, time.Second, 3, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	s.MarkSent(now)

	results := tab.ProcessTimeouts(now.Add(20*time.Millisecond), nil)
	if len(results) != 1 || results[0].Failed {
		t.Fatalf("expected one retry, got %+v", results)
	}
	if s.NumRetries != 1 {
		t.Fatalf("expected num_retries == 1, got %d", s.NumRetries)
	}
}

func TestProcessTimeoutsFailsAfterMaxRetries(t *testing.T) {
	tab := NewTable()
	now := time.Now()
	var failed bool
	s, _, err := tab.Request(trdp.Addr{ComId: 1}, trdp.Topo{}, false, 1, 10*time.Millisecond, time.Second, 0, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	s.Callback = func(sess *Session, payload []byte, err error) {
		if err == trdp.ErrTimeout {
			failed = true
		}
	}
	s.MarkSent(now)

	results := tab.ProcessTimeouts(now.Add(20*time.Millisecond), nil)
	if len(results) != 1 || !results[0].Failed {
		t.Fatalf("expected one failure, got %+v", results)
	}
	if !failed || !s.Morituri() {
		t.Fatal("session must fail and be marked morituri once retries are exhausted")
	}
}
