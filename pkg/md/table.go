package md

import (
	"crypto/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// Listener is a registered MD receiver, matched against incoming
// Mn/Mr frames the way pd.Subscriber matches incoming PD frames.
type Listener struct {
	Addr     trdp.Addr
	Topo     trdp.Topo
	TCP      bool
	UserRef  any
	Callback Callback
}

// Table is the MD session table of spec.md §4.4: one map of live
// sessions plus the listener table incoming Mn/Mr frames are matched
// against. Grounded on the teacher's SDOServer, which keeps one active
// transfer per connection plus a registered-object-dictionary lookup;
// here a single table fans out over many concurrent sessions since MD,
// unlike SDO-over-CAN, is not limited to one transfer at a time.
type Table struct {
	mu        sync.Mutex
	log       *log.Entry
	sessions  map[packet.SessionID]*Session
	listeners []*Listener
}

// NewTable creates an empty MD session table.
func NewTable() *Table {
	return &Table{
		sessions: make(map[packet.SessionID]*Session),
		log:      log.WithField("component", "md"),
	}
}

// SetLogger overrides the logrus entry used for session-table messages.
func (t *Table) SetLogger(entry *log.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = entry
}

func newSessionID() (packet.SessionID, error) {
	var id packet.SessionID
	_, err := rand.Read(id[:])
	return id, err
}

// AddListener registers a receiver for incoming Mn/Mr frames matching
// its address filter (spec.md §4.4 "listener filter").
func (t *Table) AddListener(l *Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// RemoveListener unregisters l.
func (t *Table) RemoveListener(l *Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.listeners {
		if existing == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

func (t *Table) matchListener(comId uint32, srcIp uint32, tcp bool) *Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.listeners {
		if l.Addr.ComId != comId {
			continue
		}
		if !l.Addr.MatchesSrc(srcIp) {
			continue
		}
		if l.TCP != tcp {
			continue
		}
		return l
	}
	return nil
}

// Notify creates a TX_NOTIFY_ARM session (spec.md §4.4 "notify") and
// returns the built Mn frame. Call (*Session).MarkSent once it has
// actually been written to the wire.
func (t *Table) Notify(addr trdp.Addr, topo trdp.Topo, tcp bool, payload []byte) (*Session, []byte, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, nil, trdp.Wrap(trdp.KindSema, "md notify: session id", err)
	}
	s := &Session{ID: id, Direction: DirSend, State: StateTxNotifyArm, Addr: addr, Topo: topo, TCP: tcp}
	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()

	seq := s.NextSequence()
	frame := buildHeader(packet.MsgMn, addr, topo, id, seq, 0, payload)
	return s, frame, nil
}

// Request creates a TX_REQUEST_ARM session (spec.md §4.4 "request") and
// returns the built Mr frame.
func (t *Table) Request(addr trdp.Addr, topo trdp.Topo, tcp bool, numReplies int, replyTimeout, confirmTimeout time.Duration, retriesMax int, payload []byte) (*Session, []byte, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, nil, trdp.Wrap(trdp.KindSema, "md request: session id", err)
	}
	s := &Session{
		ID: id, Direction: DirSend, State: StateTxRequestArm,
		Addr: addr, Topo: topo, TCP: tcp,
		NumExpectedReplies: numReplies,
		NumRetriesMax:      retriesMax,
		Interval:           replyTimeout,
	}
	s.confirmTimeout = confirmTimeout
	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()

	seq := s.NextSequence()
	frame := buildMDRequest(addr, topo, id, seq, replyTimeout, payload)
	s.mu.Lock()
	s.Buffer = frame
	s.mu.Unlock()
	return s, frame, nil
}

// MarkSent applies the "after send" half of spec.md §4.4's notify/request
// transitions.
func (s *Session) MarkSent(now time.Time) {
	switch s.getState() {
	case StateTxNotifyArm:
		s.setState(StateTxNotifyArm)
		s.markMorituri()
	case StateTxRequestArm:
		s.mu.Lock()
		s.State = StateTxRequestW4Reply
		s.Deadline = now.Add(s.Interval)
		s.mu.Unlock()
	case StateTxReplyArm:
		s.markMorituri()
	case StateTxReplyQueryArm:
		s.mu.Lock()
		s.State = StateRxReplyQueryW4C
		s.Deadline = now.Add(s.confirmTimeout)
		s.mu.Unlock()
	case StateTxConfirmArm:
		s.mu.Lock()
		reachedExpected := s.NumConfirmSent >= s.NumRepliesQuery
		s.mu.Unlock()
		if reachedExpected {
			s.markMorituri()
		}
	}
}

// Get returns the live session for id, if any.
func (t *Table) Get(id packet.SessionID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Sessions returns a snapshot of every live session.
func (t *Table) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// DropTCPPeer drains every live TCP session addressed to srcIp, the
// table-side half of spec.md §4.4 "TCP specifics": when a second
// connection from the same peer replaces an older one, the sessions
// riding that older connection can never see a reply on it again, so
// they are reported and reaped rather than left to time out.
func (t *Table) DropTCPPeer(srcIp uint32) {
	t.mu.Lock()
	var drained []*Session
	for _, s := range t.sessions {
		if s.TCP && s.SrcIp == srcIp && !s.Morituri() {
			drained = append(drained, s)
		}
	}
	t.mu.Unlock()

	for _, s := range drained {
		s.markMorituri()
		if s.Callback != nil {
			s.Callback(s, nil, trdp.Wrap(trdp.KindSocket, "md: tcp connection replaced by new peer connection", nil))
		}
	}
}

// Sweep removes every session flagged morituri, mirroring the socket
// pool's own Sweep (spec.md §3 "removed by the scheduler one cycle
// after morituri is set").
func (t *Table) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		if s.Morituri() {
			delete(t.sessions, id)
		}
	}
}
