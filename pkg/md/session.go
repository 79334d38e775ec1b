package md

import (
	"net"
	"sync"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// Callback is invoked on every state-relevant event for a session: a
// reply/confirm/notify arrival (err == nil) or a terminal failure
// (err != nil, e.g. trdp.ErrTimeout or a ReplyStatus-carrying error).
type Callback func(s *Session, payload []byte, err error)

// Session is one entry of spec.md §4.4's MD session table.
type Session struct {
	mu sync.Mutex

	ID        packet.SessionID
	Direction Direction
	State     State
	Addr      trdp.Addr
	Topo      trdp.Topo
	UserRef   any
	Callback  Callback

	TCP     bool
	SrcIp   uint32 // the peer's address, for TCP peer-replacement draining
	Slot    *trdp.Slot
	Dest    *net.UDPAddr // resolved destination for an unconnected UDP slot
	TCPConn net.Conn     // peer connection accepted off an MD-TCP listener, if any
	Buffer  []byte

	NumExpectedReplies int
	NumReplies         int
	NumRepliesQuery    int
	NumConfirmSent     int
	NumConfirmTimeout  int
	NumRetries         int
	NumRetriesMax      int

	Deadline time.Time
	Interval time.Duration

	seq            uint32
	morituri       bool
	confirmTimeout time.Duration
}

// Morituri reports whether this session is scheduled for reaping on the
// next scheduler cycle (spec.md §3 "morituri flag").
func (s *Session) Morituri() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.morituri
}

// markMorituri flags the session for reaping. It takes only the
// session's own lock; callers need not hold the table lock.
func (s *Session) markMorituri() {
	s.mu.Lock()
	s.morituri = true
	s.mu.Unlock()
}

// NextSequence increments and returns this session's outgoing sequence
// counter, used on every (re)transmission including retries.
func (s *Session) NextSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.State = state
	s.mu.Unlock()
}

func (s *Session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}
