package session

import (
	"time"

	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// Process implements the per-tick half of spec.md §4.6 C6 step 3: send
// every publisher whose deadline has passed, run the MD retry/timeout
// handler, check PD subscriber timeouts, and close every morituri
// socket-pool slot. Socket draining (step 3's "for every ready receive
// socket") runs continuously via the per-slot reader goroutines of
// session.go's Run/ensureReaders, rather than once per tick — the
// idiomatic Go substitute for a blocking select() over an fd-set.
func (s *Session) Process(now time.Time) {
	s.processPublishers(now)
	s.processSubscriberTimeouts(now)
	s.processMD(now)

	s.mdTable.Sweep()
	s.pool.Sweep()
}

func (s *Session) processPublishers(now time.Time) {
	s.pdMu.Lock()
	pubs := s.queues.Publishers()
	s.pdMu.Unlock()

	for _, pub := range pubs {
		if !pub.Ready(now) {
			continue
		}
		frame, send := pub.Advance(now)
		if !send {
			continue
		}
		if pub.Slot != nil {
			s.sendTo(pub.Slot, pub.Dest, frame)
		}
		if pub.OnSent != nil {
			pub.OnSent(pub)
		}
	}
}

func (s *Session) processSubscriberTimeouts(now time.Time) {
	s.pdMu.Lock()
	subs := s.queues.Subscribers()
	s.pdMu.Unlock()

	for _, sub := range subs {
		sub.CheckTimeout(now)
	}
}

func (s *Session) processMD(now time.Time) {
	s.mdMu.Lock()
	results := s.mdTable.ProcessTimeouts(now, s.tcpSessionIDs())
	s.mdMu.Unlock()

	for _, r := range results {
		if r.Retry != nil && r.Session.Slot != nil {
			s.sendTo(r.Session.Slot, r.Session.Dest, r.Retry)
		}
	}
}

// tcpSessionIDs reports which live sessions ride a TCP slot, feeding
// ProcessTimeouts' "transport is UDP" retry criterion (spec.md §4.4).
func (s *Session) tcpSessionIDs() map[packet.SessionID]bool {
	out := make(map[packet.SessionID]bool)
	for _, sess := range s.mdTable.Sessions() {
		if sess.TCP {
			out[sess.ID] = true
		}
	}
	return out
}
