package pd

import (
	"sync"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// SubscribeCallback is invoked on a qualifying event: a freshly received
// packet (err == nil) or a timeout (err == trdp.ErrTimeout), per
// spec.md §4.3/§7.
type SubscribeCallback func(sub *Subscriber, err error)

// Subscriber is one entry of the PD subscribe queue (spec.md §3/§4.3).
type Subscriber struct {
	mu sync.Mutex

	Addr            trdp.Addr
	Topo            trdp.Topo
	Timeout         time.Duration
	TimeoutBehavior TimeoutBehavior
	Slot            *trdp.Slot
	UserRef         any
	Callback        SubscribeCallback

	seqTracker *SequenceTracker

	buf          []byte
	hasData      bool
	nextDeadline time.Time
	timedOut     bool
	invalid      bool
	reportedOnce bool
}

// TimeoutBehavior mirrors config.TimeoutBehavior without importing
// pkg/config, keeping pkg/pd free of a dependency on the config layer.
type TimeoutBehavior int

const (
	KeepLastValue TimeoutBehavior = iota
	ZeroOnTimeout
	Invalidate
)

// NewSubscriber appends a subscriber (spec.md §4.3 "subscribe"). The
// caller is responsible for joining any multicast group via the socket
// pool exactly once, per C2's refcounting.
func NewSubscriber(addr trdp.Addr, topo trdp.Topo, timeout time.Duration, behavior TimeoutBehavior, cb SubscribeCallback, now time.Time) *Subscriber {
	return &Subscriber{
		Addr:            addr,
		Topo:            topo,
		Timeout:         timeout,
		TimeoutBehavior: behavior,
		Callback:        cb,
		seqTracker:      NewSequenceTracker(),
		nextDeadline:    now.Add(timeout),
	}
}

// OnReceive performs, in order, the per-packet pipeline of spec.md §4.3:
// source-IP filter, sequence-tracker duplicate check, buffer update and
// deadline rearm. The caller has already run codec validation and the
// topology filter (pkg/packet.DecodePDValidate) before calling this.
func (s *Subscriber) OnReceive(now time.Time, srcIp uint32, msgType packet.MsgType, seq uint32, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Addr.MatchesSrc(srcIp) {
		return
	}
	if s.seqTracker.Check(srcIp, msgType, seq) {
		return // duplicate, discard silently
	}

	if cap(s.buf) < len(payload) {
		s.buf = make([]byte, len(payload))
	}
	s.buf = s.buf[:len(payload)]
	copy(s.buf, payload)
	s.hasData = true
	s.invalid = false

	s.timedOut = false
	s.reportedOnce = false
	s.nextDeadline = now.Add(s.Timeout)

	cb := s.Callback
	s.mu.Unlock()
	if cb != nil {
		cb(s, nil)
	}
	s.mu.Lock()
}

// CheckTimeout applies spec.md §4.3's "Timeout behavior" rule. Call once
// per scheduler tick; it is idempotent — the callback fires exactly once
// per timeout episode.
func (s *Subscriber) CheckTimeout(now time.Time) {
	s.mu.Lock()
	if s.Timeout <= 0 || now.Before(s.nextDeadline) || s.timedOut {
		s.mu.Unlock()
		return
	}
	s.timedOut = true
	// A timeout re-arms every tracked sequence counter (spec.md §4.5), so
	// a publisher that restarted at a low counter is accepted again.
	s.seqTracker.mu.Lock()
	for k := range s.seqTracker.last {
		s.seqTracker.last[k] = nil
	}
	s.seqTracker.mu.Unlock()
	switch s.TimeoutBehavior {
	case ZeroOnTimeout:
		for i := range s.buf {
			s.buf[i] = 0
		}
	case Invalidate:
		s.invalid = true
	case KeepLastValue:
		// buffer preserved as-is
	}
	alreadyReported := s.reportedOnce
	s.reportedOnce = true
	cb := s.Callback
	s.mu.Unlock()

	if !alreadyReported && cb != nil {
		cb(s, trdp.ErrTimeout)
	}
}

// Get returns the last buffered payload (spec.md §4.3 "get").
func (s *Subscriber) Get() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalid {
		return nil, trdp.ErrTimeout
	}
	if !s.hasData {
		return nil, trdp.ErrNoData
	}
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// NextDeadline returns the subscriber's current timeout deadline, for the
// scheduler's get_interval computation.
func (s *Subscriber) NextDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDeadline
}

// ResetSequence re-arms the subscriber's sequence tracker for one
// source/message type (spec.md §4.5). CheckTimeout re-arms every tracked
// entry when the subscriber times out.
func (s *Subscriber) ResetSequence(srcIp uint32, msgType packet.MsgType) {
	s.seqTracker.Reset(srcIp, msgType)
}
