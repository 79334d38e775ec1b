// Package pd implements the PD publish/subscribe queues of spec.md C3,
// plus the per-subscription sequence tracker of C5. Grounded on the
// teacher's pdo_tpdo.go/pdo_rpdo.go (cyclic send/receive with deadline
// tracking and a last-value buffer).
package pd

import (
	"sync"

	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// seqKey is the (source IP, message type) pair C5 tracks a counter for.
type seqKey struct {
	SrcIp   uint32
	MsgType packet.MsgType
}

// SequenceTracker is the per-subscriber tracker of spec.md §4.5. The
// teacher's internal/fifo grows a flat buffer by doubling capacity on
// overflow; Go's map already amortizes growth the same way, so the
// capacity-doubling idiom is expressed here as a hint to make(), not a
// hand-rolled resize — the important behavioral contract (spec.md's two
// Open Questions) is the *uint32 entry, not the container shape.
type SequenceTracker struct {
	mu   sync.Mutex
	last map[seqKey]*uint32
}

// NewSequenceTracker creates a tracker with the capacity-16 starting hint
// of spec.md §4.5.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: make(map[seqKey]*uint32, 16)}
}

// Check applies spec.md §4.5's accept/duplicate rule and, if accepted,
// records seq as the new last-seen counter. A nil stored entry (never
// seen, or reset by Reset) always accepts — this is the explicit
// Option[uint32] spec.md §9 asks for, avoiding the zero-collision
// ambiguity between "first packet" and "timeout reset".
func (t *SequenceTracker) Check(srcIp uint32, msgType packet.MsgType, seq uint32) (duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := seqKey{srcIp, msgType}
	last, ok := t.last[k]
	if !ok || last == nil {
		v := seq
		t.last[k] = &v
		return false
	}
	if seq > *last {
		*last = seq
		return false
	}
	return true
}

// Reset clears the stored counter(s) for addr/msgType back to "unset",
// the sentinel spec.md §4.5 uses on PD timeout ("reset_sequence_counter").
// msgType selects a single entry; passing the zero MsgType resets every
// entry for srcIp.
func (t *SequenceTracker) Reset(srcIp uint32, msgType packet.MsgType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero packet.MsgType
	for k := range t.last {
		if k.SrcIp != srcIp {
			continue
		}
		if msgType != zero && k.MsgType != msgType {
			continue
		}
		t.last[k] = nil
	}
}
