package pd

import (
	"testing"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
)

func TestPublisherFirstSendIsDeferred(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPublisher(trdp.Addr{ComId: 100}, trdp.Topo{}, 100*time.Millisecond, 0, false, 8, now)

	if p.Ready(now) {
		t.Fatal("publisher must not be ready at creation time")
	}
	if p.Ready(now.Add(50 * time.Millisecond)) {
		t.Fatal("publisher must not be ready before one interval has elapsed")
	}
	if !p.Ready(now.Add(100 * time.Millisecond)) {
		t.Fatal("publisher must be ready once the interval has elapsed")
	}
}

func TestPublisherAdvanceIncrementsSequenceForFollowers(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPublisher(trdp.Addr{ComId: 100}, trdp.Topo{}, 100*time.Millisecond, 7, false, 8, now)
	p.SetRedundant(false)

	frame, send := p.Advance(now.Add(100 * time.Millisecond))
	if send || frame != nil {
		t.Fatal("follower must not send")
	}
	if p.Sequence() != 1 {
		t.Fatalf("follower must still advance its sequence counter, got %d", p.Sequence())
	}
}

func TestPublisherAdvanceSendsAsLeader(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPublisher(trdp.Addr{ComId: 100}, trdp.Topo{}, 100*time.Millisecond, 7, false, 8, now)
	p.SetRedundant(true)

	frame, send := p.Advance(now.Add(100 * time.Millisecond))
	if !send || frame == nil {
		t.Fatal("leader must send")
	}
	if len(frame) == 0 {
		t.Fatal("frame must not be empty")
	}
}

func TestPublisherPutCopiesAndZeroPads(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPublisher(trdp.Addr{ComId: 100}, trdp.Topo{}, 0, 0, false, 8, now)
	if err := p.Put([]byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if p.buf[40] != 1 || p.buf[41] != 2 || p.buf[42] != 3 {
		t.Fatal("payload not copied into buffer past the header")
	}
	if p.buf[43] != 0 {
		t.Fatal("remaining payload bytes must be zero-padded")
	}
}
