package pd

import (
	"testing"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

func TestSubscriberOnReceiveFiltersSourceIp(t *testing.T) {
	now := time.Unix(1000, 0)
	addr := trdp.Addr{ComId: 100, SrcIp: 0x0A000001}
	s := NewSubscriber(addr, trdp.Topo{}, time.Second, KeepLastValue, nil, now)

	s.OnReceive(now, 0x0A000099, packet.MsgPd, 1, []byte{1, 2, 3})
	if _, err := s.Get(); err != trdp.ErrNoData {
		t.Fatalf("expected ErrNoData for non-matching source, got %v", err)
	}

	s.OnReceive(now, 0x0A000001, packet.MsgPd, 1, []byte{1, 2, 3})
	data, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(data) != 3 || data[0] != 1 {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestSubscriberCheckTimeoutInvalidates(t *testing.T) {
	now := time.Unix(1000, 0)
	addr := trdp.Addr{ComId: 100}
	s := NewSubscriber(addr, trdp.Topo{}, 100*time.Millisecond, Invalidate, nil, now)
	s.OnReceive(now, 0, packet.MsgPd, 1, []byte{9})

	s.CheckTimeout(now.Add(50 * time.Millisecond))
	if _, err := s.Get(); err != nil {
		t.Fatalf("must not have timed out yet: %v", err)
	}

	s.CheckTimeout(now.Add(200 * time.Millisecond))
	if _, err := s.Get(); err != trdp.ErrTimeout {
		t.Fatalf("expected ErrTimeout after invalidation, got %v", err)
	}
}

func TestSubscriberCheckTimeoutFiresCallbackOnce(t *testing.T) {
	now := time.Unix(1000, 0)
	var fires int
	cb := func(sub *Subscriber, err error) {
		if err == trdp.ErrTimeout {
			fires++
		}
	}
	s := NewSubscriber(trdp.Addr{ComId: 100}, trdp.Topo{}, 100*time.Millisecond, KeepLastValue, cb, now)

	s.CheckTimeout(now.Add(200 * time.Millisecond))
	s.CheckTimeout(now.Add(300 * time.Millisecond))
	if fires != 1 {
		t.Fatalf("expected exactly one timeout callback, got %d", fires)
	}
}

func TestSubscriberOnReceiveFiresCallbackEveryTime(t *testing.T) {
	now := time.Unix(1000, 0)
	var fires int
	cb := func(sub *Subscriber, err error) {
		if err == nil {
			fires++
		}
	}
	s := NewSubscriber(trdp.Addr{ComId: 100}, trdp.Topo{}, time.Second, KeepLastValue, cb, now)

	s.OnReceive(now, 0, packet.MsgPd, 1, []byte{1})
	s.OnReceive(now, 0, packet.MsgPd, 2, []byte{2})
	s.OnReceive(now, 0, packet.MsgPd, 3, []byte{3})
	if fires != 3 {
		t.Fatalf("expected callback on every in-time receive, got %d fires", fires)
	}
}

func TestSubscriberDuplicateSequenceDiscarded(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSubscriber(trdp.Addr{ComId: 100}, trdp.Topo{}, time.Second, KeepLastValue, nil, now)

	s.OnReceive(now, 0, packet.MsgPd, 5, []byte{1})
	s.OnReceive(now, 0, packet.MsgPd, 5, []byte{2})

	data, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data[0] != 1 {
		t.Fatal("duplicate sequence counter must not overwrite buffered payload")
	}
}
