package session

import (
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/pd"
)

// Subscribe creates a PD subscriber and joins its socket/multicast
// group via the pool (spec.md §4.3 "subscribe").
func (s *Session) Subscribe(addr trdp.Addr, topo trdp.Topo, timeout time.Duration, behavior pd.TimeoutBehavior, cb pd.SubscribeCallback) (*pd.Subscriber, error) {
	slot, err := s.pool.Request(trdp.RequestParams{
		Port:      defaultPDPort,
		Params:    toSendParams(s.cfg.PDDefault.SendParams),
		SrcIp:     addr.SrcIp,
		McGroup:   addr.McGroup,
		Type:      trdp.SlotPDUDP,
		RcvMostly: true,
	})
	if err != nil {
		return nil, err
	}

	sub := pd.NewSubscriber(addr, topo, timeout, behavior, cb, time.Now())
	sub.Slot = slot

	s.pdMu.Lock()
	err = s.queues.AddSubscriber(sub)
	s.pdMu.Unlock()
	if err != nil {
		_ = s.pool.Release(slot, 0, true, addr.McGroup)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes sub from the subscribe queue and releases its
// socket/multicast membership.
func (s *Session) Unsubscribe(sub *pd.Subscriber) {
	s.pdMu.Lock()
	s.queues.RemoveSubscriber(sub)
	s.pdMu.Unlock()
	if sub.Slot != nil {
		_ = s.pool.Release(sub.Slot, 0, true, sub.Addr.McGroup)
	}
}
