package session

import (
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/config"
	"github.com/tallowtrack/gotrdp/pkg/pd"
)

// defaultPDPort is the well-known PD port of IEC 61375-2-3, distinct
// from the MD ports carried in config.MDDefault.
const defaultPDPort = 17224

// Publish creates a cyclic PD publisher and claims its outgoing socket
// from the pool (spec.md §4.3 "publish").
func (s *Session) Publish(addr trdp.Addr, topo trdp.Topo, interval time.Duration, redGroup uint32, tcp bool, size int) (*pd.Publisher, error) {
	slot, err := s.pool.Request(trdp.RequestParams{
		Port:      defaultPDPort,
		Params:    toSendParams(s.cfg.PDDefault.SendParams),
		SrcIp:     addr.SrcIp,
		McGroup:   addr.McGroup,
		Type:      pdSlotType(tcp),
		RcvMostly: false,
	})
	if err != nil {
		return nil, err
	}

	pub := pd.NewPublisher(addr, topo, interval, redGroup, tcp, size, time.Now())
	pub.Slot = slot
	pub.Dest = resolveDest(addr, defaultPDPort)

	s.pdMu.Lock()
	s.queues.AddPublisher(pub)
	s.pdMu.Unlock()
	return pub, nil
}

// Unpublish removes pub from the publish queue and releases its socket.
func (s *Session) Unpublish(pub *pd.Publisher) {
	s.pdMu.Lock()
	s.queues.RemovePublisher(pub)
	s.pdMu.Unlock()
	if pub.Slot != nil {
		_ = s.pool.Release(pub.Slot, 0, true, pub.Addr.McGroup)
	}
}

func pdSlotType(tsn bool) trdp.SlotType {
	if tsn {
		return trdp.SlotPDTSN
	}
	return trdp.SlotPDUDP
}

func toSendParams(c config.SendParams) trdp.SendParams {
	return trdp.SendParams{QoS: c.QoS, TTL: c.TTL, Vlan: c.Vlan, TSN: c.TSN, Retries: c.Retries}
}
