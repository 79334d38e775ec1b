package pd

import (
	"net"
	"sync"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// PublishCallback is invoked after every send, mirroring the "optional
// per-packet callback" of spec.md §3's Publisher entry.
type PublishCallback func(pub *Publisher)

// MarshalFunc converts a host payload to its wire representation
// in-place, the marshalling hook of spec.md §6.
type MarshalFunc func(dst, src []byte) (int, error)

// Publisher is one entry of the PD publish queue (spec.md §3/§4.3, C3).
type Publisher struct {
	mu sync.Mutex

	Addr     trdp.Addr
	Topo     trdp.Topo
	Interval time.Duration // 0 = send on request only
	RedGroup uint32        // 0 = non-redundant
	TCP      bool
	Slot     *trdp.Slot
	Dest     *net.UDPAddr // resolved destination for an unconnected UDP slot

	buf      []byte // header + pad4(payload)
	seq      uint32
	nextSend time.Time
	isLeader bool
	armed    bool // true once nextSend has been scheduled at least once

	Callback MarshalFunc
	OnSent   PublishCallback
}

// NewPublisher creates a publisher with a zeroed payload buffer of
// header+pad4(size) bytes (spec.md §4.3 "publish"). Per spec.md §4.3, the
// first transmission is scheduled to now+interval, never "immediately",
// to avoid a burst when redundancy leadership changes.
func NewPublisher(addr trdp.Addr, topo trdp.Topo, interval time.Duration, redGroup uint32, tcp bool, size int, now time.Time) *Publisher {
	p := &Publisher{
		Addr:     addr,
		Topo:     topo,
		Interval: interval,
		RedGroup: redGroup,
		TCP:      tcp,
		buf:      make([]byte, packet.PDHeaderSize+packet.Pad4(size)),
		isLeader: redGroup == 0, // non-redundant publishers always "lead"
	}
	p.scheduleNext(now)
	return p
}

func (p *Publisher) scheduleNext(now time.Time) {
	if p.Interval <= 0 {
		return
	}
	p.nextSend = now.Add(p.Interval)
	p.armed = true
}

// Put copies new payload into the publisher's buffer (or invokes the
// marshalling hook if configured) and flags the packet for CRC refresh on
// next send (spec.md §4.3 "put").
func (p *Publisher) Put(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload := p.buf[packet.PDHeaderSize:]
	if p.Callback != nil {
		n, err := p.Callback(payload, data)
		if err != nil {
			return err
		}
		for i := n; i < len(payload); i++ {
			payload[i] = 0
		}
		return nil
	}
	n := copy(payload, data)
	for i := n; i < len(payload); i++ {
		payload[i] = 0
	}
	return nil
}

// SetRedundant marks this publisher as the leader (or a follower) of its
// redundancy group (spec.md §4.3 "Redundancy"). Followers stay silent but
// keep their sequence counter advancing so a leadership switch produces
// no gap; the first send after becoming leader still respects the
// originally scheduled nextSend, not "now".
func (p *Publisher) SetRedundant(leader bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isLeader = leader
}

// IsLeader reports whether this publisher currently transmits.
func (p *Publisher) IsLeader() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isLeader
}

// Ready reports whether this publisher's deadline has passed.
func (p *Publisher) Ready(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Interval > 0 && p.armed && !now.Before(p.nextSend)
}

// NextDeadline returns the publisher's next scheduled send time, used by
// the scheduler's get_interval to compute the minimum wait.
func (p *Publisher) NextDeadline() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSend, p.Interval > 0 && p.armed
}

// Advance is called once per scheduler tick for every publisher whose
// deadline has passed. It always increments the sequence counter (so
// followers stay in step with the leader) and reschedules nextSend. It
// returns the ready-to-send wire bytes and true only when this publisher
// is the group's current leader; followers get false and must not
// transmit.
func (p *Publisher) Advance(now time.Time) (frame []byte, shouldSend bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	p.nextSend = p.nextSend.Add(p.Interval)
	if p.nextSend.Before(now) {
		p.nextSend = now.Add(p.Interval)
	}

	if !p.isLeader {
		return nil, false
	}
	packet.UpdatePDPacket(p.buf, p.seq)
	return p.buf, true
}

// BuildRequest builds a one-shot "Pr" (PD-Pull) request packet for
// sub's filter, to be sent to dstIp expecting a "Pp" reply from the
// nominated publisher (spec.md §4.3 "request").
func BuildRequest(addr trdp.Addr, topo trdp.Topo, dstIp, replyComId uint32, seq uint32) []byte {
	buf := make([]byte, packet.PDHeaderSize)
	h := &packet.PDHeader{
		SequenceCounter: seq,
		ProtocolVersion: packet.ProtocolVersion,
		MsgType:         packet.MsgPr,
		ComId:           addr.ComId,
		EtbTopoCnt:      topo.EtbTopoCnt,
		OpTrnTopoCnt:    topo.OpTrnTopoCnt,
		ReplyComId:      replyComId,
		ReplyIpAddress:  dstIp,
	}
	packet.EncodePDHeader(buf, h)
	return buf
}

// Sequence returns the publisher's last-used sequence counter.
func (p *Publisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
