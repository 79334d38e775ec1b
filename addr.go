package trdp

import "github.com/tallowtrack/gotrdp/pkg/packet"

// Addr is the addressing key of spec.md §3: a (comId, srcIp, dstIp) triple
// with the optional fields that narrow a match. Zero means wildcard for
// SrcIp/DstIp; a nonzero McGroup narrows receive to that multicast group.
type Addr struct {
	ComId     uint32
	SrcIp     uint32
	SrcIpHigh uint32 // 0 disables range matching; otherwise [SrcIp, SrcIpHigh]
	DstIp     uint32
	McGroup   uint32
	ServiceId uint32
}

// Topo is the pair of topology counters carried on the wire and matched as
// a receive filter; see pkg/packet.Topo for the matching rule (spec.md §3,
// invariant exercised by property 4 in spec.md §8).
type Topo = packet.Topo

// MatchesSrc reports whether srcIp satisfies this Addr's source filter:
// wildcard (SrcIp == 0), a single address, or an inclusive range when
// SrcIpHigh is set.
func (a Addr) MatchesSrc(srcIp uint32) bool {
	if a.SrcIp == 0 {
		return true
	}
	if a.SrcIpHigh != 0 {
		return srcIp >= a.SrcIp && srcIp <= a.SrcIpHigh
	}
	return srcIp == a.SrcIp
}

// MatchesDst reports whether dstIp satisfies this Addr's destination
// filter. A nonzero McGroup takes precedence: dstIp must equal that
// multicast group and DstIp is not consulted. Otherwise a zero DstIp is
// a wildcard.
func (a Addr) MatchesDst(dstIp uint32) bool {
	if a.McGroup != 0 {
		return dstIp == a.McGroup
	}
	if a.DstIp == 0 {
		return true
	}
	return dstIp == a.DstIp
}

// Conflicts reports whether two Addr values would violate invariant 4 of
// spec.md §3: no two subscribers in the same session may register
// identical (comId, srcIp, srcIpHigh, dstIp, serviceId).
func (a Addr) Conflicts(b Addr) bool {
	return a.ComId == b.ComId &&
		a.SrcIp == b.SrcIp &&
		a.SrcIpHigh == b.SrcIpHigh &&
		a.DstIp == b.DstIp &&
		a.ServiceId == b.ServiceId
}
