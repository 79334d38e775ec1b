package packet

// Topo carries the two topology counters used both as packet fields and as
// a receive filter (spec.md §3). A zero filter field accepts anything; a
// nonzero filter field requires an exact match, per Table A.5/A.21.
type Topo struct {
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
}

// Matches reports whether pkt's counters satisfy this Topo acting as a
// filter.
func (filter Topo) Matches(pkt Topo) bool {
	if filter.EtbTopoCnt != 0 && filter.EtbTopoCnt != pkt.EtbTopoCnt {
		return false
	}
	if filter.OpTrnTopoCnt != 0 && filter.OpTrnTopoCnt != pkt.OpTrnTopoCnt {
		return false
	}
	return true
}
