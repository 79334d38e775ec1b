package trdp

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// maxMcGroupsPerSlot is N from spec.md §3: "up to N joined multicast
// groups (N≥16 per slot)".
const maxMcGroupsPerSlot = 16

// maxSlotsPerType bounds pool growth per spec.md §4.2 step 3 ("growing
// the pool up to its type-specific max").
var maxSlotsPerType = map[SlotType]int{
	SlotPDUDP: 64,
	SlotPDTSN: 16,
	SlotMDUDP: 64,
	SlotMDTCP: 64,
}

// SlotStats are per-socket counters for the validation failures of
// spec.md §4.1 plus send/receive tallies, modeled on the original
// implementation's trdp_utils.c accounting. Slot.Stats returns them; no
// code path in this module increments them, so every field reads zero.
type SlotStats struct {
	Sent      uint64
	Received  uint64
	SizeErr   uint64
	CRCErr    uint64
	VersionErr uint64
	WireErr   uint64
	TopoErr   uint64
}

// Slot is one socket-pool entry (spec.md §3 "Socket-pool slot").
type Slot struct {
	mu sync.Mutex

	Type      SlotType
	BindAddr  net.IP
	Port      int
	SrcAddr   net.IP
	Send      SendParams
	Options   SocketOptions
	RcvMostly bool

	usage    int
	mcGroups map[uint32]int // group -> refcount of users sharing the join

	// TCP-only fields.
	CornerIp          net.IP
	connectDeadline   time.Time
	sendNotOk         bool
	sendNotOkDeadline time.Time
	reassembly        *ReadState

	morituri bool

	udpConn *net.UDPConn
	pktConn *ipv4.PacketConn // wraps udpConn; carries the per-packet destination address
	tcpConn net.Conn
	tcpLn   net.Listener

	stats SlotStats
}

// Usage returns the slot's current reference count (invariant 2, §3).
func (s *Slot) Usage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Stats returns a copy of the slot's accumulated statistics.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Conn exposes the underlying UDP socket for send/receive by PD/MD queues.
func (s *Slot) Conn() *net.UDPConn { return s.udpConn }

// PacketConn exposes the ipv4.PacketConn wrapping this slot's UDP socket,
// so a reader can recover the packet's actual destination address
// (IP_PKTINFO) instead of only the sender's address.
func (s *Slot) PacketConn() *ipv4.PacketConn { return s.pktConn }

// IsMulticastGroup reports whether ip is one of the multicast groups
// this slot has joined (spec.md §4.2's per-slot joined-group set).
func (s *Slot) IsMulticastGroup(ip uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, joined := s.mcGroups[ip]
	return joined
}

// TCPConn exposes the underlying TCP connection, for MD-TCP slots.
func (s *Slot) TCPConn() net.Conn { return s.tcpConn }

// Reassembly exposes the dial-side MD-TCP slot's reassembly state (spec.md
// §4.4 "Received TCP is reassembled in a per-slot staging buffer"). A
// listening slot's accepted peer connections keep their own reassembly
// state instead, since one listener fans out to many peer streams.
func (s *Slot) Reassembly() *ReadState { return s.reassembly }

// TCPListener exposes the passive-accept socket of an RcvMostly MD-TCP
// slot (spec.md §4.4 "Listeners reuse a single passive-accept socket").
func (s *Slot) TCPListener() *net.TCPListener {
	ln, _ := s.tcpLn.(*net.TCPListener)
	return ln
}

// SocketPool is the shared table of UDP/TCP endpoints described in
// spec.md §4.2 (C2), reference-counted across every publisher, subscriber,
// MD session and listener that shares a slot. Grounded on the teacher's
// BusManager (bus_manager.go): one mutex-guarded table, shared by every
// subsystem, with subscribers (here: slot users) tracked by refcount.
type SocketPool struct {
	mu     sync.Mutex
	logger *slog.Logger
	slots  []*Slot
}

// NewSocketPool creates an empty pool.
func NewSocketPool() *SocketPool {
	return &SocketPool{logger: slog.Default().With("component", "socketpool")}
}

// SetLogger overrides the default logger.
func (p *SocketPool) SetLogger(l *slog.Logger) { p.logger = l }

// RequestParams bundles the arguments to Request (spec.md §4.2).
type RequestParams struct {
	Port        int
	Params      SendParams
	Options     SocketOptions
	SrcIp       uint32
	McGroup     uint32
	Type        SlotType
	RcvMostly   bool
	CornerIp    net.IP // MD-TCP only: the remote peer's address
	VlanParent  string // required when Params.Vlan != 0
	UseExisting *Slot  // reuse an already-open slot's fd, if provided
}

// Request implements spec.md §4.2's three-step allocation rule: reuse an
// existing fd, reuse a matching slot (joining a multicast group on it if
// needed), or allocate and open a new one.
func (p *SocketPool) Request(req RequestParams) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.UseExisting != nil {
		req.UseExisting.mu.Lock()
		req.UseExisting.usage++
		req.UseExisting.mu.Unlock()
		return req.UseExisting, nil
	}

	bindAddr := determineBindAddr(req.SrcIp, req.McGroup, req.RcvMostly)

	for _, slot := range p.slots {
		if slot.morituri {
			continue
		}
		if !p.matches(slot, req, bindAddr) {
			continue
		}
		slot.mu.Lock()
		if req.McGroup != 0 && req.RcvMostly {
			if err := p.joinGroupLocked(slot, req.McGroup, req.SrcIp); err != nil {
				slot.mu.Unlock()
				return nil, err
			}
		}
		slot.usage++
		slot.mu.Unlock()
		return slot, nil
	}

	total := 0
	for _, s := range p.slots {
		if s.Type == req.Type {
			total++
		}
	}
	if total >= maxSlotsPerType[req.Type] {
		return nil, ErrMem
	}

	slot, err := p.open(req, bindAddr)
	if err != nil {
		return nil, err
	}
	slot.usage = 1
	p.slots = append(p.slots, slot)
	return slot, nil
}

// matches implements the slot-reuse predicate of spec.md §4.2 step 2.
func (p *SocketPool) matches(slot *Slot, req RequestParams, bindAddr net.IP) bool {
	if slot.Type != req.Type {
		return false
	}
	// RcvMostly only changes MD-TCP's listen-vs-dial behaviour (open,
	// above); a UDP slot's ListenUDP socket is bidirectional regardless
	// of which way a given caller mostly uses it, so a publisher and a
	// subscriber on the same port legitimately share one slot.
	if req.Type == SlotMDTCP && slot.RcvMostly != req.RcvMostly {
		return false
	}
	if slot.Send != req.Params {
		return false
	}
	if slot.Port != req.Port {
		return false
	}
	if req.Type == SlotMDTCP && !slot.CornerIp.Equal(req.CornerIp) {
		return false
	}
	if !slot.BindAddr.Equal(bindAddr) && !slot.BindAddr.IsUnspecified() {
		return false
	}
	if req.McGroup != 0 {
		if len(slot.mcGroups) >= maxMcGroupsPerSlot {
			if _, joined := slot.mcGroups[req.McGroup]; !joined {
				return false
			}
		}
	}
	return true
}

// joinGroupLocked joins req group on slot, rolling back on failure per
// spec.md §4.2 step 2 ("rollback on failure"). Caller holds slot.mu.
func (p *SocketPool) joinGroupLocked(slot *Slot, group, ifaceAddr uint32) error {
	if _, already := slot.mcGroups[group]; already {
		slot.mcGroups[group]++
		return nil
	}
	if len(slot.mcGroups) >= maxMcGroupsPerSlot {
		return ErrMem
	}
	if slot.udpConn != nil {
		if err := joinMulticast(slot.udpConn, group, ifaceAddr); err != nil {
			return err
		}
	}
	if slot.mcGroups == nil {
		slot.mcGroups = make(map[uint32]int)
	}
	slot.mcGroups[group] = 1
	return nil
}

// open allocates and opens a brand-new slot (spec.md §4.2 step 3/4).
func (p *SocketPool) open(req RequestParams, bindAddr net.IP) (*Slot, error) {
	slot := &Slot{
		Type:      req.Type,
		BindAddr:  bindAddr,
		Port:      req.Port,
		SrcAddr:   Uint32ToIP(req.SrcIp),
		Send:      req.Params,
		Options:   req.Options,
		RcvMostly: req.RcvMostly,
		CornerIp:  req.CornerIp,
		mcGroups:  make(map[uint32]int),
	}

	if req.Params.Vlan != 0 {
		if req.VlanParent == "" {
			return nil, Wrap(KindParam, "vlan requested without parent interface", nil)
		}
		if _, err := ensureVlanInterface(req.VlanParent, req.Params.Vlan); err != nil {
			return nil, err
		}
	}

	switch req.Type {
	case SlotMDTCP:
		if req.RcvMostly {
			ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: bindAddr, Port: req.Port})
			if err != nil {
				return nil, Wrap(KindSocket, "listen tcp", err)
			}
			slot.tcpLn = ln
		} else {
			conn, err := net.DialTimeout("tcp", net.JoinHostPort(req.CornerIp.String(), strconv.Itoa(req.Port)), 5*time.Second)
			if err != nil {
				return nil, Wrap(KindSocket, "dial tcp", err)
			}
			slot.tcpConn = conn
		}
		slot.reassembly = NewReadState()

	default: // SlotPDUDP, SlotPDTSN, SlotMDUDP
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: bindAddr, Port: req.Port})
		if err != nil {
			return nil, Wrap(KindSocket, "listen udp", err)
		}
		if err := applySockopts(conn, req.Params, req.Options); err != nil {
			conn.Close()
			return nil, err
		}
		if req.McGroup != 0 {
			if err := joinMulticast(conn, req.McGroup, req.SrcIp); err != nil {
				conn.Close()
				return nil, err
			}
			slot.mcGroups[req.McGroup] = 1
		}
		slot.udpConn = conn
		pktConn := ipv4.NewPacketConn(conn)
		_ = pktConn.SetControlMessage(ipv4.FlagDst, true)
		slot.pktConn = pktConn
	}

	return slot, nil
}

// Release implements spec.md §4.2's release semantics: decrement usage,
// close at zero (or start a connect-timeout countdown for TCP sender
// slots), leave a multicast group when the last claimant releases it, and
// optionally sweep every morituri slot.
func (p *SocketPool) Release(slot *Slot, connectTimeout time.Duration, checkAll bool, mcGroupUsed uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot.mu.Lock()
	if mcGroupUsed != 0 {
		if n := slot.mcGroups[mcGroupUsed]; n > 1 {
			slot.mcGroups[mcGroupUsed] = n - 1
		} else if n == 1 {
			delete(slot.mcGroups, mcGroupUsed)
			if slot.udpConn != nil {
				_ = leaveMulticast(slot.udpConn, mcGroupUsed, IPToUint32(slot.SrcAddr))
			}
		}
	}
	slot.usage--
	usage := slot.usage
	isTCPSender := slot.Type == SlotMDTCP && !slot.RcvMostly
	slot.mu.Unlock()

	if usage <= 0 {
		if isTCPSender && connectTimeout > 0 {
			slot.mu.Lock()
			slot.sendNotOk = true
			slot.sendNotOkDeadline = time.Now().Add(connectTimeout)
			slot.mu.Unlock()
		} else {
			p.closeSlot(slot)
		}
	}

	if checkAll {
		p.sweepLocked()
	}
	return nil
}

// Sweep closes every slot marked morituri, or whose TCP connect-timeout
// countdown has expired (spec.md §4.2's checkAll / §6's scheduler-driven
// close). Called by the scheduler's Process pass.
func (p *SocketPool) Sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
}

func (p *SocketPool) sweepLocked() {
	now := time.Now()
	remaining := p.slots[:0]
	for _, slot := range p.slots {
		slot.mu.Lock()
		expired := slot.usage <= 0 && slot.sendNotOk && now.After(slot.sendNotOkDeadline)
		dead := slot.morituri || expired
		slot.mu.Unlock()
		if dead {
			p.closeSlotLocked(slot)
			continue
		}
		remaining = append(remaining, slot)
	}
	p.slots = remaining
}

func (p *SocketPool) closeSlot(slot *Slot) {
	slot.mu.Lock()
	slot.morituri = true
	slot.mu.Unlock()
}

func (p *SocketPool) closeSlotLocked(slot *Slot) {
	if slot.udpConn != nil {
		_ = slot.udpConn.Close()
	}
	if slot.tcpConn != nil {
		_ = slot.tcpConn.Close()
	}
	if slot.tcpLn != nil {
		_ = slot.tcpLn.Close()
	}
}

// Slots returns a snapshot of the pool's slots, for the scheduler's
// get_interval fd-set construction.
func (p *SocketPool) Slots() []*Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Len reports the number of live slots, for checking "no leaks"
// (spec.md §8 property 5).
func (p *SocketPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
