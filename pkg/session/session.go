// Package session implements the cooperative scheduler of spec.md C6:
// a single session object that owns a socket pool, the PD queues and
// the MD session table, and drives all three from one
// get_interval/process loop. Grounded on the teacher's
// pkg/network/network.go (the object that owns and wires every
// subsystem together) and pkg/node/controller.go (ticker-driven
// goroutines for cyclic vs. event work).
package session

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/config"
	"github.com/tallowtrack/gotrdp/pkg/dnr"
	"github.com/tallowtrack/gotrdp/pkg/md"
	"github.com/tallowtrack/gotrdp/pkg/packet"
	"github.com/tallowtrack/gotrdp/pkg/pd"
	"github.com/tallowtrack/gotrdp/pkg/srm"
	"github.com/tallowtrack/gotrdp/pkg/ttdb"
)

// Session is the top-level handle of spec.md §9's "owned value" rewrite
// of the reference source's global session-list: every public entry
// point hangs off this struct instead of a process-wide table.
type Session struct {
	cfg    config.Session
	logger *slog.Logger

	pool    *trdp.SocketPool
	queues  *pd.Queues
	mdTable *md.Table

	// Directory services of spec.md §4.7/§4.8, wired on demand by
	// EnableDirectoryServices; nil otherwise.
	dnrClient  *dnr.Client
	srmClient  *srm.Client
	ttdbClient *ttdb.Client

	// Two mutexes per spec.md §5: PD state and MD state may proceed in
	// parallel but a caller must never hold both at once.
	pdMu sync.Mutex
	mdMu sync.Mutex

	rx     chan rxFrame
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readerMu      sync.Mutex
	startedReader map[*trdp.Slot]bool

	topoMu sync.Mutex
	topo   trdp.Topo

	// mdPeers tracks the MD-TCP listener's accepted peer connections by
	// source IP (spec.md §4.4 "Incoming connections are tracked per peer
	// IP; a second connection from the same peer replaces the older
	// one"), each with its own reassembly state since one listening slot
	// fans out to many peer streams.
	mdPeerMu sync.Mutex
	mdPeers  map[uint32]*mdPeerConn
}

type mdPeerConn struct {
	conn       net.Conn
	reassembly *trdp.ReadState
}

type rxFrame struct {
	slot      *trdp.Slot
	tcp       bool
	srcIp     uint32
	srcAddr   *net.UDPAddr // nil for TCP frames
	tcpConn   net.Conn     // the specific TCP connection this frame arrived on
	multicast bool         // true if the packet's destination was a joined multicast group
	data      []byte
}

// New creates a session from cfg. Call Run to start the scheduler loop.
func New(cfg config.Session, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:           cfg,
		logger:        logger.With("component", "session"),
		pool:          trdp.NewSocketPool(),
		queues:        pd.NewQueues(),
		mdTable:       md.NewTable(),
		rx:            make(chan rxFrame, 256),
		startedReader: make(map[*trdp.Slot]bool),
		mdPeers:       make(map[uint32]*mdPeerConn),
	}
	return s
}

// Pool, Queues and MD expose the owned subsystems for registration calls
// that live in publish.go/subscribe.go/request.go.
func (s *Session) Pool() *trdp.SocketPool { return s.pool }
func (s *Session) Queues() *pd.Queues     { return s.queues }
func (s *Session) MD() *md.Table          { return s.mdTable }

// Run starts the scheduler's background goroutines: one reader per
// socket-pool slot feeding s.rx, and a ticker driving Process at the
// configured cycle time. It blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	ticker := time.NewTicker(s.cycleTime())
	defer ticker.Stop()
	s.logger.Info("scheduler started", "cycle", s.cycleTime())

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Process(time.Now())
		case frame := <-s.rx:
			s.dispatch(time.Now(), frame)
		}
		s.ensureReaders(ctx)
	}
}

// Stop cancels the scheduler loop started by Run.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) cycleTime() time.Duration {
	if s.cfg.CycleTime <= 0 {
		return 10 * time.Millisecond
	}
	return s.cfg.CycleTime
}

// ensureReaders starts a reader goroutine for every socket-pool slot
// that doesn't have one yet, the Go-idiomatic substitute for spec.md
// §4.6's raw fd-set: one blocking Read per socket, multiplexed onto a
// single channel instead of a select() over file descriptors.
func (s *Session) ensureReaders(ctx context.Context) {
	s.readerMu.Lock()
	defer s.readerMu.Unlock()

	for _, slot := range s.pool.Slots() {
		if s.startedReader[slot] {
			continue
		}
		s.startedReader[slot] = true
		s.wg.Add(1)
		go s.readSlot(ctx, slot)
	}
}

func (s *Session) readSlot(ctx context.Context, slot *trdp.Slot) {
	defer s.wg.Done()
	if conn := slot.Conn(); conn != nil {
		s.readUDP(ctx, slot, conn)
		return
	}
	if ln := slot.TCPListener(); ln != nil {
		s.acceptMDTCP(ctx, slot, ln)
		return
	}
	if conn := slot.TCPConn(); conn != nil {
		s.readTCP(ctx, slot, conn)
	}
}

func (s *Session) readUDP(ctx context.Context, slot *trdp.Slot, conn *net.UDPConn) {
	buf := make([]byte, packet.MaxPDPacketSize)
	if slot.Type == trdp.SlotMDUDP {
		buf = make([]byte, packet.MaxMDPacketSize)
	}
	pktConn := slot.PacketConn()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, cm, src, err := pktConn.ReadFrom(buf)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		addr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		srcIp := trdp.IPToUint32(addr.IP)
		multicast := cm != nil && slot.IsMulticastGroup(trdp.IPToUint32(cm.Dst))
		select {
		case s.rx <- rxFrame{slot: slot, tcp: false, srcIp: srcIp, srcAddr: addr, multicast: multicast, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// readTCP drives the dial-side MD-TCP slot's single persistent connection
// (spec.md §4.4 "Sending uses the peer's corner-IP"), reassembling the
// byte stream through the slot's own ReadState before emitting frames.
func (s *Session) readTCP(ctx context.Context, slot *trdp.Slot, conn net.Conn) {
	var srcIp uint32
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		srcIp = trdp.IPToUint32(tcpAddr.IP)
	}
	s.readTCPStream(ctx, slot, conn, srcIp, slot.Reassembly())
}

// acceptMDTCP runs the MD-TCP listener's passive-accept loop (spec.md
// §4.4 "Listeners reuse a single passive-accept socket managed by the
// session"), spawning a per-peer reader for every accepted connection.
func (s *Session) acceptMDTCP(ctx context.Context, slot *trdp.Slot, ln *net.TCPListener) {
	for {
		_ = ln.SetDeadline(time.Now().Add(time.Second))
		conn, err := ln.Accept()
		select {
		case <-ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		var srcIp uint32
		if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			srcIp = trdp.IPToUint32(tcpAddr.IP)
		}
		reassembly := s.replaceMDPeer(srcIp, conn)
		s.wg.Add(1)
		go func(conn net.Conn, srcIp uint32, reassembly *trdp.ReadState) {
			defer s.wg.Done()
			s.readTCPStream(ctx, slot, conn, srcIp, reassembly)
		}(conn, srcIp, reassembly)
	}
}

// replaceMDPeer registers conn as the live connection for srcIp, closing
// and draining whatever connection previously held that slot (spec.md
// §4.4 "a second connection from the same peer replaces the older one,
// and drains its pending sessions").
func (s *Session) replaceMDPeer(srcIp uint32, conn net.Conn) *trdp.ReadState {
	s.mdPeerMu.Lock()
	old := s.mdPeers[srcIp]
	reassembly := trdp.NewReadState()
	s.mdPeers[srcIp] = &mdPeerConn{conn: conn, reassembly: reassembly}
	s.mdPeerMu.Unlock()

	if old != nil {
		_ = old.conn.Close()
		s.mdMu.Lock()
		s.mdTable.DropTCPPeer(srcIp)
		s.mdMu.Unlock()
	}
	return reassembly
}

// readTCPStream reads raw bytes off conn, reassembles them into complete
// MD frames via reassembly (spec.md §4.4's header-then-payload staging
// buffer) and pushes each one to s.rx tagged with conn so replies can be
// written back on the exact connection the request arrived on.
func (s *Session) readTCPStream(ctx context.Context, slot *trdp.Slot, conn net.Conn, srcIp uint32, reassembly *trdp.ReadState) {
	buf := make([]byte, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		frames, ferr := reassembly.Feed(buf[:n])
		if ferr != nil {
			return
		}
		for _, data := range frames {
			select {
			case s.rx <- rxFrame{slot: slot, tcp: true, srcIp: srcIp, tcpConn: conn, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}
