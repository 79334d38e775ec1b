package trdp

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SlotType distinguishes the four socket flavors the pool multiplexes
// (spec.md §3 socket-pool slot).
type SlotType int

const (
	SlotPDUDP SlotType = iota
	SlotPDTSN
	SlotMDUDP
	SlotMDTCP
)

func (t SlotType) String() string {
	switch t {
	case SlotPDUDP:
		return "PD-UDP"
	case SlotPDTSN:
		return "PD-TSN"
	case SlotMDUDP:
		return "MD-UDP"
	case SlotMDTCP:
		return "MD-TCP"
	default:
		return "?"
	}
}

// SendParams is the per-slot transmit configuration (spec.md §3).
type SendParams struct {
	QoS      uint8 // mapped to SO_PRIORITY
	TTL      uint8
	McTTL    uint8
	Vlan     uint16 // 0 disables VLAN/TSN binding
	TSN      bool
	Retries  uint8
}

// SocketOptions are the bind-time socket options of the OS abstraction
// contract (spec.md §6 setsockopt list).
type SocketOptions struct {
	ReuseAddr     bool
	NonBlocking   bool
	NoMcLoop      bool
	NoUdpChecksum bool
	Raw           bool
}

// applySockopts sets TTL, multicast TTL/loop, priority (QoS) and
// reuse-addr on a raw UDP socket file descriptor, the way the teacher's own
// raw-socket backends (pkg/can/socketcanv2) reach past net.Conn via
// golang.org/x/sys/unix for options the standard library doesn't expose.
func applySockopts(conn *net.UDPConn, params SendParams, opts SocketOptions) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Wrap(KindSocket, "syscall conn", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ifd := int(fd)
		if opts.ReuseAddr {
			if e := unix.SetsockoptInt(ifd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				sockErr = e
				return
			}
		}
		if params.TTL != 0 {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_TTL, int(params.TTL)); e != nil {
				sockErr = e
				return
			}
		}
		if params.McTTL != 0 {
			if e := unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, int(params.McTTL)); e != nil {
				sockErr = e
				return
			}
		}
		loop := 1
		if opts.NoMcLoop {
			loop = 0
		}
		_ = unix.SetsockoptInt(ifd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, loop)
		if params.QoS != 0 {
			_ = unix.SetsockoptInt(ifd, unix.SOL_SOCKET, unix.SO_PRIORITY, int(params.QoS))
		}
	})
	if err != nil {
		return Wrap(KindSocket, "syscall control", err)
	}
	if sockErr != nil {
		return Wrap(KindSocket, "setsockopt", sockErr)
	}
	return nil
}

// joinMulticast issues an IP_ADD_MEMBERSHIP for group on the interface
// identified by ifaceAddr (0 meaning "any"), the OS abstraction's
// join_mc contract (spec.md §6).
func joinMulticast(conn *net.UDPConn, group, ifaceAddr uint32) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Wrap(KindSocket, "syscall conn", err)
	}
	mreq := &unix.IPMreq{}
	putIPv4(mreq.Multiaddr[:], group)
	putIPv4(mreq.Interface[:], ifaceAddr)
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	})
	if err != nil {
		return Wrap(KindSocket, "syscall control", err)
	}
	if sockErr != nil {
		return Wrap(KindSocket, "join multicast", sockErr)
	}
	return nil
}

// leaveMulticast issues an IP_DROP_MEMBERSHIP, the OS abstraction's
// leave_mc contract.
func leaveMulticast(conn *net.UDPConn, group, ifaceAddr uint32) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return Wrap(KindSocket, "syscall conn", err)
	}
	mreq := &unix.IPMreq{}
	putIPv4(mreq.Multiaddr[:], group)
	putIPv4(mreq.Interface[:], ifaceAddr)
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_DROP_MEMBERSHIP, mreq)
	})
	if err != nil {
		return Wrap(KindSocket, "syscall control", err)
	}
	if sockErr != nil {
		return Wrap(KindSocket, "leave multicast", sockErr)
	}
	return nil
}

func putIPv4(dst []byte, addr uint32) {
	dst[0] = byte(addr >> 24)
	dst[1] = byte(addr >> 16)
	dst[2] = byte(addr >> 8)
	dst[3] = byte(addr)
}

// IPToUint32 converts a net.IP (v4) to the host's u32 representation used
// throughout Addr/Topo.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Uint32ToIP is the inverse of IPToUint32.
func Uint32ToIP(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// determineBindAddr implements spec.md §4.2 step 3's bind-address rule:
// receive sockets bind to (iface, port) or (0, port) for multicast; send
// sockets may bind to the outgoing interface address.
func determineBindAddr(srcIp, mcGroup uint32, rcvMostly bool) net.IP {
	if rcvMostly && mcGroup != 0 {
		return net.IPv4zero
	}
	if srcIp != 0 {
		return Uint32ToIP(srcIp)
	}
	return net.IPv4zero
}

// newVlanInterfaceName derives the TSN/VLAN sub-interface name the pool
// binds to for a given VLAN ID, per spec.md §4.2 step 4.
func newVlanInterfaceName(parent string, vlanId uint16) string {
	return fmt.Sprintf("%s.%d", parent, vlanId)
}

// ensureVlanInterface looks up or creates a VLAN sub-interface. Creating a
// net device requires CAP_NET_ADMIN and rtnetlink, which is out of scope
// for this package (the OS abstraction, §6, owns "create/name VLAN
// sub-interfaces"); here we only check for an existing interface matching
// the derived name and fail with ErrSocket otherwise, mirroring spec.md's
// "else fail the request".
func ensureVlanInterface(parent string, vlanId uint16) (string, error) {
	name := newVlanInterfaceName(parent, vlanId)
	if _, err := net.InterfaceByName(name); err != nil {
		return "", Wrap(KindSocket, "vlan interface "+name+" absent and uncreatable", err)
	}
	return name, nil
}
