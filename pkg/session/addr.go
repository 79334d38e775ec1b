package session

import (
	"net"

	trdp "github.com/tallowtrack/gotrdp"
)

// resolveDest computes the UDP destination for an outgoing publish or
// MD send from an Addr's multicast group (preferred) or unicast
// destination IP. A zero result means "no fixed destination" (pure
// receive-only registrations never call this).
func resolveDest(addr trdp.Addr, port int) *net.UDPAddr {
	ip := addr.McGroup
	if ip == 0 {
		ip = addr.DstIp
	}
	if ip == 0 {
		return nil
	}
	return &net.UDPAddr{IP: trdp.Uint32ToIP(ip), Port: port}
}
