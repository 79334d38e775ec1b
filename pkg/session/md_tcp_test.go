package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/md"
)

// TestMDOverTCPRequestReplyRoundTrip exercises the full MD-TCP path end
// to end (spec.md §4.4 "TCP specifics"): a client dials a request onto a
// server's passive-accept listener, the server's accept loop spawns a
// per-peer reassembly reader, and the reply is written back on that exact
// accepted connection rather than through the shared listening socket.
func TestMDOverTCPRequestReplyRoundTrip(t *testing.T) {
	loopback := trdp.IPToUint32(net.ParseIP("127.0.0.1").To4())

	cfg := fastDirectoryConfig()
	cfg.MDDefault.TCPPort = 28225

	server := runSession(t, cfg)
	client := runSession(t, cfg)

	reqAddr := trdp.Addr{ComId: 500}
	_, err := server.Listen(reqAddr, true, func(sess *md.Session, payload []byte, err error) {
		if err != nil {
			return
		}
		require.NoError(t, server.Reply(sess.ID, []byte("pong"), false))
	})
	require.NoError(t, err)

	replyCh := make(chan []byte, 1)
	clientAddr := trdp.Addr{ComId: 500, DstIp: loopback}
	sess, err := client.Request(clientAddr, trdp.Topo{}, true, 1, time.Second, time.Second, 0, []byte("ping"))
	require.NoError(t, err)
	sess.Callback = func(sess *md.Session, payload []byte, err error) {
		if err == nil {
			replyCh <- payload
		}
	}

	select {
	case payload := <-replyCh:
		require.Equal(t, "pong", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("client never received an MD-TCP reply")
	}
}

// TestMDOverTCPSecondConnectionReplacesFirst exercises spec.md §4.4 "a
// second connection from the same peer replaces the older one": once a
// second TCP connection from the same source IP is accepted, the peer
// table must track the new connection and close the stale one.
func TestMDOverTCPSecondConnectionReplacesFirst(t *testing.T) {
	loopback := trdp.IPToUint32(net.ParseIP("127.0.0.1").To4())

	cfg := fastDirectoryConfig()
	cfg.MDDefault.TCPPort = 28226
	server := runSession(t, cfg)

	first, err := net.Dial("tcp", "127.0.0.1:28226")
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool {
		server.mdPeerMu.Lock()
		_, ok := server.mdPeers[loopback]
		server.mdPeerMu.Unlock()
		return ok
	}, time.Second, 5*time.Millisecond, "server never registered the first peer connection")

	second, err := net.Dial("tcp", "127.0.0.1:28226")
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool {
		server.mdPeerMu.Lock()
		peer, ok := server.mdPeers[loopback]
		server.mdPeerMu.Unlock()
		return ok && peer.conn.RemoteAddr().String() == second.LocalAddr().String()
	}, time.Second, 5*time.Millisecond, "server never replaced the first peer connection with the second")

	// The replaced connection is closed from the server side; a read on
	// it must observe EOF rather than hang.
	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	_, readErr := first.Read(buf)
	require.Error(t, readErr)
}
