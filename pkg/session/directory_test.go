package session

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/config"
	"github.com/tallowtrack/gotrdp/pkg/dnr"
	"github.com/tallowtrack/gotrdp/pkg/md"
	"github.com/tallowtrack/gotrdp/pkg/srm"
	"github.com/tallowtrack/gotrdp/pkg/ttdb"
)

// fastDirectoryConfig shortens every MD timeout so the negative-path
// tests below don't spend real wall-clock time waiting out the 1s
// config.Default() reply timeout.
func fastDirectoryConfig() config.Session {
	cfg := config.Default()
	cfg.CycleTime = 5 * time.Millisecond
	cfg.MDDefault.ReplyTimeout = 50 * time.Millisecond
	cfg.MDDefault.ConfirmTimeout = 50 * time.Millisecond
	return cfg
}

func runSession(t *testing.T, cfg config.Session) *Session {
	s := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s
}

// TestDNRTimesOutWithoutTCNDNSServer exercises EnableDirectoryServices'
// DNR wiring over a real MD-UDP socket: with no TCN-DNS responder on
// the far end, the outgoing request is genuinely sent and the client
// surfaces dnr.ErrTimeout rather than hanging.
func TestDNRTimesOutWithoutTCNDNSServer(t *testing.T) {
	s := runSession(t, fastDirectoryConfig())
	controller := trdp.Addr{DstIp: trdp.IPToUint32(net.ParseIP("127.0.0.1").To4())}
	require.NoError(t, s.EnableDirectoryServices(controller))

	_, err := s.DNR().UriToAddr("devX.anyVeh.lCst.lClTrn.lTrn", trdp.Topo{})
	require.ErrorIs(t, err, dnr.ErrTimeout)
}

// TestSRMTimesOutWithoutRegistryController mirrors the DNR case for
// pkg/srm's DeleteServices.
func TestSRMTimesOutWithoutRegistryController(t *testing.T) {
	s := runSession(t, fastDirectoryConfig())
	controller := trdp.Addr{DstIp: trdp.IPToUint32(net.ParseIP("127.0.0.1").To4())}
	require.NoError(t, s.EnableDirectoryServices(controller))

	err := s.SRM().DeleteServices([]uint32{7})
	require.ErrorIs(t, err, srm.ErrTimeout)
}

// TestTTDBGetTrainDirectoryRoundTripsAcrossTwoSessions wires one
// session as the TTDB client and a second, independently bound session
// as the stand-in train topology controller, so the full
// Request -> MD-UDP wire -> Listen -> Reply -> Deliver -> decode path
// runs over real sockets between two distinct MD session tables
// (loopback aliases 127.0.0.2 and 127.0.0.3 avoid the port collision a
// single shared table would hit matching a request against its own
// in-flight send).
func TestTTDBGetTrainDirectoryRoundTripsAcrossTwoSessions(t *testing.T) {
	clientIp := trdp.IPToUint32(net.ParseIP("127.0.0.2").To4())
	serverIp := trdp.IPToUint32(net.ParseIP("127.0.0.3").To4())

	client := runSession(t, fastDirectoryConfig())
	controller := trdp.Addr{SrcIp: clientIp, DstIp: serverIp}
	require.NoError(t, client.EnableDirectoryServices(controller))

	server := runSession(t, fastDirectoryConfig())
	// trnAddr.SrcIp filters by the incoming request's sender (the
	// client), not the server's own address: Listen's receiving socket
	// always binds the wildcard address, so the listener's SrcIp is
	// purely matchListener's sender filter (pkg/md/table.go).
	trnAddr := trdp.Addr{SrcIp: clientIp, ComId: ttdb.ComIdTrainDirReq}
	_, err := server.Listen(trnAddr, false, func(sess *md.Session, payload []byte, err error) {
		if err != nil {
			return
		}
		// Hand-build a TTDB_TRN_DIR_REP payload: etbTopoCnt,
		// opTrnTopoCnt, consist count, then one 80-byte consist label,
		// mirroring pkg/ttdb/types.go's encodeTrainDirectory layout.
		buf := binary.BigEndian.AppendUint32(nil, 1)
		buf = binary.BigEndian.AppendUint32(buf, 0)
		buf = binary.BigEndian.AppendUint16(buf, 1)
		label := make([]byte, 80)
		copy(label, "cst01")
		buf = append(buf, label...)
		require.NoError(t, server.Reply(sess.ID, buf, false))
	})
	require.NoError(t, err)

	dir, err := client.TTDB().GetTrainDirectory(trdp.Topo{EtbTopoCnt: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"cst01"}, dir.Consists)
}
