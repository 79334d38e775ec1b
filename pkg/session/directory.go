package session

import (
	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/dnr"
	"github.com/tallowtrack/gotrdp/pkg/md"
	"github.com/tallowtrack/gotrdp/pkg/packet"
	"github.com/tallowtrack/gotrdp/pkg/pd"
	"github.com/tallowtrack/gotrdp/pkg/srm"
	"github.com/tallowtrack/gotrdp/pkg/ttdb"
)

// EnableDirectoryServices wires pkg/dnr, pkg/srm and pkg/ttdb onto this
// session's MD transport, each addressed at controller (this train's
// DNS/ECSP directory server). Call once before Run; the three clients
// are then reachable through DNR, SRM and TTDB.
//
// It also arms a PD100 TTDB_STATUS subscription and an MD listener for
// unsolicited TTDB_OP_DIR_INFO pushes, the two refresh paths spec.md
// §4.8 allows alongside an explicit request.
func (s *Session) EnableDirectoryServices(controller trdp.Addr) error {
	s.dnrClient = dnr.NewClient(s.cfg.MDDefault.ReplyTimeout, nil)
	s.dnrClient.SetSender(func(uris []string) error {
		addr := controller
		addr.ComId = dnr.ComIdReq
		sess, err := s.Request(addr, s.currentTopo(), false, 1, s.cfg.MDDefault.ReplyTimeout,
			s.cfg.MDDefault.ConfirmTimeout, int(s.cfg.MDDefault.Retries), dnr.EncodeRequest(uris))
		if err != nil {
			return err
		}
		sess.Callback = s.onDNRReply
		return nil
	})

	s.srmClient = srm.NewClient(s.cfg.MDDefault.ReplyTimeout, nil)
	s.srmClient.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		return s.requestDirectory(controller, comId, payload, s.onSRMReply)
	})

	s.ttdbClient = ttdb.NewClient(s.cfg.MDDefault.ReplyTimeout, nil)
	s.ttdbClient.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		return s.requestDirectory(controller, comId, payload, s.onTTDBReply)
	})

	statusAddr := controller
	statusAddr.ComId = ttdb.ComIdStatus
	if _, err := s.Subscribe(statusAddr, s.currentTopo(), s.cfg.PDDefault.Timeout, pd.TimeoutBehavior(s.cfg.PDDefault.TimeoutBehavior), s.onTTDBStatus); err != nil {
		return err
	}

	opDirAddr := controller
	opDirAddr.ComId = ttdb.ComIdOpDirInfo
	_, err := s.Listen(opDirAddr, false, s.onTTDBOpDirPush)
	return err
}

// requestDirectory issues one MD request carrying payload under comId
// against controller and arms cb as the session's reply callback,
// the shared plumbing behind pkg/srm and pkg/ttdb's SendFunc hooks.
func (s *Session) requestDirectory(controller trdp.Addr, comId uint32, payload []byte, cb md.Callback) (packet.SessionID, error) {
	addr := controller
	addr.ComId = comId
	sess, err := s.Request(addr, s.currentTopo(), false, 1, s.cfg.MDDefault.ReplyTimeout,
		s.cfg.MDDefault.ConfirmTimeout, int(s.cfg.MDDefault.Retries), payload)
	if err != nil {
		return packet.SessionID{}, err
	}
	sess.Callback = cb
	return sess.ID, nil
}

func (s *Session) onDNRReply(sess *md.Session, payload []byte, err error) {
	if err != nil {
		return
	}
	entries, decErr := dnr.DecodeReply(payload)
	if decErr != nil {
		s.logger.Warn("dnr: malformed TCN-DNS reply", "err", decErr)
		return
	}
	s.dnrClient.Deliver(entries)
}

func (s *Session) onSRMReply(sess *md.Session, payload []byte, err error) {
	if err != nil {
		return
	}
	s.srmClient.Deliver(sess.ID, payload)
}

func (s *Session) onTTDBReply(sess *md.Session, payload []byte, err error) {
	if err != nil {
		return
	}
	s.ttdbClient.Deliver(sess.ID, payload)
}

func (s *Session) onTTDBStatus(sub *pd.Subscriber, err error) {
	if err != nil {
		return
	}
	payload, getErr := sub.Get()
	if getErr != nil {
		return
	}
	if statusErr := s.ttdbClient.OnStatus(payload); statusErr != nil {
		s.logger.Warn("ttdb: malformed TTDB_STATUS payload", "err", statusErr)
	}
}

func (s *Session) onTTDBOpDirPush(sess *md.Session, payload []byte, err error) {
	if err != nil {
		return
	}
	if pushErr := s.ttdbClient.OnOpTrainDirectoryPush(payload); pushErr != nil {
		s.logger.Warn("ttdb: malformed TTDB_OP_DIR_INFO payload", "err", pushErr)
	}
}

// DNR, SRM and TTDB expose the directory-service clients wired by
// EnableDirectoryServices; nil until it has been called.
func (s *Session) DNR() *dnr.Client   { return s.dnrClient }
func (s *Session) SRM() *srm.Client   { return s.srmClient }
func (s *Session) TTDB() *ttdb.Client { return s.ttdbClient }
