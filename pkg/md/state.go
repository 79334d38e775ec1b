// Package md implements the MD session table of spec.md C4: a finite
// state machine per session, duplicate-request detection, retry
// semantics and Me error replies. Grounded on the teacher's
// sdo_client.go/sdo_server.go (timer-driven state machine with logrus
// Debugf/Warnf logging and an explicit numeric state enum) and
// sdo_common.go (abort/status code table idiom, reused here for the
// reply-status vocabulary).
package md

import log "github.com/sirupsen/logrus"

// State is one of the 13 states of spec.md §4.4.
type State int

const (
	StateIdle State = iota
	StateTxNotifyArm
	StateTxRequestArm
	StateTxReplyArm
	StateTxReplyQueryArm
	StateTxConfirmArm
	StateTxRequestW4Reply
	StateTxReplyReceived
	StateTxReqW4ApConfirm
	StateRxNotifyReceived
	StateRxReqW4ApReply
	StateRxReplyQueryW4C
	StateRxConfReceived
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTxNotifyArm:
		return "TX_NOTIFY_ARM"
	case StateTxRequestArm:
		return "TX_REQUEST_ARM"
	case StateTxReplyArm:
		return "TX_REPLY_ARM"
	case StateTxReplyQueryArm:
		return "TX_REPLYQUERY_ARM"
	case StateTxConfirmArm:
		return "TX_CONFIRM_ARM"
	case StateTxRequestW4Reply:
		return "TX_REQUEST_W4REPLY"
	case StateTxReplyReceived:
		return "TX_REPLY_RECEIVED"
	case StateTxReqW4ApConfirm:
		return "TX_REQ_W4AP_CONFIRM"
	case StateRxNotifyReceived:
		return "RX_NOTIFY_RECEIVED"
	case StateRxReqW4ApReply:
		return "RX_REQ_W4AP_REPLY"
	case StateRxReplyQueryW4C:
		return "RX_REPLYQUERY_W4C"
	case StateRxConfReceived:
		return "RX_CONF_RECEIVED"
	default:
		log.Warnf("unknown md session state %d", int(s))
		return "UNKNOWN"
	}
}

// Direction distinguishes a session's send side from its receive side,
// per the "two lists per session" wording of spec.md §4.4.
type Direction int

const (
	DirSend Direction = iota
	DirReceive
)

// ReplyStatus is the Me/Mp status vocabulary. spec.md names only the
// first two; the rest comes from the wider IEC 61375-2-3 header
// (supplemented per DESIGN.md) since any real replier needs to tell
// them apart in logs and tests.
type ReplyStatus int32

const (
	ReplyOK ReplyStatus = iota
	ReplyNoReplierInst
	ReplyNoMemRepl
	ReplyNoListener
	ReplyNoReplier
	ReplyNoReplyTimeout
	ReplyNoConfirm
)

// Error lets a ReplyStatus be wrapped as the cause of an MD failure
// (trdp.Wrap's err argument), mirroring SDOAbortCode.Error() in the
// teacher's sdo_common.go.
func (r ReplyStatus) Error() string { return r.String() }

func (r ReplyStatus) String() string {
	switch r {
	case ReplyOK:
		return "OK"
	case ReplyNoReplierInst:
		return "NO_REPLIER_INST"
	case ReplyNoMemRepl:
		return "NO_MEM_REPL"
	case ReplyNoListener:
		return "NO_LISTENER"
	case ReplyNoReplier:
		return "NO_REPLIER"
	case ReplyNoReplyTimeout:
		return "NO_REPLY_TIMEOUT"
	case ReplyNoConfirm:
		return "NO_CONFIRM"
	default:
		return "UNKNOWN"
	}
}
