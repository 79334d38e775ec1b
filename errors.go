package trdp

import (
	"errors"
	"fmt"
)

// Kind is the flat error-kind enumeration of spec.md §7. It is carried
// alongside the Go error so callers can switch on it without string
// matching.
type Kind int

const (
	KindNone Kind = iota
	KindParam
	KindNoInit
	KindNoSession
	KindNoData // NODATA_ERR: no data arrived yet
	KindTimeout
	KindReplyTimeout
	KindConfirmTimeout
	KindAppReplyTimeout
	KindAppConfirmTimeout
	KindReqConfirmTimeout
	KindNoListener // NOLIST_ERR: no matching listener
	KindSize
	KindWire
	KindCRC
	KindTopo
	KindSocket
	KindIO
	KindWouldBlock
	KindMem
	KindSema
	KindMutex
	KindUnresolved // DNR could not resolve a URI
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NO_ERR"
	case KindParam:
		return "PARAM_ERR"
	case KindNoInit:
		return "NOINIT_ERR"
	case KindNoSession:
		return "NOSESSION_ERR"
	case KindNoData:
		return "NODATA_ERR"
	case KindTimeout:
		return "TIMEOUT_ERR"
	case KindReplyTimeout:
		return "REPLYTO_ERR"
	case KindConfirmTimeout:
		return "CONFIRMTO_ERR"
	case KindAppReplyTimeout:
		return "APP_REPLYTO_ERR"
	case KindAppConfirmTimeout:
		return "APP_CONFIRMTO_ERR"
	case KindReqConfirmTimeout:
		return "REQCONFIRMTO_ERR"
	case KindNoListener:
		return "NOLIST_ERR"
	case KindSize:
		return "SIZE_ERR"
	case KindWire:
		return "WIRE_ERR"
	case KindCRC:
		return "CRC_ERR"
	case KindTopo:
		return "TOPO_ERR"
	case KindSocket:
		return "SOCK_ERR"
	case KindIO:
		return "IO_ERR"
	case KindWouldBlock:
		return "BLOCK_ERR"
	case KindMem:
		return "MEM_ERR"
	case KindSema:
		return "SEMA_ERR"
	case KindMutex:
		return "MUTEX_ERR"
	case KindUnresolved:
		return "UNRESOLVED_ERR"
	default:
		return "UNKNOWN_ERR"
	}
}

// Error wraps a Kind with a descriptive message, keeping errors.Is usable
// against the sentinel values below the way callers of the teacher's flat
// sentinel errors (errors.go) expect.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrParam             = newErr(KindParam, "error in function arguments")
	ErrNoInit            = newErr(KindNoInit, "session not initialized")
	ErrNoSession         = newErr(KindNoSession, "no such session")
	ErrNoData            = newErr(KindNoData, "no data has arrived yet")
	ErrTimeout           = newErr(KindTimeout, "operation timed out")
	ErrReplyTimeout      = newErr(KindReplyTimeout, "reply timeout expired")
	ErrConfirmTimeout    = newErr(KindConfirmTimeout, "confirm timeout expired")
	ErrAppReplyTimeout   = newErr(KindAppReplyTimeout, "application reply timeout expired")
	ErrAppConfirmTimeout = newErr(KindAppConfirmTimeout, "application confirm timeout expired")
	ErrReqConfirmTimeout = newErr(KindReqConfirmTimeout, "requester confirm timeout expired")
	ErrNoListener        = newErr(KindNoListener, "no matching listener registered")
	ErrSize              = newErr(KindSize, "packet size out of bounds")
	ErrWire              = newErr(KindWire, "malformed wire packet")
	ErrCRC               = newErr(KindCRC, "header CRC does not match")
	ErrTopo              = newErr(KindTopo, "topology counters do not match filter")
	ErrSocket            = newErr(KindSocket, "socket layer error")
	ErrIO                = newErr(KindIO, "I/O error")
	ErrWouldBlock        = newErr(KindWouldBlock, "operation would block")
	ErrMem               = newErr(KindMem, "allocation failed, pool is full")
	ErrSema              = newErr(KindSema, "semaphore wait failed")
	ErrMutex             = newErr(KindMutex, "mutex error")
	ErrUnresolved        = newErr(KindUnresolved, "URI could not be resolved")
)

// Wrap produces an *Error of the given kind carrying ctx as added context,
// chaining the original error's text the way the teacher's call sites
// annotate a sentinel with fmt.Errorf("...: %w", err).
func Wrap(kind Kind, ctx string, err error) *Error {
	if err != nil {
		return newErr(kind, ctx+": "+err.Error())
	}
	return newErr(kind, ctx)
}

// KindOf extracts the Kind carried by err, or KindNone if err is nil and
// KindIO if err is a plain (non-*Error) error — used by callers that need
// to feed a per-socket statistics bucket (§4.1) without a type switch.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}
