package dnr

import (
	"encoding/binary"
	"errors"
)

// MD comIds of the TCN-DNS telegrams, from iec61375-2-3.h.
const (
	ComIdReq = 140 // TCN_DNS_REQ_COMID
	ComIdRep = 141 // TCN_DNS_REP_COMID
)

const uriLen = 80 // fixed wire width of one URI label, room for a full host URI such as "devDNS.anyVeh.lCst.lClTrn.lTrn"

var errShortPayload = errors.New("dnr: truncated TCN-DNS payload")

func encodeLabel(buf []byte, s string) []byte {
	field := make([]byte, uriLen)
	copy(field, s)
	return append(buf, field...)
}

func decodeLabel(b []byte) (string, error) {
	if len(b) < uriLen {
		return "", errShortPayload
	}
	for i, c := range b[:uriLen] {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b[:uriLen]), nil
}

// EncodeRequest builds a TCN_DNS_REQUEST payload: a count followed by
// that many fixed-width URI labels (BuildRequest's batch).
func EncodeRequest(uris []string) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(uris)))
	for _, u := range uris {
		buf = encodeLabel(buf, u)
	}
	return buf
}

// DecodeRequest is the TCN-DNS server side's counterpart to
// EncodeRequest, used by a responder to learn which URIs were asked.
func DecodeRequest(b []byte) ([]string, error) {
	if len(b) < 2 {
		return nil, errShortPayload
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	off := 2
	uris := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+uriLen > len(b) {
			return nil, errShortPayload
		}
		u, err := decodeLabel(b[off:])
		if err != nil {
			return nil, err
		}
		uris = append(uris, u)
		off += uriLen
	}
	return uris, nil
}

// EncodeReply builds a TCN_DNS_REPLY payload: a count followed by that
// many (uri, ip, etbTopoCnt, opTrnTopoCnt) answers.
func EncodeReply(entries []Entry) []byte {
	buf := binary.BigEndian.AppendUint16(nil, uint16(len(entries)))
	for _, e := range entries {
		buf = encodeLabel(buf, e.URI)
		buf = binary.BigEndian.AppendUint32(buf, e.IP)
		buf = binary.BigEndian.AppendUint32(buf, e.EtbTopoCnt)
		buf = binary.BigEndian.AppendUint32(buf, e.OpTrnTopoCnt)
	}
	return buf
}

// DecodeReply parses a TCN_DNS_REPLY payload into cache entries, the
// form Deliver expects.
func DecodeReply(b []byte) ([]Entry, error) {
	if len(b) < 2 {
		return nil, errShortPayload
	}
	n := int(binary.BigEndian.Uint16(b[0:2]))
	off := 2
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		if off+uriLen+12 > len(b) {
			return nil, errShortPayload
		}
		uri, err := decodeLabel(b[off:])
		if err != nil {
			return nil, err
		}
		off += uriLen
		ip := binary.BigEndian.Uint32(b[off:])
		off += 4
		etb := binary.BigEndian.Uint32(b[off:])
		off += 4
		opTrn := binary.BigEndian.Uint32(b[off:])
		off += 4
		entries = append(entries, Entry{URI: uri, IP: ip, EtbTopoCnt: etb, OpTrnTopoCnt: opTrn})
	}
	return entries, nil
}
