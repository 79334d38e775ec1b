// Package srm implements the Service Registry Manager client of
// spec.md §4.8 C8: add/update/delete/list service-registry entries, each
// built as a payload and sent through an MD request (no higher-layer
// marshalling engine is assumed — spec.md's Non-goals explicitly leave
// that to the caller). Grounded on the teacher's
// pkg/gateway/http/client.go (one typed request/response method per
// operation over a shared transport) and pkg/config/configurator.go
// (a thin wrapper struct around a lower-layer client).
package srm

import (
	"encoding/binary"
	"errors"
	"time"
)

// Field widths from the preliminary TTDB_SERVICE_REGISTRY_ENTRY layout
// in trdp_serviceRegistry.h.
const (
	nameLen = 32
	uriLen  = 80
	hostLen = 80
)

const entrySize = 4 + 4 + nameLen + uriLen + 4 + hostLen + 4 + 8 + 8

var errShortEntry = errors.New("srm: truncated service registry entry")

// ServiceEntry mirrors trdp_serviceRegistry.h's preliminary
// TTDB_SERVICE_REGISTRY_ENTRY.
type ServiceEntry struct {
	VersionMajor  uint8
	VersionMinor  uint8
	Flags         uint8 // TRDP_SR_FLAG_* bits
	InstanceId    uint8
	ServiceTypeId uint32 // lower 24 bits relevant
	ServiceName   string // truncated to 32 bytes on the wire
	ServiceURI    string // truncated to 80 bytes
	DestMcIP      uint32
	Hostname      string // truncated to 80 bytes
	MachineIP     uint32
	TimeToLive    time.Time
	LastUpdated   time.Time
}

// ServiceID packs instance and type the way a PD header's reserved
// field carries it: instanceId<<24 | serviceTypeId&0xFFFFFF.
func (e ServiceEntry) ServiceID() uint32 {
	return uint32(e.InstanceId)<<24 | (e.ServiceTypeId & 0x00FFFFFF)
}

func marshalEntry(buf []byte, e ServiceEntry) []byte {
	buf = append(buf, e.VersionMajor, e.VersionMinor, e.Flags, e.InstanceId)
	buf = binary.BigEndian.AppendUint32(buf, e.ServiceTypeId)
	buf = appendFixed(buf, e.ServiceName, nameLen)
	buf = appendFixed(buf, e.ServiceURI, uriLen)
	buf = binary.BigEndian.AppendUint32(buf, e.DestMcIP)
	buf = appendFixed(buf, e.Hostname, hostLen)
	buf = binary.BigEndian.AppendUint32(buf, e.MachineIP)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.TimeToLive.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.LastUpdated.Unix()))
	return buf
}

func appendFixed(buf []byte, s string, n int) []byte {
	field := make([]byte, n)
	copy(field, s)
	return append(buf, field...)
}

func unmarshalEntry(b []byte) (ServiceEntry, error) {
	if len(b) < entrySize {
		return ServiceEntry{}, errShortEntry
	}
	var e ServiceEntry
	e.VersionMajor, e.VersionMinor, e.Flags, e.InstanceId = b[0], b[1], b[2], b[3]
	off := 4
	e.ServiceTypeId = binary.BigEndian.Uint32(b[off:])
	off += 4
	e.ServiceName = trimField(b[off : off+nameLen])
	off += nameLen
	e.ServiceURI = trimField(b[off : off+uriLen])
	off += uriLen
	e.DestMcIP = binary.BigEndian.Uint32(b[off:])
	off += 4
	e.Hostname = trimField(b[off : off+hostLen])
	off += hostLen
	e.MachineIP = binary.BigEndian.Uint32(b[off:])
	off += 4
	e.TimeToLive = time.Unix(int64(binary.BigEndian.Uint64(b[off:])), 0).UTC()
	off += 8
	e.LastUpdated = time.Unix(int64(binary.BigEndian.Uint64(b[off:])), 0).UTC()
	return e, nil
}

func trimField(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// marshalRequest encodes a TTDB_SERVICE_ARRAY_T: a telegram version,
// entry count, then each entry back to back.
func marshalRequest(entries []ServiceEntry) []byte {
	buf := []byte{1, 0}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = marshalEntry(buf, e)
	}
	return buf
}

func unmarshalEntries(b []byte) ([]ServiceEntry, error) {
	if len(b) < 4 {
		return nil, errShortEntry
	}
	n := int(binary.BigEndian.Uint16(b[2:4]))
	out := make([]ServiceEntry, 0, n)
	off := 4
	for i := 0; i < n; i++ {
		if off+entrySize > len(b) {
			return nil, errShortEntry
		}
		e, err := unmarshalEntry(b[off : off+entrySize])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		off += entrySize
	}
	return out, nil
}

// marshalIDs encodes a plain instance-id list for delete requests.
func marshalIDs(ids []uint32) []byte {
	buf := []byte{1, 0}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ids)))
	for _, id := range ids {
		buf = binary.BigEndian.AppendUint32(buf, id)
	}
	return buf
}
