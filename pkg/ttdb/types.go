// Package ttdb implements the Train Topology Database client of
// spec.md §4.8 C9: get_own_ids, get_consist_info, get_train_directory,
// get_op_train_directory and get_network_directory, each served from a
// local cache refreshed by PD100 TTDB_STATUS or an explicit MD request.
// Grounded on the teacher's pkg/node/node.go (a cached remote-info
// struct, refreshed by an external signal) and pkg/heartbeat/consumer.go
// (the supervision-timeout pattern the cache's freshness check mirrors).
package ttdb

import (
	"encoding/binary"
	"errors"

	trdp "github.com/tallowtrack/gotrdp"
)

// MD comIds of the TTDB telegrams defined in iec61375-2-3.h.
const (
	ComIdStatus         = 100 // PD: TTDB_STATUS
	ComIdOpDirInfo      = 101 // MD notification: push OP_TRAIN_DIRECTORY
	ComIdTrainDirReq    = 102
	ComIdTrainDirRep    = 103
	ComIdConsistInfoReq = 104
	ComIdConsistInfoRep = 105
	ComIdNetworkDirReq  = 106
	ComIdNetworkDirRep  = 107
	ComIdOpTrainDirReq  = 108
	ComIdOpTrainDirRep  = 109
)

const labelLen = 80 // matches trdp_serviceRegistry.h's CHAR8[80] URI/hostname convention

var errShortPayload = errors.New("ttdb: truncated payload")

// OwnIds is the local ECSP's own identity, as carried in every
// TTDB_STATUS push (spec.md's get_own_ids).
type OwnIds struct {
	DeviceId  string
	VehicleId string
	ConsistId string
}

// Status is one decoded PD100 TTDB_STATUS telegram.
type Status struct {
	Topo   trdp.Topo
	OwnIds OwnIds
}

// ConsistInfo answers get_consist_info(consistId).
type ConsistInfo struct {
	ConsistId string
	Vehicles  []string
	Topo      trdp.Topo
}

// TrainDirectory answers get_train_directory: every consist currently
// coupled into the train, in no particular order.
type TrainDirectory struct {
	Consists []string
	Topo     trdp.Topo
}

// OpConsist is one entry of an OpTrainDirectory: a consist plus its
// orientation relative to the train's lead end.
type OpConsist struct {
	ConsistId   string
	Orientation uint8 // 0 = same direction as train, 1 = reversed
}

// OpTrainDirectory answers get_op_train_directory: consists in
// operational (coupling) order.
type OpTrainDirectory struct {
	Consists []OpConsist
	Topo     trdp.Topo
}

// SubNetwork is one ETB entry of a NetworkDirectory.
type SubNetwork struct {
	Label string
	EtbId uint8
}

// NetworkDirectory answers get_network_directory: every ETB/subnetwork
// reachable from this consist.
type NetworkDirectory struct {
	Networks []SubNetwork
	Topo     trdp.Topo
}

func encodeLabel(buf []byte, s string) []byte {
	field := make([]byte, labelLen)
	copy(field, s)
	return append(buf, field...)
}

func decodeLabel(b []byte) (string, error) {
	if len(b) < labelLen {
		return "", errShortPayload
	}
	for i, c := range b[:labelLen] {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b[:labelLen]), nil
}

func encodeStatus(s Status) []byte {
	buf := binary.BigEndian.AppendUint32(nil, s.Topo.EtbTopoCnt)
	buf = binary.BigEndian.AppendUint32(buf, s.Topo.OpTrnTopoCnt)
	buf = encodeLabel(buf, s.OwnIds.DeviceId)
	buf = encodeLabel(buf, s.OwnIds.VehicleId)
	buf = encodeLabel(buf, s.OwnIds.ConsistId)
	return buf
}

// decodeStatus parses a PD100 TTDB_STATUS payload: etbTopoCnt,
// opTrnTopoCnt, then the own device/vehicle/consist labels.
func decodeStatus(b []byte) (Status, error) {
	if len(b) < 8+3*labelLen {
		return Status{}, errShortPayload
	}
	var s Status
	s.Topo.EtbTopoCnt = binary.BigEndian.Uint32(b[0:4])
	s.Topo.OpTrnTopoCnt = binary.BigEndian.Uint32(b[4:8])
	off := 8
	var err error
	if s.OwnIds.DeviceId, err = decodeLabel(b[off:]); err != nil {
		return Status{}, err
	}
	off += labelLen
	if s.OwnIds.VehicleId, err = decodeLabel(b[off:]); err != nil {
		return Status{}, err
	}
	off += labelLen
	if s.OwnIds.ConsistId, err = decodeLabel(b[off:]); err != nil {
		return Status{}, err
	}
	return s, nil
}

func encodeConsistInfo(info ConsistInfo) []byte {
	buf := binary.BigEndian.AppendUint32(nil, info.Topo.EtbTopoCnt)
	buf = binary.BigEndian.AppendUint32(buf, info.Topo.OpTrnTopoCnt)
	buf = encodeLabel(buf, info.ConsistId)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(info.Vehicles)))
	for _, v := range info.Vehicles {
		buf = encodeLabel(buf, v)
	}
	return buf
}

func decodeConsistInfo(b []byte) (ConsistInfo, error) {
	if len(b) < 8+labelLen+2 {
		return ConsistInfo{}, errShortPayload
	}
	var info ConsistInfo
	info.Topo.EtbTopoCnt = binary.BigEndian.Uint32(b[0:4])
	info.Topo.OpTrnTopoCnt = binary.BigEndian.Uint32(b[4:8])
	off := 8
	var err error
	if info.ConsistId, err = decodeLabel(b[off:]); err != nil {
		return ConsistInfo{}, err
	}
	off += labelLen
	n := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	for i := 0; i < n; i++ {
		if off+labelLen > len(b) {
			return ConsistInfo{}, errShortPayload
		}
		v, err := decodeLabel(b[off:])
		if err != nil {
			return ConsistInfo{}, err
		}
		info.Vehicles = append(info.Vehicles, v)
		off += labelLen
	}
	return info, nil
}

func encodeTrainDirectory(dir TrainDirectory) []byte {
	buf := binary.BigEndian.AppendUint32(nil, dir.Topo.EtbTopoCnt)
	buf = binary.BigEndian.AppendUint32(buf, dir.Topo.OpTrnTopoCnt)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(dir.Consists)))
	for _, c := range dir.Consists {
		buf = encodeLabel(buf, c)
	}
	return buf
}

func decodeTrainDirectory(b []byte) (TrainDirectory, error) {
	if len(b) < 10 {
		return TrainDirectory{}, errShortPayload
	}
	var dir TrainDirectory
	dir.Topo.EtbTopoCnt = binary.BigEndian.Uint32(b[0:4])
	dir.Topo.OpTrnTopoCnt = binary.BigEndian.Uint32(b[4:8])
	n := int(binary.BigEndian.Uint16(b[8:10]))
	off := 10
	for i := 0; i < n; i++ {
		if off+labelLen > len(b) {
			return TrainDirectory{}, errShortPayload
		}
		c, err := decodeLabel(b[off:])
		if err != nil {
			return TrainDirectory{}, err
		}
		dir.Consists = append(dir.Consists, c)
		off += labelLen
	}
	return dir, nil
}

func encodeOpTrainDirectory(dir OpTrainDirectory) []byte {
	buf := binary.BigEndian.AppendUint32(nil, dir.Topo.EtbTopoCnt)
	buf = binary.BigEndian.AppendUint32(buf, dir.Topo.OpTrnTopoCnt)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(dir.Consists)))
	for _, c := range dir.Consists {
		buf = encodeLabel(buf, c.ConsistId)
		buf = append(buf, c.Orientation)
	}
	return buf
}

func decodeOpTrainDirectory(b []byte) (OpTrainDirectory, error) {
	if len(b) < 10 {
		return OpTrainDirectory{}, errShortPayload
	}
	var dir OpTrainDirectory
	dir.Topo.EtbTopoCnt = binary.BigEndian.Uint32(b[0:4])
	dir.Topo.OpTrnTopoCnt = binary.BigEndian.Uint32(b[4:8])
	n := int(binary.BigEndian.Uint16(b[8:10]))
	off := 10
	for i := 0; i < n; i++ {
		if off+labelLen+1 > len(b) {
			return OpTrainDirectory{}, errShortPayload
		}
		id, err := decodeLabel(b[off:])
		if err != nil {
			return OpTrainDirectory{}, err
		}
		off += labelLen
		dir.Consists = append(dir.Consists, OpConsist{ConsistId: id, Orientation: b[off]})
		off++
	}
	return dir, nil
}

func encodeNetworkDirectory(dir NetworkDirectory) []byte {
	buf := binary.BigEndian.AppendUint32(nil, dir.Topo.EtbTopoCnt)
	buf = binary.BigEndian.AppendUint32(buf, dir.Topo.OpTrnTopoCnt)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(dir.Networks)))
	for _, n := range dir.Networks {
		buf = encodeLabel(buf, n.Label)
		buf = append(buf, n.EtbId)
	}
	return buf
}

func decodeNetworkDirectory(b []byte) (NetworkDirectory, error) {
	if len(b) < 10 {
		return NetworkDirectory{}, errShortPayload
	}
	var dir NetworkDirectory
	dir.Topo.EtbTopoCnt = binary.BigEndian.Uint32(b[0:4])
	dir.Topo.OpTrnTopoCnt = binary.BigEndian.Uint32(b[4:8])
	n := int(binary.BigEndian.Uint16(b[8:10]))
	off := 10
	for i := 0; i < n; i++ {
		if off+labelLen+1 > len(b) {
			return NetworkDirectory{}, errShortPayload
		}
		label, err := decodeLabel(b[off:])
		if err != nil {
			return NetworkDirectory{}, err
		}
		off += labelLen
		dir.Networks = append(dir.Networks, SubNetwork{Label: label, EtbId: b[off]})
		off++
	}
	return dir, nil
}
