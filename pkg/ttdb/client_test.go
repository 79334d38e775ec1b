package ttdb

import (
	"testing"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

func TestGetOwnIdsComesFromStatusOnly(t *testing.T) {
	c := NewClient(time.Second, nil)
	if _, err := c.GetOwnIds(); err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	if err := c.OnStatus(encodeStatus(Status{OwnIds: OwnIds{DeviceId: "devECSP"}})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, err := c.GetOwnIds()
	if err != nil || ids.DeviceId != "devECSP" {
		t.Fatalf("unexpected result: %+v, %v", ids, err)
	}
}

func TestGetConsistInfoRoundTripsThroughSender(t *testing.T) {
	c := NewClient(time.Second, nil)
	var sid packet.SessionID
	sid[0] = 0x01

	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		if comId != ComIdConsistInfoReq {
			t.Fatalf("unexpected comId %d", comId)
		}
		go c.Deliver(sid, encodeConsistInfo(ConsistInfo{ConsistId: "cst01", Vehicles: []string{"v1", "v2"}}))
		return sid, nil
	})

	info, err := c.GetConsistInfo("cst01", trdp.Topo{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ConsistId != "cst01" || len(info.Vehicles) != 2 {
		t.Fatalf("unexpected result: %+v", info)
	}

	// Second call should be served from cache without touching the sender.
	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		t.Fatal("sender should not be called for a fresh cache hit")
		return packet.SessionID{}, nil
	})
	info2, err := c.GetConsistInfo("cst01", trdp.Topo{})
	if err != nil || info2.ConsistId != "cst01" {
		t.Fatalf("unexpected cached result: %+v, %v", info2, err)
	}
}

func TestGetTrainDirectoryTimesOutWithoutReply(t *testing.T) {
	c := NewClient(30*time.Millisecond, nil)
	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		return packet.SessionID{}, nil
	})

	_, err := c.GetTrainDirectory(trdp.Topo{})
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestOnOpTrainDirectoryPushPopulatesCache(t *testing.T) {
	c := NewClient(time.Second, nil)
	dir := OpTrainDirectory{Consists: []OpConsist{{ConsistId: "cst01"}}, Topo: trdp.Topo{EtbTopoCnt: 1}}
	if err := c.OnOpTrainDirectoryPush(encodeOpTrainDirectory(dir)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := c.GetOpTrainDirectory(trdp.Topo{EtbTopoCnt: 1})
	if err != nil || len(got.Consists) != 1 {
		t.Fatalf("unexpected result: %+v, %v", got, err)
	}
}
