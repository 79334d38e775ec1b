package ttdb

import (
	"testing"

	trdp "github.com/tallowtrack/gotrdp"
)

func TestCacheOwnIdsRequiresStatus(t *testing.T) {
	c := NewCache()
	if _, err := c.OwnIds(); err != ErrNoData {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	c.SetStatus(Status{OwnIds: OwnIds{DeviceId: "dev1"}})
	ids, err := c.OwnIds()
	if err != nil || ids.DeviceId != "dev1" {
		t.Fatalf("unexpected result: %+v, %v", ids, err)
	}
}

func TestCacheTrainDirectoryFreshnessRules(t *testing.T) {
	c := NewCache()
	c.SetTrainDirectory(TrainDirectory{Consists: []string{"a"}, Topo: trdp.Topo{EtbTopoCnt: 1}})

	if _, ok := c.TrainDirectory(trdp.Topo{}); !ok {
		t.Fatal("zero session topo must be considered fresh")
	}
	if _, ok := c.TrainDirectory(trdp.Topo{EtbTopoCnt: 1}); !ok {
		t.Fatal("matching counters must be fresh")
	}
	if _, ok := c.TrainDirectory(trdp.Topo{EtbTopoCnt: 2}); ok {
		t.Fatal("changed counters must invalidate")
	}
}

func TestCacheConsistInfoPerId(t *testing.T) {
	c := NewCache()
	c.SetConsistInfo(ConsistInfo{ConsistId: "cst01", Vehicles: []string{"v1"}})
	c.SetConsistInfo(ConsistInfo{ConsistId: "cst02", Vehicles: []string{"v2"}})

	info, ok := c.ConsistInfo("cst02", trdp.Topo{})
	if !ok || info.Vehicles[0] != "v2" {
		t.Fatalf("unexpected result: %+v, %v", info, ok)
	}
	if _, ok := c.ConsistInfo("unknown", trdp.Topo{}); ok {
		t.Fatal("expected a miss for an unknown consist id")
	}
}
