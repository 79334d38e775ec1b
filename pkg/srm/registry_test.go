package srm

import (
	"testing"
	"time"
)

func TestMarshalUnmarshalEntryRoundTrip(t *testing.T) {
	e := ServiceEntry{
		VersionMajor:  1,
		VersionMinor:  0,
		Flags:         0x03,
		InstanceId:    2,
		ServiceTypeId: 0x00ABCDEF,
		ServiceName:   "brakeControl",
		ServiceURI:    "devECSP.anyVeh.lCst",
		DestMcIP:      0xE0000001,
		Hostname:      "ecsp1.train.local",
		MachineIP:     0xC0A80101,
		TimeToLive:    time.Unix(1000, 0).UTC(),
		LastUpdated:   time.Unix(2000, 0).UTC(),
	}

	entries := []ServiceEntry{e}
	wire := marshalRequest(entries)
	decoded, err := unmarshalEntries(wire)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(decoded))
	}

	got := decoded[0]
	if got.ServiceName != e.ServiceName || got.ServiceURI != e.ServiceURI || got.Hostname != e.Hostname {
		t.Fatalf("string fields did not round trip: %+v", got)
	}
	if got.ServiceTypeId != e.ServiceTypeId || got.InstanceId != e.InstanceId || got.Flags != e.Flags {
		t.Fatalf("scalar fields did not round trip: %+v", got)
	}
	if !got.TimeToLive.Equal(e.TimeToLive) || !got.LastUpdated.Equal(e.LastUpdated) {
		t.Fatalf("timestamps did not round trip: %+v", got)
	}
}

func TestServiceIDPacksInstanceAndType(t *testing.T) {
	e := ServiceEntry{InstanceId: 0x02, ServiceTypeId: 0x00ABCDEF}
	if got, want := e.ServiceID(), uint32(0x02ABCDEF); got != want {
		t.Fatalf("ServiceID() = %#x, want %#x", got, want)
	}
}

func TestUnmarshalEntriesRejectsTruncatedPayload(t *testing.T) {
	_, err := unmarshalEntries([]byte{1, 0, 0, 1})
	if err != errShortEntry {
		t.Fatalf("expected errShortEntry, got %v", err)
	}
}

func TestMarshalIDsRoundTripsCount(t *testing.T) {
	ids := []uint32{1, 2, 3}
	wire := marshalIDs(ids)
	if len(wire) != 2+2+4*3 {
		t.Fatalf("unexpected wire length %d", len(wire))
	}
}
