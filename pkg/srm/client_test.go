package srm

import (
	"testing"
	"time"

	"github.com/tallowtrack/gotrdp/pkg/packet"
)

func TestAddServicesRoundTrip(t *testing.T) {
	c := NewClient(time.Second, nil)
	var sid packet.SessionID
	sid[0] = 0xAA

	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		if comId != ComIdService {
			t.Fatalf("unexpected comId %d", comId)
		}
		go func() {
			reply := marshalRequest([]ServiceEntry{{InstanceId: 1, ServiceTypeId: 42, ServiceName: "svc"}})
			c.Deliver(sid, reply)
		}()
		return sid, nil
	})

	entries, err := c.AddServices([]ServiceEntry{{InstanceId: 1, ServiceTypeId: 42, ServiceName: "svc"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].ServiceName != "svc" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAddServicesTimesOutWithoutReply(t *testing.T) {
	c := NewClient(30*time.Millisecond, nil)
	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		return packet.SessionID{}, nil
	})

	_, err := c.AddServices(nil)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDeleteServicesWithoutSenderFails(t *testing.T) {
	c := NewClient(time.Second, nil)
	if err := c.DeleteServices([]uint32{1}); err == nil {
		t.Fatal("expected an error when no sender is configured")
	}
}

func TestUpdateServicesIsFireAndForget(t *testing.T) {
	c := NewClient(time.Second, nil)
	called := false
	c.SetSender(func(comId uint32, payload []byte) (packet.SessionID, error) {
		called = true
		return packet.SessionID{}, nil
	})

	if err := c.UpdateServices([]ServiceEntry{{InstanceId: 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected sender to be invoked")
	}
}
