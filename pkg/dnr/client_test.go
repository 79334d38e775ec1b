package dnr

import (
	"net"
	"testing"
	"time"

	trdp "github.com/tallowtrack/gotrdp"
)

func TestUriToAddrDottedIPShortcut(t *testing.T) {
	c := NewClient(time.Second, nil)
	ip, err := c.UriToAddr("10.0.0.5", trdp.Topo{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip.String() != "10.0.0.5" {
		t.Fatalf("expected 10.0.0.5, got %s", ip)
	}
}

func TestUriToAddrReturnsFreshCacheHit(t *testing.T) {
	c := NewClient(time.Second, nil)
	c.Cache().Upsert(Entry{URI: "testUri", IP: trdp.IPToUint32(net.ParseIP("172.16.0.1").To4()), Fixed: true})

	ip, err := c.UriToAddr("testUri", trdp.Topo{EtbTopoCnt: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip.String() != "172.16.0.1" {
		t.Fatalf("expected 172.16.0.1, got %s", ip)
	}
}

func TestUriToAddrUnresolvedWithoutSenderOrStandardDNS(t *testing.T) {
	c := NewClient(50*time.Millisecond, nil)
	_, err := c.UriToAddr("unknownUri", trdp.Topo{})
	if err != ErrUnresolved {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestUriToAddrResolvesViaTCNDNSSender(t *testing.T) {
	c := NewClient(time.Second, nil)

	c.SetSender(func(uris []string) error {
		go c.Deliver([]Entry{
			{URI: "testUri", IP: trdp.IPToUint32(net.ParseIP("192.168.0.9").To4()), EtbTopoCnt: 1, OpTrnTopoCnt: 1},
		})
		return nil
	})

	ip, err := c.UriToAddr("testUri", trdp.Topo{EtbTopoCnt: 1, OpTrnTopoCnt: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip.String() != "192.168.0.9" {
		t.Fatalf("expected 192.168.0.9, got %s", ip)
	}

	if e, ok := c.Cache().Lookup("testUri"); !ok || e.IP != trdp.IPToUint32(net.ParseIP("192.168.0.9").To4()) {
		t.Fatalf("expected the answer to populate the cache, got %+v", e)
	}
}

func TestUriToAddrTimesOutWithoutAnswer(t *testing.T) {
	c := NewClient(30*time.Millisecond, nil)
	c.SetSender(func(uris []string) error { return nil })

	_, err := c.UriToAddr("neverAnswered", trdp.Topo{})
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBuildRequestBatchesStaleEntries(t *testing.T) {
	c := NewClient(time.Second, nil)
	c.Cache().Upsert(Entry{URI: "stale1", EtbTopoCnt: 1})
	c.Cache().Upsert(Entry{URI: "fixed", Fixed: true, EtbTopoCnt: 1})

	batch := c.BuildRequest("newUri", trdp.Topo{EtbTopoCnt: 2})
	if len(batch) != 2 {
		t.Fatalf("expected stale1 + newUri, got %v", batch)
	}
}
