package dnr

import (
	"os"
	"path/filepath"
	"testing"

	trdp "github.com/tallowtrack/gotrdp"
)

func TestCacheUpsertKeepsSortedByURI(t *testing.T) {
	c := NewCache()
	c.Upsert(Entry{URI: "zeta", IP: 3})
	c.Upsert(Entry{URI: "alpha", IP: 1})
	c.Upsert(Entry{URI: "mu", IP: 2})

	if _, ok := c.Lookup("alpha"); !ok {
		t.Fatal("expected alpha to be found")
	}
	if e, ok := c.Lookup("mu"); !ok || e.IP != 2 {
		t.Fatalf("expected mu -> 2, got %+v, %v", e, ok)
	}
}

func TestCacheUpsertReplacesExisting(t *testing.T) {
	c := NewCache()
	c.Upsert(Entry{URI: "testUri", IP: 1})
	c.Upsert(Entry{URI: "testUri", IP: 2})

	e, ok := c.Lookup("testUri")
	if !ok || e.IP != 2 {
		t.Fatalf("expected replace to win, got %+v", e)
	}
}

func TestCacheEvictsNonFixedWhenFull(t *testing.T) {
	c := NewCache()
	for i := 0; i < maxEntries; i++ {
		c.Upsert(Entry{URI: string(rune('a' + i%26)) + string(rune(i)), IP: uint32(i)})
	}
	c.Upsert(Entry{URI: "newcomer", IP: 999})

	if _, ok := c.Lookup("newcomer"); !ok {
		t.Fatal("expected newcomer to have been inserted after eviction")
	}
}

func TestEntryFreshRules(t *testing.T) {
	fixed := Entry{URI: "a", Fixed: true, EtbTopoCnt: 1, OpTrnTopoCnt: 1}
	if !fixed.Fresh(trdp.Topo{EtbTopoCnt: 9, OpTrnTopoCnt: 9}) {
		t.Fatal("fixed entries must never invalidate")
	}

	stale := Entry{URI: "b", EtbTopoCnt: 1, OpTrnTopoCnt: 1}
	if !stale.Fresh(trdp.Topo{}) {
		t.Fatal("zero session topo counters must always be considered fresh")
	}
	if !stale.Fresh(trdp.Topo{EtbTopoCnt: 1, OpTrnTopoCnt: 1}) {
		t.Fatal("matching counters must be fresh")
	}
	if stale.Fresh(trdp.Topo{EtbTopoCnt: 2, OpTrnTopoCnt: 1}) {
		t.Fatal("changed etbTopoCnt must invalidate")
	}
}

func TestCacheStaleBatchesNonFixedOnly(t *testing.T) {
	c := NewCache()
	c.Upsert(Entry{URI: "fixed", Fixed: true, EtbTopoCnt: 1})
	c.Upsert(Entry{URI: "stale", EtbTopoCnt: 1})
	c.Upsert(Entry{URI: "fresh", EtbTopoCnt: 2})

	stale := c.Stale(trdp.Topo{EtbTopoCnt: 2, OpTrnTopoCnt: 0})
	if len(stale) != 1 || stale[0] != "stale" {
		t.Fatalf("expected only [stale], got %v", stale)
	}
}

func TestLoadHostsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	content := "# comment\n192.168.1.10 ecsp1\n\n192.168.1.11 ecsp2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	if err := c.LoadHostsFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, ok := c.Lookup("ecsp1")
	if !ok || !e.Fixed {
		t.Fatalf("expected fixed entry for ecsp1, got %+v, %v", e, ok)
	}
	if got := trdp.Uint32ToIP(e.IP).String(); got != "192.168.1.10" {
		t.Fatalf("expected 192.168.1.10, got %s", got)
	}
}

func TestLoadHostsFileRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	if err := os.WriteFile(path, []byte("not-an-ip-or-uri-pair-with-three-fields here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	if err := c.LoadHostsFile(path); err == nil {
		t.Fatal("expected an error for a malformed line")
	}
}
