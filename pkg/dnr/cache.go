// Package dnr implements the DNR (Directory Name Resolver) client of
// spec.md §4.7: a bounded URI→IP cache fed by a hosts file and/or
// TCN-DNS/standard DNS, with topo-count-aware invalidation. Grounded
// on the teacher's pkg/lss/master.go (request issued, block on a
// channel for the matching reply, timeout) and pkg/lss/common.go.
package dnr

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	trdp "github.com/tallowtrack/gotrdp"
)

// maxEntries is spec.md §4.7's "cache of up to 50 entries".
const maxEntries = 50

// Entry is one cached URI resolution.
type Entry struct {
	URI          string
	IP           uint32
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
	Fixed        bool // came from the hosts file; never invalidated
}

// Cache is the URI-sorted entry table searched by uri_to_addr.
type Cache struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Lookup binary-searches the cache by URI.
func (c *Cache) Lookup(uri string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.findLocked(uri)
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

func (c *Cache) findLocked(uri string) (int, bool) {
	i := sort.Search(len(c.entries), func(i int) bool { return c.entries[i].URI >= uri })
	if i < len(c.entries) && c.entries[i].URI == uri {
		return i, true
	}
	return i, false
}

// Upsert inserts or replaces an entry, keeping the table sorted by URI.
// When the table would grow past maxEntries, the first non-fixed entry
// in URI order is evicted first.
func (c *Cache) Upsert(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.findLocked(e.URI); ok {
		c.entries[i] = e
		return
	}

	if len(c.entries) >= maxEntries {
		c.evictOneLocked()
	}

	i, _ := c.findLocked(e.URI)
	c.entries = append(c.entries, Entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
}

func (c *Cache) evictOneLocked() {
	for i, e := range c.entries {
		if !e.Fixed {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
	// All entries are fixed (hosts-file); drop the first one anyway
	// rather than refuse every further DNS resolution.
	if len(c.entries) > 0 {
		c.entries = c.entries[1:]
	}
}

// Fresh implements spec.md §4.7 step 3's return condition: fixed
// entries are always fresh, as is any entry when the session carries
// no topology information at all (both counters zero), otherwise the
// entry must match the current counters exactly.
func (e Entry) Fresh(topo trdp.Topo) bool {
	if e.Fixed {
		return true
	}
	if topo.EtbTopoCnt == 0 && topo.OpTrnTopoCnt == 0 {
		return true
	}
	return e.EtbTopoCnt == topo.EtbTopoCnt && e.OpTrnTopoCnt == topo.OpTrnTopoCnt
}

// Stale returns every non-fixed entry whose topo counters no longer
// match topo, the batch spec.md §4.7 says build_request folds into one
// outgoing TCN-DNS request.
func (c *Cache) Stale(topo trdp.Topo) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var uris []string
	for _, e := range c.entries {
		if !e.Fresh(topo) {
			uris = append(uris, e.URI)
		}
	}
	return uris
}

// LoadHostsFile populates the cache from a plain-text "IP URI" per line
// file (spec.md §4.7); blank lines and '#' comments are ignored. Loaded
// entries are marked Fixed and so are never invalidated by topo changes.
func (c *Cache) LoadHostsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return fmt.Errorf("dnr: hosts file %s line %d: want \"IP URI\", got %q", path, line, text)
		}
		parsed := net.ParseIP(fields[0]).To4()
		if parsed == nil {
			return fmt.Errorf("dnr: hosts file %s line %d: invalid IP %q", path, line, fields[0])
		}
		c.Upsert(Entry{URI: fields[1], IP: trdp.IPToUint32(parsed), Fixed: true})
	}
	return scanner.Err()
}
