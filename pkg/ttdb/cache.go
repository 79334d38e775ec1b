package ttdb

import (
	"errors"
	"sync"

	trdp "github.com/tallowtrack/gotrdp"
)

// ErrNoData is returned when a cached value has never been populated
// (spec.md §7's NODATA_ERR).
var ErrNoData = errors.New("ttdb: no data arrived yet")

// Cache holds the most recent TTDB answers, refreshed either by an
// explicit request or by the PD100 TTDB_STATUS push (spec.md §4.8).
type Cache struct {
	mu sync.RWMutex

	status   Status
	hasStatus bool

	consists map[string]ConsistInfo

	trainDir    TrainDirectory
	hasTrainDir bool

	opTrainDir    OpTrainDirectory
	hasOpTrainDir bool

	networkDir    NetworkDirectory
	hasNetworkDir bool
}

// NewCache creates an empty TTDB cache.
func NewCache() *Cache {
	return &Cache{consists: make(map[string]ConsistInfo)}
}

// SetStatus records the latest PD100 TTDB_STATUS.
func (c *Cache) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	c.hasStatus = true
}

// OwnIds returns the own-identity fields of the last TTDB_STATUS.
func (c *Cache) OwnIds() (OwnIds, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasStatus {
		return OwnIds{}, ErrNoData
	}
	return c.status.OwnIds, nil
}

// ConsistInfo returns a cached consist's info if fresh for topo.
func (c *Cache) ConsistInfo(consistId string, topo trdp.Topo) (ConsistInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.consists[consistId]
	if !ok || !fresh(info.Topo, topo) {
		return ConsistInfo{}, false
	}
	return info, true
}

// SetConsistInfo updates the cache's entry for info.ConsistId.
func (c *Cache) SetConsistInfo(info ConsistInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consists[info.ConsistId] = info
}

// TrainDirectory returns the cached directory if fresh for topo.
func (c *Cache) TrainDirectory(topo trdp.Topo) (TrainDirectory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasTrainDir || !fresh(c.trainDir.Topo, topo) {
		return TrainDirectory{}, false
	}
	return c.trainDir, true
}

// SetTrainDirectory replaces the cached train directory.
func (c *Cache) SetTrainDirectory(dir TrainDirectory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trainDir = dir
	c.hasTrainDir = true
}

// OpTrainDirectory returns the cached directory if fresh for topo.
func (c *Cache) OpTrainDirectory(topo trdp.Topo) (OpTrainDirectory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasOpTrainDir || !fresh(c.opTrainDir.Topo, topo) {
		return OpTrainDirectory{}, false
	}
	return c.opTrainDir, true
}

// SetOpTrainDirectory replaces the cached operational train directory,
// the target of a TTDB_OP_DIR_INFO (comId 101) push or a 108/109 reply.
func (c *Cache) SetOpTrainDirectory(dir OpTrainDirectory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opTrainDir = dir
	c.hasOpTrainDir = true
}

// NetworkDirectory returns the cached directory if fresh for topo.
func (c *Cache) NetworkDirectory(topo trdp.Topo) (NetworkDirectory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasNetworkDir || !fresh(c.networkDir.Topo, topo) {
		return NetworkDirectory{}, false
	}
	return c.networkDir, true
}

// SetNetworkDirectory replaces the cached network directory.
func (c *Cache) SetNetworkDirectory(dir NetworkDirectory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkDir = dir
	c.hasNetworkDir = true
}

// fresh applies spec.md §4's DNR topocount-invalidation rule (§4.7 point
// 6) to TTDB's own cached answers: valid only if both counters match, or
// if the caller's topo carries no topology information at all.
func fresh(cached, current trdp.Topo) bool {
	if current.EtbTopoCnt == 0 && current.OpTrnTopoCnt == 0 {
		return true
	}
	return cached.EtbTopoCnt == current.EtbTopoCnt && cached.OpTrnTopoCnt == current.OpTrnTopoCnt
}
