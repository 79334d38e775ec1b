package pd

import (
	"sort"
	"sync"

	trdp "github.com/tallowtrack/gotrdp"
)

// Queues holds the two PD lists of spec.md §3 ("PD queues"): the publish
// queue (outgoing) and the subscribe queue (incoming). Grounded on
// pdo_common.go's PDOCommon, which is the shared state TPDO/RPDO each
// hold a pointer to.
type Queues struct {
	mu sync.RWMutex

	publishers  []*Publisher
	subscribers []*Subscriber

	// indexed fast-path (spec.md §4.3): subscribers duplicated into a
	// comId-sorted slice for O(log N) lookup once high-performance mode
	// is enabled and UpdateIndex has been called after bulk registration.
	fastPath bool
	indexed  []*Subscriber
}

// NewQueues creates an empty PD queue pair.
func NewQueues() *Queues { return &Queues{} }

// EnableFastPath turns on the indexed subscriber lookup of spec.md §4.3.
func (q *Queues) EnableFastPath(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fastPath = enabled
}

// AddPublisher appends pub to the publish queue.
func (q *Queues) AddPublisher(pub *Publisher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.publishers = append(q.publishers, pub)
}

// RemovePublisher removes pub from the publish queue.
func (q *Queues) RemovePublisher(pub *Publisher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.publishers {
		if p == pub {
			q.publishers = append(q.publishers[:i], q.publishers[i+1:]...)
			return
		}
	}
}

// Publishers returns a snapshot of the publish queue.
func (q *Queues) Publishers() []*Publisher {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Publisher, len(q.publishers))
	copy(out, q.publishers)
	return out
}

// AddSubscriber appends sub to the subscribe queue, rejecting a
// duplicate registration per invariant 4 of spec.md §3.
func (q *Queues) AddSubscriber(sub *Subscriber) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.subscribers {
		if existing.Addr.Conflicts(sub.Addr) {
			return trdp.ErrParam
		}
	}
	q.subscribers = append(q.subscribers, sub)
	if q.fastPath {
		q.rebuildIndexLocked()
	}
	return nil
}

// RemoveSubscriber removes sub from the subscribe queue.
func (q *Queues) RemoveSubscriber(sub *Subscriber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.subscribers {
		if s == sub {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			break
		}
	}
	if q.fastPath {
		q.rebuildIndexLocked()
	}
}

// Subscribers returns a snapshot of the subscribe queue.
func (q *Queues) Subscribers() []*Subscriber {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Subscriber, len(q.subscribers))
	copy(out, q.subscribers)
	return out
}

// UpdateIndex rebuilds the comId-sorted fast-path array after bulk
// subscriber registration (spec.md §4.3 "update_session calls").
func (q *Queues) UpdateIndex() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rebuildIndexLocked()
}

func (q *Queues) rebuildIndexLocked() {
	q.indexed = append([]*Subscriber(nil), q.subscribers...)
	sort.Slice(q.indexed, func(i, j int) bool {
		return q.indexed[i].Addr.ComId < q.indexed[j].Addr.ComId
	})
}

// MatchSubscribers returns every subscriber whose filter accepts comId
// (there can be more than one, e.g. distinct source-IP ranges). Uses the
// fast-path binary search with a linear scan over duplicates when
// enabled, otherwise a plain linear scan, per spec.md §4.3.
func (q *Queues) MatchSubscribers(comId uint32) []*Subscriber {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.fastPath {
		var out []*Subscriber
		for _, s := range q.subscribers {
			if s.Addr.ComId == comId {
				out = append(out, s)
			}
		}
		return out
	}

	n := len(q.indexed)
	i := sort.Search(n, func(i int) bool { return q.indexed[i].Addr.ComId >= comId })
	var out []*Subscriber
	for ; i < n && q.indexed[i].Addr.ComId == comId; i++ {
		out = append(out, q.indexed[i])
	}
	return out
}
