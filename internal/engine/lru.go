package engine

import (
	"container/list"
	"sync"
)

// snapshotLRU retains last-known-good snapshots for fingerprints whose
// consumers have all detached, so a remount gets instant data instead of a
// loading state. Entries with live consumers are never in here; eviction only
// ever discards fully detached data.
type snapshotLRU struct {
	mu       sync.Mutex
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	fingerprint string
	snapshot    *Snapshot
}

func newSnapshotLRU(capacity int) *snapshotLRU {
	return &snapshotLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// take removes and returns the snapshot for a fingerprint, or nil.
func (c *snapshotLRU) take(fingerprint string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[fingerprint]
	if !exists {
		return nil
	}
	c.order.Remove(elem)
	delete(c.cache, fingerprint)
	return elem.Value.(*lruEntry).snapshot
}

// get returns the snapshot for a fingerprint without removing it, or nil.
// The entry is marked recently used.
func (c *snapshotLRU) get(fingerprint string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[fingerprint]
	if !exists {
		return nil
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).snapshot
}

// put stores a snapshot, evicting the least recently stored if full.
func (c *snapshotLRU) put(fingerprint string, snapshot *Snapshot) {
	if snapshot == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[fingerprint]; exists {
		c.order.MoveToFront(elem)
		elem.Value.(*lruEntry).snapshot = snapshot
		return
	}

	elem := c.order.PushFront(&lruEntry{fingerprint: fingerprint, snapshot: snapshot})
	c.cache[fingerprint] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.cache, oldest.Value.(*lruEntry).fingerprint)
		}
	}
}

// drop discards any retained snapshot for a fingerprint.
func (c *snapshotLRU) drop(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[fingerprint]; exists {
		c.order.Remove(elem)
		delete(c.cache, fingerprint)
	}
}
