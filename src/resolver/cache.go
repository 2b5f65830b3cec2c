package resolver

import (
	"container/list"
	"sync"
	"time"

	"github.com/hathorqa/qaconsole/src/metrics"
	"github.com/hathorqa/qaconsole/src/model"
)

const (
	// UnconfirmedTTL bounds how long an unconfirmed answer is served without
	// re-checking the node.
	UnconfirmedTTL = 5000 * time.Millisecond
	// CacheCapacity bounds total growth over a long operator session.
	// Permanent entries are still just cache: evicting one only costs a
	// re-resolve.
	CacheCapacity = 4096
)

type cacheEntry struct {
	hash     string
	status   model.TxStatus
	cachedAt time.Time
}

// StatusCache holds per-hash resolution results. Valid/Voided entries are
// permanent (no TTL) because both states are irreversible; Unconfirmed
// entries expire after UnconfirmedTTL. Writes are promote-only: a present
// permanent entry is never replaced by a later, possibly stale, answer.
type StatusCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	nowFn    func() time.Time
}

func NewStatusCache() *StatusCache {
	return &StatusCache{
		capacity: CacheCapacity,
		items:    map[string]*list.Element{},
		order:    list.New(),
		nowFn:    time.Now,
	}
}

func (c *StatusCache) Get(hash string) (model.TxStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[hash]
	if !ok {
		return model.TxStatusUnknown, false
	}
	e := elem.Value.(*cacheEntry)
	if !e.status.Permanent() && c.nowFn().Sub(e.cachedAt) >= UnconfirmedTTL {
		c.removeElement(elem)
		return model.TxStatusUnknown, false
	}
	c.order.MoveToFront(elem)
	return e.status, true
}

func (c *StatusCache) Put(hash string, status model.TxStatus) {
	if status == model.TxStatusUnknown {
		// unknown means "a source failed", not a fact worth remembering
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[hash]; ok {
		e := elem.Value.(*cacheEntry)
		if e.status.Permanent() {
			return
		}
		e.status = status
		e.cachedAt = c.nowFn()
		c.order.MoveToFront(elem)
		return
	}
	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	elem := c.order.PushFront(&cacheEntry{hash: hash, status: status, cachedAt: c.nowFn()})
	c.items[hash] = elem
}

func (c *StatusCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Reset drops every entry, exposed for test isolation.
func (c *StatusCache) Reset() {
	c.mu.Lock()
	c.items = map[string]*list.Element{}
	c.order = list.New()
	c.mu.Unlock()
}

func (c *StatusCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	metrics.CacheEvictions.Inc()
	c.removeElement(elem)
}

func (c *StatusCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).hash)
}
