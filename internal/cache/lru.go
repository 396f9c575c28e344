package cache

import (
	"container/list"
	"sync"
	"time"
)

// lru is a capacity-bounded map with least-recently-used eviction. When full, expired entries are
// purged before any live entry is evicted.
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 1
	}
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// get returns a live entry and marks it most recently used. Expired entries are dropped on sight.
func (c *lru) get(key string, now time.Time) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	entry := el.Value.(Entry)
	if entry.Expired(now) {
		c.removeElement(el)
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	return entry, true
}

// add inserts or replaces an entry and returns how many entries were evicted to make room.
func (c *lru) add(entry Entry, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[entry.Key]; ok {
		el.Value = entry
		c.ll.MoveToFront(el)
		return 0
	}

	evicted := 0
	if c.ll.Len() >= c.capacity {
		evicted += c.purgeExpiredLocked(now)
	}
	for c.ll.Len() >= c.capacity {
		c.removeElement(c.ll.Back())
		evicted++
	}
	c.items[entry.Key] = c.ll.PushFront(entry)
	return evicted
}

func (c *lru) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *lru) purgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(now)
}

func (c *lru) purgeExpiredLocked(now time.Time) int {
	purged := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(Entry).Expired(now) {
			c.removeElement(el)
			purged++
		}
		el = prev
	}
	return purged
}

func (c *lru) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *lru) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(Entry).Key)
}
