package crypto

import (
	"container/list"
	"sync"

	"github.com/ccchain/ccchain/internal/chain"
)

// HashCache memoizes Blake3 digests of byte slices with FIFO eviction
// once it reaches capacity. No off-the-shelf cache in the retrieval
// pack implements FIFO-specifically (the common third-party caches are
// LRU), so this is hand-rolled to match the eviction order §4.1
// actually calls for.
type HashCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = oldest
	index    map[string]*list.Element
}

type cacheEntry struct {
	key  string
	hash chain.Hash
}

// NewHashCache returns a cache holding up to capacity entries.
func NewHashCache(capacity int) *HashCache {
	if capacity < 1 {
		capacity = 1
	}
	return &HashCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Hash returns Blake3(b), computing and caching it on first request.
func (c *HashCache) Hash(b []byte) chain.Hash {
	key := string(b)
	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		h := el.Value.(*cacheEntry).hash
		c.mu.Unlock()
		return h
	}
	c.mu.Unlock()

	h := HashBytes(b)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		return el.Value.(*cacheEntry).hash
	}
	el := c.order.PushBack(&cacheEntry{key: key, hash: h})
	c.index[key] = el
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		c.order.Remove(front)
		delete(c.index, front.Value.(*cacheEntry).key)
	}
	return h
}

// Len reports the current entry count.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
