package meta

import "container/list"

// lruCache is a bounded map of string key -> surrogate id with
// least-recently-used eviction. Not safe for concurrent use; the owning
// manager's single-writer contract covers it.
type lruCache struct {
	maxSize  int
	elements map[string]*list.Element
	order    *list.List // front = most recently used
}

type lruEntry struct {
	key string
	id  int64
}

func newLRUCache(maxSize int) *lruCache {
	return &lruCache{
		maxSize:  maxSize,
		elements: make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *lruCache) get(key string) (int64, bool) {
	elem, ok := c.elements[key]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).id, true
}

func (c *lruCache) put(key string, id int64) {
	if elem, ok := c.elements[key]; ok {
		elem.Value.(*lruEntry).id = id
		c.order.MoveToFront(elem)
		return
	}
	c.elements[key] = c.order.PushFront(&lruEntry{key: key, id: id})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.elements, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) remove(key string) {
	if elem, ok := c.elements[key]; ok {
		c.order.Remove(elem)
		delete(c.elements, key)
	}
}

func (c *lruCache) reset() {
	c.elements = make(map[string]*list.Element)
	c.order.Init()
}

func (c *lruCache) len() int {
	return c.order.Len()
}
