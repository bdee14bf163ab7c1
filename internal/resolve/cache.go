// Package resolve implements the path-resolution cache spec.md §1 lists as
// an out-of-core-scope external collaborator. It is a thin, optional
// decorator over os/exec.LookPath: the scheduler consults it once per
// invocation to avoid re-walking $PATH for programs that repeat across a
// large command stream (the common case in argument-group mode, where the
// same program name recurs across every cartesian combination).
//
// Cache keys are hashed with xxhash (from the teacher's require block,
// also used for content hashing in the teacher's codebase-index package)
// rather than used as raw strings, matching that hashing idiom.
package resolve

import (
	"container/list"
	"os/exec"
	"sync"

	"github.com/cespare/xxhash/v2"
)

type entry struct {
	key  uint64
	name string
	path string
	err  error
}

// Cache is a fixed-size LRU cache of resolved executable paths. The zero
// value is not usable; construct with NewCache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

// NewCache builds a Cache holding at most capacity resolved paths.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 128
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element, capacity),
	}
}

// Resolve returns the absolute path for name, consulting the cache first
// and falling back to exec.LookPath on a miss. A failed lookup is cached
// too, so a repeatedly-missing program doesn't re-walk $PATH every time.
func (c *Cache) Resolve(name string) (string, error) {
	key := xxhash.Sum64String(name)

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		e := el.Value.(*entry)
		c.mu.Unlock()
		return e.path, e.err
	}
	c.mu.Unlock()

	path, err := exec.LookPath(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		// Lost a race with a concurrent resolver for the same name; keep
		// whichever result is already cached.
		c.ll.MoveToFront(el)
		e := el.Value.(*entry)
		return e.path, e.err
	}
	el := c.ll.PushFront(&entry{key: key, name: name, path: path, err: err})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
	return path, err
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
