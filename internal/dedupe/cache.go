// ABOUTME: Thread-safe TTL cache for tracking already-applied ingest frames.
// ABOUTME: Lets the ingest path acknowledge redelivered frames without reapplying.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the arrival timestamp and eviction-list element for a frame ID.
type entry struct {
	at      time.Time
	element *list.Element
}

// Cache tracks frame IDs that have already been applied to the mirror. It is
// TTL-bounded and size-capped; the oldest entry is evicted at capacity. A
// background goroutine sweeps expired entries.
type Cache struct {
	mu      sync.Mutex
	applied map[string]*entry
	order   *list.List // frame IDs in arrival order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		applied: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen atomically checks whether the frame ID was already applied and marks
// it if not. Returns true for a duplicate, false for a new frame that is now
// marked. The single lock acquisition avoids check-then-mark races between
// the HTTP and WebSocket ingest paths.
func (c *Cache) Seen(frameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.applied[frameID]
	if ok && time.Since(e.at) < c.ttl {
		return true
	}

	now := time.Now()
	if e != nil {
		e.at = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.applied) >= c.maxSize {
		c.evictOldest()
	}
	elem := c.order.PushBack(frameID)
	c.applied[frameID] = &entry{at: now, element: elem}
	return false
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	frameID, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.applied, frameID)
}

// sweep periodically drops expired entries until Close.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.dropExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) dropExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for frameID, e := range c.applied {
		if now.Sub(e.at) > c.ttl {
			c.order.Remove(e.element)
			delete(c.applied, frameID)
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
