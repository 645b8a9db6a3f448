package papertrail

import (
	"fmt"
	"sync"
	"time"
)

// collection is the list-with-lookups shared by every resource type. Items
// are never mutated in place: updates swap in a new pointer, so readers may
// hold on to what they got.
type collection[T any] struct {
	mu          sync.RWMutex
	items       []*T
	lastFetched time.Time
	loaded      bool
}

func (c *collection[T]) replace(items []*T, fetched time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.lastFetched = fetched
	c.loaded = true
}

func (c *collection[T]) add(item *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
}

// swap replaces the first item matching match with item, appending it when
// nothing matches.
func (c *collection[T]) swap(item *T, match func(*T) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if match(existing) {
			c.items[i] = item
			return
		}
	}
	c.items = append(c.items, item)
}

func (c *collection[T]) remove(match func(*T) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if match(existing) {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *collection[T]) find(match func(*T) bool) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if match(item) {
			return item, true
		}
	}
	return nil, false
}

func (c *collection[T]) filter(match func(*T) bool) []*T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*T
	for _, item := range c.items {
		if match(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of items.
func (c *collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// At returns the item at index i. Negative indexes count from the end.
func (c *collection[T]) At(i int) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.items)
	idx := i
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNotFound, i, n)
	}
	return c.items[idx], nil
}

// Slice returns items[i:j], clamped to the collection bounds. Negative
// bounds count from the end.
func (c *collection[T]) Slice(i, j int) []*T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.items)
	clamp := func(v int) int {
		if v < 0 {
			v += n
		}
		return max(0, min(v, n))
	}
	i, j = clamp(i), clamp(j)
	if i >= j {
		return nil
	}
	return append([]*T(nil), c.items[i:j]...)
}

// All returns a copy of the item list.
func (c *collection[T]) All() []*T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*T(nil), c.items...)
}

// IsLoaded reports whether the collection was loaded from Papertrail or
// restored from a snapshot.
func (c *collection[T]) IsLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// LastFetched is when the collection was last loaded from Papertrail, the
// zero time when never.
func (c *collection[T]) LastFetched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFetched
}
