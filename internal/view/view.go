// Package view maintains the sorted, filtered index list the queue is
// displayed and listed in.
package view

import (
	"cmp"
	"slices"

	"dynq/internal/queue"
)

type lessFunc func(a, b *queue.Item) int

var sorters = map[queue.SortMode]lessFunc{
	queue.SortPriority: func(a, b *queue.Item) int {
		return cmp.Compare(a.Priority, b.Priority)
	},
	queue.SortStatus: func(a, b *queue.Item) int {
		return cmp.Compare(string(a.Status), string(b.Status))
	},
	queue.SortSource: func(a, b *queue.Item) int {
		return cmp.Compare(a.Metadata.Source, b.Metadata.Source)
	},
}

// Cache memoizes the view over a collection owned by a single goroutine.
// It is not safe for concurrent use.
type Cache struct {
	filter  queue.Filter
	sort    queue.SortMode
	indices []int
	valid   bool
}

// NewCache returns an empty cache for the given modes.
func NewCache(filter queue.Filter, sort queue.SortMode) *Cache {
	c := &Cache{}
	c.SetModes(filter, sort)
	return c
}

// SetModes changes the filter and sort, invalidating when either differs.
func (c *Cache) SetModes(filter queue.Filter, sort queue.SortMode) {
	if filter == "" {
		filter = queue.FilterAll
	}
	if _, ok := sorters[sort]; !ok {
		sort = queue.SortPriority
	}
	if filter == c.filter && sort == c.sort {
		return
	}
	c.filter = filter
	c.sort = sort
	c.Invalidate()
}

// Filter returns the active filter.
func (c *Cache) Filter() queue.Filter { return c.filter }

// Sort returns the active sort mode.
func (c *Cache) Sort() queue.SortMode { return c.sort }

// Invalidate drops the cached ordering.
func (c *Cache) Invalidate() {
	c.valid = false
	c.indices = nil
}

// Indices returns positions into items in view order. The result is shared
// with the cache; callers must not modify it.
func (c *Cache) Indices(items []*queue.Item) []int {
	if !c.valid {
		c.indices = Compute(items, c.filter, c.sort)
		c.valid = true
	}
	return c.indices
}

// Items returns the items in view order.
func (c *Cache) Items(items []*queue.Item) []*queue.Item {
	indices := c.Indices(items)
	out := make([]*queue.Item, 0, len(indices))
	for _, idx := range indices {
		out = append(out, items[idx])
	}
	return out
}

// Compute filters and stably sorts without caching. Collection order breaks
// ties.
func Compute(items []*queue.Item, filter queue.Filter, sort queue.SortMode) []int {
	less, ok := sorters[sort]
	if !ok {
		less = sorters[queue.SortPriority]
	}
	indices := make([]int, 0, len(items))
	for idx, item := range items {
		if filter.Matches(item) {
			indices = append(indices, idx)
		}
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return less(items[a], items[b])
	})
	return indices
}
