package dump

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache holds materialized tables for the lifetime of one analysis run.
// Concurrent first reads of the same table share a single parse.
type Cache struct {
	group  singleflight.Group
	mu     sync.RWMutex
	tables map[string]cacheEntry
	parses atomic.Int64
}

type cacheEntry struct {
	table *Table
	err   error
}

// NewCache creates an empty table cache
func NewCache() *Cache {
	return &Cache{tables: make(map[string]cacheEntry)}
}

// Parses returns how many tables have been materialized through this cache
func (c *Cache) Parses() int64 {
	return c.parses.Load()
}

// Len returns the number of cached tables
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// Reset drops every cached table
func (c *Cache) Reset() {
	c.mu.Lock()
	c.tables = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tables[key]
	return e, ok
}

func (c *Cache) load(key string, parse func() (*Table, error)) (*Table, error) {
	if e, ok := c.get(key); ok {
		return e.table, e.err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// a flight that finished between get and Do already stored the result
		if e, ok := c.get(key); ok {
			return e.table, e.err
		}

		c.parses.Add(1)
		t, err := parse()

		// cancellation belongs to the caller, not to the table
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.mu.Lock()
			c.tables[key] = cacheEntry{table: t, err: err}
			c.mu.Unlock()
		}
		return t, err
	})

	t, _ := v.(*Table)
	return t, err
}
