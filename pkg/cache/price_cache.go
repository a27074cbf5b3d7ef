// Package cache provides a sharded in-memory price cache.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// PriceCache is a sharded cache of last-known prices with timestamps.
type PriceCache struct {
	shards [numShards]*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	price     float64
	source    string
	updatedAt time.Time
}

// New creates an empty price cache.
func New() *PriceCache {
	c := &PriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard{items: make(map[string]entry)}
	}
	return c
}

func (c *PriceCache) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a price for a symbol together with its source.
func (c *PriceCache) Set(symbol string, price float64, source string) {
	s := c.getShard(symbol)
	s.mu.Lock()
	s.items[symbol] = entry{price: price, source: source, updatedAt: time.Now()}
	s.mu.Unlock()
}

// GetFresh returns the cached price if it is younger than maxAge.
func (c *PriceCache) GetFresh(symbol string, maxAge time.Duration) (float64, string, bool) {
	s := c.getShard(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok || time.Since(e.updatedAt) > maxAge {
		return 0, "", false
	}
	return e.price, e.source, true
}

// GetAny returns the cached price regardless of age, plus its age.
func (c *PriceCache) GetAny(symbol string) (float64, time.Duration, bool) {
	s := c.getShard(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return e.price, time.Since(e.updatedAt), true
}

// Len returns total items across all shards.
func (c *PriceCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge and reports how many were removed.
func (c *PriceCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, s := range c.shards {
		s.mu.Lock()
		for sym, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
