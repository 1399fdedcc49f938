package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Cache is the in-process copy of the memory store used for retrieval and
// fitness computation.
type Cache struct {
	mu    sync.RWMutex
	items map[string]TradeMemory
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]TradeMemory)}
}

// Load pulls every memory from the store into the cache.
func (c *Cache) Load(ctx context.Context, store Store) (int, error) {
	ids, err := store.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch memory ids: %w", err)
	}

	loaded := make([]TradeMemory, 0, len(ids))
	for _, id := range ids {
		m, err := store.Fetch(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("fetch memory %s: %w", id, err)
		}
		if m != nil {
			loaded = append(loaded, *m)
		}
	}

	c.mu.Lock()
	for _, m := range loaded {
		c.items[m.ID] = m
	}
	c.mu.Unlock()

	return len(loaded), nil
}

func (c *Cache) Put(m TradeMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[m.ID] = m
}

func (c *Cache) Get(id string) (TradeMemory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[id]
	return m, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// All returns every memory ordered oldest first.
func (c *Cache) All() []TradeMemory {
	c.mu.RLock()
	all := lo.Values(c.items)
	c.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// Finalized returns PROFIT/LOSS memories ordered oldest first.
func (c *Cache) Finalized() []TradeMemory {
	return lo.Filter(c.All(), func(m TradeMemory, _ int) bool { return m.Finalized() })
}

// Recent returns up to n finalized memories, newest last.
func (c *Cache) Recent(n int) []TradeMemory {
	finalized := c.Finalized()
	if n > 0 && len(finalized) > n {
		finalized = finalized[len(finalized)-n:]
	}
	return finalized
}

// ByStrategy returns the finalized memories produced by one strategy gene.
func (c *Cache) ByStrategy(strategyID string) []TradeMemory {
	return lo.Filter(c.Finalized(), func(m TradeMemory, _ int) bool {
		return m.StrategyID == strategyID
	})
}

func (c *Cache) Query(f Filter) []TradeMemory {
	matched := lo.Filter(c.All(), func(m TradeMemory, _ int) bool { return f.Match(m) })
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return matched
}
