// Package memory is an in-process implementation of the materialized
// balance cache, for tests and single-node runs without Redis.
package memory

import (
	"context"
	"sync"

	"github.com/finbooks/ledger/internal/interfaces"
)

type key struct {
	ledgerID  string
	accountID string
	commodity string
}

// Cache keeps cached balances in a mutex-guarded map.
type Cache struct {
	mu      sync.Mutex
	entries map[key]interfaces.CachedBalance
}

var _ interfaces.BalanceCache = (*Cache)(nil)

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[key]interfaces.CachedBalance)}
}

func (c *Cache) Get(_ context.Context, ledgerID, accountID, commodity string) (interfaces.CachedBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.entries[key{ledgerID, accountID, commodity}]

	return cached, ok, nil
}

func (c *Cache) Put(_ context.Context, ledgerID, accountID, commodity string, balance interfaces.CachedBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key{ledgerID, accountID, commodity}] = balance

	return nil
}
