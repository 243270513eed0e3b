// Package redis is a Redis-backed implementation of the materialized
// balance cache. Entries carry the ledger sequence they were computed
// at; the projector discards any entry whose sequence no longer matches,
// so the cache can never serve a balance that disagrees with the
// committed history.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finbooks/ledger/internal/interfaces"
)

// Cache stores CachedBalance values as JSON under
// balance:<ledger>:<account>:<commodity> keys with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ interfaces.BalanceCache = (*Cache)(nil)

// NewCache wraps a connected client. A zero ttl keeps entries until
// evicted.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func balanceKey(ledgerID, accountID, commodity string) string {
	return fmt.Sprintf("balance:%s:%s:%s", ledgerID, accountID, commodity)
}

func (c *Cache) Get(ctx context.Context, ledgerID, accountID, commodity string) (interfaces.CachedBalance, bool, error) {
	data, err := c.client.Get(ctx, balanceKey(ledgerID, accountID, commodity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return interfaces.CachedBalance{}, false, nil
	}

	if err != nil {
		return interfaces.CachedBalance{}, false, err
	}

	var cached interfaces.CachedBalance
	if err := json.Unmarshal(data, &cached); err != nil {
		return interfaces.CachedBalance{}, false, err
	}

	return cached, true, nil
}

func (c *Cache) Put(ctx context.Context, ledgerID, accountID, commodity string, balance interfaces.CachedBalance) error {
	data, err := json.Marshal(balance)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, balanceKey(ledgerID, accountID, commodity), data, c.ttl).Err()
}
