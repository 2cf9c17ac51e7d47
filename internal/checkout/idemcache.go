package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cravier/sweetshop/internal/orders"
	"github.com/cravier/sweetshop/internal/redisx"
)

// IdemCache is the replay fast-path for external-id resubmissions: a hit
// returns the order created by an earlier submission without touching the
// order store. Misses and errors fall through to the store, so the cache is
// never load-bearing for correctness.
type IdemCache interface {
	GetOrder(ctx context.Context, externalID string) (*orders.Order, error)
	PutOrder(ctx context.Context, externalID string, o *orders.Order) error
}

// RedisIdemCache keeps the full order JSON under the idempotency key so a hit
// needs no follow-up lookup.
type RedisIdemCache struct {
	R *redis.Client
}

func NewRedisIdemCache(r *redis.Client) *RedisIdemCache { return &RedisIdemCache{R: r} }

func (c *RedisIdemCache) GetOrder(ctx context.Context, externalID string) (*orders.Order, error) {
	raw, err := c.R.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, externalID)).Bytes()
	if err != nil {
		return nil, err
	}
	var o orders.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	o.ExternalID = externalID
	return &o, nil
}

func (c *RedisIdemCache) PutOrder(ctx context.Context, externalID string, o *orders.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, externalID)
	return c.R.Set(ctx, key, raw, redisx.TTLIdempotency).Err()
}
