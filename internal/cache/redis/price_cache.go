package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// defaultPriceTTL bounds how stale a cached oracle price may be.
const defaultPriceTTL = 15 * time.Second

// PriceCache implements domain.PriceCache with short-TTL string keys, one per
// asset symbol. Expiry stands in for staleness: a missing key is a miss, not
// an error.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client. A
// non-positive ttl falls back to the default.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = defaultPriceTTL
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(asset string) string {
	return "price:" + asset
}

// GetPrice returns the cached price for an asset. ok is false on a miss or
// an unparseable stale value.
func (pc *PriceCache) GetPrice(ctx context.Context, asset string) (decimal.Decimal, bool, error) {
	val, err := pc.rdb.Get(ctx, priceKey(asset)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("redis: get price %s: %w", asset, err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

// SetPrice stores the latest observed price for an asset under the cache TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, asset string, price decimal.Decimal) error {
	if err := pc.rdb.Set(ctx, priceKey(asset), price.String(), pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}
