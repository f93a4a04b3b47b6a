package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache is a short-TTL cache of oracle price lookups, keyed by asset
// symbol. A miss is reported via ok=false, not an error.
type PriceCache interface {
	GetPrice(ctx context.Context, asset string) (price decimal.Decimal, ok bool, err error)
	SetPrice(ctx context.Context, asset string, price decimal.Decimal) error
}

// RateLimiter bounds how often a keyed action may run inside a rolling
// window. Allow counts the request when it is permitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
