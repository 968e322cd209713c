package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// priceKey namespaces last-price entries.
func priceKey(mint string) string {
	return "snipebot:price:" + mint
}

// PriceCache stores the last successful price observation per mint. It is a
// convenience for restarted processes and external tooling; the engine never
// treats it as a source of truth.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl means entries never expire.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

// SetPrice records the latest price and observation time for a mint.
func (pc *PriceCache) SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error {
	err := pc.rdb.HSet(ctx, priceKey(mint),
		"price", strconv.FormatFloat(price, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set price %s: %w", mint, err)
	}
	if pc.ttl > 0 {
		if err := pc.rdb.Expire(ctx, priceKey(mint), pc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire price %s: %w", mint, err)
		}
	}
	return nil
}

// GetPrice returns the cached price and its observation time for a mint.
func (pc *PriceCache) GetPrice(ctx context.Context, mint string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(mint)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", mint, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, redis.Nil
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse cached price %s: %w", mint, err)
	}
	millis, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse cached ts %s: %w", mint, err)
	}
	return price, time.UnixMilli(millis).UTC(), nil
}
