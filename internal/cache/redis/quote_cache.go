package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// QuoteCache mirrors the latest observed quote per asset in a Redis hash at
// "moonbot:quote:<asset>" with fields "price" and "ts" (Unix nanoseconds).
// The monitor and the streaming feed write through it; readers treat a miss
// or stale entry as cache-cold and fall back to the oracle, so entries carry
// a TTL.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache. A non-positive ttl keeps entries for
// one minute.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(asset string) string {
	return "moonbot:quote:" + asset
}

// SetPrice stores the latest quote and observation time for asset.
func (qc *QuoteCache) SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error {
	key := quoteKey(asset)

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, qc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", asset, err)
	}
	return nil
}

// GetPrice returns the cached quote and its observation time, or
// domain.ErrNotFound when no entry exists.
func (qc *QuoteCache) GetPrice(ctx context.Context, asset string) (float64, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get quote %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse quote %s: %w", asset, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse quote ts %s: %w", asset, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*QuoteCache)(nil)
