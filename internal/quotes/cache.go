package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/investverse/internal/models"
)

const cacheKeyPrefix = "quote:"

// redisClient is the subset of *redis.Client used by Cache
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache keeps recent quotes in Redis in front of another provider.
// Redis errors are logged and the lookup falls through to the provider.
type Cache struct {
	next   Provider
	rdb    redisClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCache wraps next with a Redis cache of the given TTL
func NewCache(next Provider, rdb redisClient, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "quote_cache").Logger(),
	}
}

// GetQuote returns a cached quote when present, otherwise asks the wrapped provider
func (c *Cache) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	key := cacheKeyPrefix + symbol

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var q models.Quote
		if jerr := json.Unmarshal(raw, &q); jerr == nil {
			return q, nil
		}
		c.logger.Warn().Str("symbol", symbol).Msg("Discarding undecodable cached quote")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
	}

	q, err := c.next.GetQuote(ctx, symbol)
	if err != nil {
		return models.Quote{}, err
	}

	data, err := json.Marshal(q)
	if err != nil {
		return q, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache write failed")
	}
	return q, nil
}
