// Package cache stores generated market series in Redis so repeated runs and
// sweeps over the same generator parameters skip regeneration. The cache is
// strictly best-effort: any Redis failure degrades to direct generation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/stratrun/internal/market"
)

// Cache is a Redis-backed series cache
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection
func New(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{client: rdb, ttl: ttl}, nil
}

// Key derives the cache key for a generator configuration
func Key(cfg market.GenConfig) string {
	return fmt.Sprintf("stratrun:series:%d:%d:%g", cfg.Seed, cfg.Days, cfg.BasePrice)
}

// Get retrieves a cached series. The bool reports whether the key was present.
func (c *Cache) Get(ctx context.Context, key string) (market.Series, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var series market.Series
	if err := json.Unmarshal([]byte(val), &series); err != nil {
		return nil, false, fmt.Errorf("decode cached series: %w", err)
	}
	return series, true, nil
}

// Put stores a series under key with the configured TTL
func (c *Cache) Put(ctx context.Context, key string, series market.Series) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// GetOrGenerate returns the cached series for cfg, generating and caching it
// on a miss. Redis failures are logged and never fail the call.
func (c *Cache) GetOrGenerate(ctx context.Context, cfg market.GenConfig) (market.Series, error) {
	key := Key(cfg)

	series, found, err := c.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Series cache read failed, regenerating")
	} else if found {
		log.Debug().Str("key", key).Int("bars", series.Len()).Msg("Series cache hit")
		return series, nil
	}

	series, err = market.Generate(cfg)
	if err != nil {
		return nil, err
	}

	if err := c.Put(ctx, key, series); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Series cache write failed")
	}
	return series, nil
}

// Close releases the underlying Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
