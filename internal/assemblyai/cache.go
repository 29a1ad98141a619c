package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache stores finished transcript documents by job id.
type Cache interface {
	Get(ctx context.Context, id string) (json.RawMessage, bool)
	Put(ctx context.Context, id string, raw json.RawMessage)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (json.RawMessage, bool) { return nil, false }
func (noCache) Put(context.Context, string, json.RawMessage)        {}

const (
	cacheKeyPrefix = "aai:transcript:"
	cacheTTL       = 24 * time.Hour
)

// RedisCache keeps terminal transcripts in Redis. Errors degrade to cache
// misses so an unavailable Redis never fails a status request.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisCache connects to the Redis instance at redisURL (redis://...).
func NewRedisCache(ctx context.Context, redisURL string, log zerolog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisCache{
		rdb: rdb,
		ttl: cacheTTL,
		log: log.With().Str("component", "status-cache").Logger(),
	}, nil
}

func cacheKey(id string) string { return cacheKeyPrefix + id }

func (c *RedisCache) Get(ctx context.Context, id string) (json.RawMessage, bool) {
	data, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("transcript_id", id).Msg("status cache read failed")
		}
		return nil, false
	}
	return json.RawMessage(data), true
}

func (c *RedisCache) Put(ctx context.Context, id string, raw json.RawMessage) {
	if err := c.rdb.Set(ctx, cacheKey(id), []byte(raw), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("transcript_id", id).Msg("status cache write failed")
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings Redis.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
