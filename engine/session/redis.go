package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the production Cache, backed by a Redis list per session
// key with an expiry refreshed on every push.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// RedisConfig names the connection coordinates.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache opens a connection and verifies it with a ping.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func newRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Push(ctx context.Context, sessionKey string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("session: marshal turn: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, sessionKey, data)
	pipe.Expire(ctx, sessionKey, c.ttl)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: push: %w", err)
	}
	return nil
}

func (c *RedisCache) RangeLastN(ctx context.Context, sessionKey string, n int) ([]Turn, error) {
	if n <= 0 {
		n = DefaultDurableFallback
	}
	raw, err := c.client.LRange(ctx, sessionKey, int64(-n), -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: range: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (c *RedisCache) Delete(ctx context.Context, sessionKey string) error {
	if err := c.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, sessionKey string) (bool, error) {
	n, err := c.client.Exists(ctx, sessionKey).Result()
	if err != nil {
		return false, fmt.Errorf("session: exists: %w", err)
	}
	return n > 0, nil
}
