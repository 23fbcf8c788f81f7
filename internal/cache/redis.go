// Package cache provides the Redis-backed hot-result collaborator the
// risk engine consults on its cache fast path (spec §6/§9).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a thin, prefix-namespaced wrapper over go-redis, kept
// generic (not fraud-specific) the way the teacher's redis.go wraps it.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, prefix string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     100,
		MinIdleConns: 10,
		ConnMaxLifetime: 30 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	return &RedisCache{client: client, prefix: prefix, ttl: 5 * time.Minute}
}

func (rc *RedisCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	fullKey := rc.prefix + ":" + key

	data, err := rc.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return true, nil
}

func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	fullKey := rc.prefix + ":" + key

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	if ttl == 0 {
		ttl = rc.ttl
	}
	if err := rc.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.prefix+":"+key).Err()
}

func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// RiskCache implements risk.Cache over a RedisCache, storing one
// float64 per user_id under "risk:<user_id>".
type RiskCache struct {
	redis *RedisCache
}

func NewRiskCache(redis *RedisCache) *RiskCache {
	return &RiskCache{redis: redis}
}

func riskKey(userID string) string {
	return "risk:" + userID
}

func (c *RiskCache) GetUserRisk(ctx context.Context, userID string) (float64, bool, error) {
	var risk float64
	found, err := c.redis.Get(ctx, riskKey(userID), &risk)
	if err != nil {
		return 0, false, err
	}
	return risk, found, nil
}

func (c *RiskCache) SetUserRisk(ctx context.Context, userID string, risk float64, ttl time.Duration) error {
	return c.redis.Set(ctx, riskKey(userID), risk, ttl)
}

func (c *RiskCache) Invalidate(ctx context.Context, userID string) error {
	return c.redis.Delete(ctx, riskKey(userID))
}
