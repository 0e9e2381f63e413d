package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokoledger/backend/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetDailySummary(ctx context.Context, key string) (*domain.DailySummary, bool, error) {
	var summary domain.DailySummary
	ok, err := c.get(ctx, "report:daily:"+key, &summary)
	if !ok || err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisReportCache) SetDailySummary(ctx context.Context, key string, value *domain.DailySummary, ttl time.Duration) error {
	return c.set(ctx, "report:daily:"+key, value, ttl)
}

func (c *RedisReportCache) InvalidateDailySummary(ctx context.Context, key string) error {
	return c.client.Del(ctx, "report:daily:"+key).Err()
}

func (c *RedisReportCache) GetLowStock(ctx context.Context, key string) (*domain.LowStockResponse, bool, error) {
	var resp domain.LowStockResponse
	ok, err := c.get(ctx, "report:lowstock:"+key, &resp)
	if !ok || err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisReportCache) SetLowStock(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error {
	return c.set(ctx, "report:lowstock:"+key, value, ttl)
}

func (c *RedisReportCache) InvalidateLowStock(ctx context.Context, key string) error {
	return c.client.Del(ctx, "report:lowstock:"+key).Err()
}

func (c *RedisReportCache) get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
