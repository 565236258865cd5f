// internal/exchange/redis_cache.go
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recharge-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CachedRate is a feed-derived rate shared between service instances.
type CachedRate struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// SharedCache lets several instances reuse one feed lookup.
type SharedCache interface {
	Get(ctx context.Context, currency domain.Currency) (*CachedRate, error)
	Set(ctx context.Context, currency domain.Currency, r *CachedRate, ttl time.Duration) error
	Delete(ctx context.Context, currencies ...domain.Currency) error
}

type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func RateKey(currency domain.Currency) string {
	return fmt.Sprintf("recharge:rate:v1:%s", currency)
}

// Get returns nil on a cache miss.
func (c *RedisCache) Get(ctx context.Context, currency domain.Currency) (*CachedRate, error) {
	data, err := c.client.Get(ctx, RateKey(currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var r CachedRate
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &r, nil
}

func (c *RedisCache) Set(ctx context.Context, currency domain.Currency, r *CachedRate, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, RateKey(currency), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, currencies ...domain.Currency) error {
	if len(currencies) == 0 {
		return nil
	}
	keys := make([]string, 0, len(currencies))
	for _, cur := range currencies {
		keys = append(keys, RateKey(cur))
	}
	return c.client.Del(ctx, keys...).Err()
}
