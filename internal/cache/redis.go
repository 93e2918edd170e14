package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxJitterMinutes = 5

// Each entry is a hash of the basket revision and its JSON encoding.
const (
	revisionField = "rev"
	dataField     = "data"
)

// setIfNewerScript writes the entry only when the stored revision is older
// than ARGV[1] or there is no entry yet. Returns 1 when written.
const setIfNewerScript = `
local current = redis.call('HGET', KEYS[1], 'rev')
if current and tonumber(current) >= tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Basket, error) {
	data, err := r.client.HGet(ctx, cacheKey(userID), dataField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var basket domain.Basket
	if err := json.Unmarshal(data, &basket); err != nil {
		return nil, fmt.Errorf("unmarshal basket failed: %w", err)
	}

	return &basket, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, basket *domain.Basket) error {
	data, err := json.Marshal(basket)
	if err != nil {
		return fmt.Errorf("marshal basket failed: %w", err)
	}

	result, err := r.client.Eval(ctx, setIfNewerScript,
		[]string{cacheKey(userID)},
		basket.Revision, data, r.ttl().Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if _, ok := result.(int64); !ok {
		return fmt.Errorf("unexpected result type: %T", result)
	}
	return nil
}

// ttl is jittered so entries written together do not expire together.
func (r *RedisCache) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(maxJitterMinutes)) * time.Minute
	return r.baseTTL + jitter
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("basket:%s", userID)
}
