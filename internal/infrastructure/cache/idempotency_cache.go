package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"loyalty-server/internal/domain/transaction"
)

const keyPrefix = "loyalty:idem"

// redisClient 使用するRedisコマンドのみを持つインターフェース
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// IdempotencyCache Redisを使った冪等キーキャッシュ
type IdempotencyCache struct {
	client redisClient
	ttl    time.Duration
}

var _ transaction.IdempotencyCache = (*IdempotencyCache)(nil)

// NewIdempotencyCache 新しいIdempotencyCacheを作成
func NewIdempotencyCache(client redisClient, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisClient 設定からRedisクライアントを作成し疎通を確認する
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Lookup 記録済みの結果IDを返す
func (c *IdempotencyCache) Lookup(ctx context.Context, scope, memberID, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(scope, memberID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return val, true, nil
}

// Remember 結果IDを記録する
func (c *IdempotencyCache) Remember(ctx context.Context, scope, memberID, key, resultID string) error {
	if err := c.client.Set(ctx, cacheKey(scope, memberID, key), resultID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return nil
}

func cacheKey(scope, memberID, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, scope, memberID, key)
}
