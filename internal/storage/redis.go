package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dilsidhu13/secdrop/internal/models"
)

const (
	// CacheTTL is the time-to-live for cached transfer metadata.
	CacheTTL = 5 * time.Minute
)

// RedisCache caches transfer metadata in front of the registry on the
// read-heavy download/metadata path. Mutating paths invalidate.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache initializes a Redis client and verifies connectivity.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// GetTransfer retrieves cached transfer metadata. A miss returns
// (nil, nil), it is not an error.
func (rc *RedisCache) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	ctx, span := tracer.Start(ctx, "redis.get_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, cacheKey(id)).Result()

	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var t models.Transfer
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached transfer: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &t, nil
}

// SetTransfer stores transfer metadata in the cache.
func (rc *RedisCache) SetTransfer(ctx context.Context, t *models.Transfer) error {
	ctx, span := tracer.Start(ctx, "redis.set_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", t.ID),
		),
	)
	defer span.End()

	data, err := json.Marshal(t)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal transfer: %w", err)
	}

	if err := rc.client.Set(ctx, cacheKey(t.ID), data, CacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// InvalidateTransfer drops cached metadata after a mutation.
func (rc *RedisCache) InvalidateTransfer(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_transfer",
		trace.WithAttributes(
			attribute.String("transfer_id", id),
		),
	)
	defer span.End()

	if err := rc.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}

func cacheKey(id string) string {
	return fmt.Sprintf("transfer:%s", id)
}
