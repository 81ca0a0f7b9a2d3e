package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biosig/biosigner/config"
	"github.com/biosig/biosigner/contexthelper"
	"github.com/biosig/biosigner/internal/types"
)

type RedisStorage struct {
	cfg    config.Config
	client *redis.Client
}

func NewRedisStorage(cfg config.Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	return r.client.Set(ctx, key, value, expiry).Err()
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return "", ctx.Err()
	}
	return r.client.Get(ctx, key).Result()
}

// SetIdentityCacheItem caches a registry record to keep duplicate-DID checks
// off the database on the hot path.
func (r *RedisStorage) SetIdentityCacheItem(ctx context.Context, record *types.IdentityRecord, expiry time.Duration) error {
	if contexthelper.CheckCancellation(ctx) != nil {
		return ctx.Err()
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("fail to serialize identity record to json, err: %w", err)
	}
	return r.client.Set(ctx, identityCacheKey(record.Did), string(recordJSON), expiry).Err()
}

// GetIdentityCacheItem returns a cached registry record by DID.
func (r *RedisStorage) GetIdentityCacheItem(ctx context.Context, didStr string) (*types.IdentityRecord, error) {
	if contexthelper.CheckCancellation(ctx) != nil {
		return nil, ctx.Err()
	}
	recordJSON, err := r.client.Get(ctx, identityCacheKey(didStr)).Result()
	if err != nil {
		return nil, fmt.Errorf("fail to get identity record, err: %w", err)
	}
	var record types.IdentityRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("fail to deserialize identity record, err: %w", err)
	}
	return &record, nil
}

func identityCacheKey(didStr string) string {
	return fmt.Sprintf("identity-%s", didStr)
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
