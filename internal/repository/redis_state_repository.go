package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edtsuite/timetable-core/pkg/config"
	appErrors "github.com/edtsuite/timetable-core/pkg/errors"
)

const redisKeyPrefix = "timetable:"

// RedisStateRepository stores state records as plain redis strings.
type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisStateRepository constructs the repository.
func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

// OpenRedis dials redis from configuration and verifies connectivity.
func OpenRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Load fetches the value stored under key.
func (r *RedisStateRepository) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("key %s not found", key))
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	return value, nil
}

// Save writes the value under key without expiry.
func (r *RedisStateRepository) Save(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear removes every key under the timetable prefix.
func (r *RedisStateRepository) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clear state key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan state keys: %w", err)
	}
	return nil
}
