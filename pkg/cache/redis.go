package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/pkg/config"
	"github.com/noah-isme/schedule-sync/pkg/retry"
)

var connectPolicy = retry.Connect

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "schedule-sync:"

// Key joins parts under KeyPrefix.
func Key(parts ...string) string {
	key := KeyPrefix
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

// NewRedis returns a configured Redis client after a successful ping. Pings
// are retried with exponential backoff while the server comes up.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := retry.Do(ctx, connectPolicy, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}, func(err error, next time.Duration) {
		logger.Warn("redis not ready, retrying", zap.String("addr", addr), zap.Duration("next", next), zap.Error(err))
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, nil
}
