package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-activity-report/internal/config"
	"github.com/cam3ron2/github-activity-report/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// NewStoreFromConfig builds the metric store selected by cfg. A Redis
// backend that cannot be reached falls back to an in-memory store.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) store.Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	memory := store.NewMemoryStore(cfg.Store.Retention, cfg.Store.MaxSeriesBudget)
	if !strings.EqualFold(strings.TrimSpace(cfg.Store.Backend), config.BackendRedis) {
		return memory
	}

	redisStore, err := newRedisStoreFromConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
		return memory
	}
	logger.Info("using redis store",
		zap.String("mode", cfg.Store.RedisMode),
		zap.String("namespace", cfg.Store.Namespace),
	)
	return redisStore
}

func newRedisStoreFromConfig(ctx context.Context, cfg *config.Config) (*store.RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	redisClient := newRedisClient(cfg.Store)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisStore(redisClient, store.RedisStoreConfig{
		Namespace: cfg.Store.Namespace,
		Retention: cfg.Store.Retention,
		MaxSeries: cfg.Store.MaxSeriesBudget,
	}), nil
}

func newRedisClient(cfg config.StoreConfig) redis.UniversalClient {
	if strings.EqualFold(cfg.RedisMode, config.RedisModeSentinel) {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.RedisMasterSet,
			SentinelAddrs: cfg.RedisSentinelAddrs,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
