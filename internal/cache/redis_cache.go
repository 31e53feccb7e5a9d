package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/storages"
)

const statsKeyPrefix = "gw-auth:stats:"

// RedisStatsCache кеш статистики в Redis. Ошибки Redis не прерывают запрос, а только логируются
type RedisStatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisStatsCache подключается к Redis и проверяет соединение
func NewRedisStatsCache(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *logrus.Logger) (*RedisStatsCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return NewRedisStatsCacheWithClient(rdb, ttl, logger), nil
}

// NewRedisStatsCacheWithClient оборачивает готовый клиент
func NewRedisStatsCacheWithClient(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStatsCache {
	return &RedisStatsCache{rdb: rdb, ttl: ttl, logger: logger}
}

func statsKey(userID uuid.UUID) string {
	return statsKeyPrefix + userID.String()
}

// Get возвращает статистику из Redis
func (c *RedisStatsCache) Get(ctx context.Context, userID uuid.UUID) (*storages.TransactionStats, bool) {
	raw, err := c.rdb.Get(ctx, statsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warnf("Failed to read stats from redis: %v", err)
		return nil, false
	}

	var stats storages.TransactionStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.logger.Warnf("Failed to decode cached stats: %v", err)
		return nil, false
	}
	return &stats, true
}

// Set сохраняет статистику с TTL
func (c *RedisStatsCache) Set(ctx context.Context, userID uuid.UUID, stats *storages.TransactionStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warnf("Failed to encode stats: %v", err)
		return
	}
	if err := c.rdb.Set(ctx, statsKey(userID), raw, c.ttl).Err(); err != nil {
		c.logger.Warnf("Failed to write stats to redis: %v", err)
	}
}

// Invalidate удаляет статистику пользователя
func (c *RedisStatsCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.rdb.Del(ctx, statsKey(userID)).Err(); err != nil {
		c.logger.Warnf("Failed to invalidate stats in redis: %v", err)
	}
}

// Close закрывает соединение с Redis
func (c *RedisStatsCache) Close() error {
	return c.rdb.Close()
}
