package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vitalband/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const latestReadingKeyPrefix = "vitals:latest:"

// LatestReadingCache 最新读数缓存管理器
// 按 设备+指标 缓存最近一条领域记录（JSON），供实时展示/聚合读取
type LatestReadingCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewLatestReadingCache 创建缓存管理器
func NewLatestReadingCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *LatestReadingCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LatestReadingCache{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// key 构建缓存键
func (c *LatestReadingCache) key(deviceID string, metric domain.Metric) string {
	return fmt.Sprintf("%s%s:%s", latestReadingKeyPrefix, deviceID, metric)
}

// SetLatest 写入最新读数（带 TTL）
func (c *LatestReadingCache) SetLatest(ctx context.Context, deviceID string, metric domain.Metric, record interface{}) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal latest reading: %w", err)
	}

	key := c.key(deviceID, metric)
	if err := c.redisClient.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest reading cache: %w", err)
	}

	c.logger.Debug("Updated latest reading cache",
		zap.String("device_id", deviceID),
		zap.String("metric", string(metric)),
		zap.String("key", key),
	)

	return nil
}

// GetLatest 读取最新读数到 dest（JSON 反序列化）
func (c *LatestReadingCache) GetLatest(ctx context.Context, deviceID string, metric domain.Metric, dest interface{}) error {
	val, err := c.redisClient.Get(ctx, c.key(deviceID, metric)).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("latest reading not found for device %s metric %s", deviceID, metric)
		}
		return fmt.Errorf("failed to get latest reading cache: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal latest reading: %w", err)
	}

	return nil
}

// DeleteDevice 清除某设备的全部缓存读数（设备移除时）
func (c *LatestReadingCache) DeleteDevice(ctx context.Context, deviceID string) error {
	pattern := fmt.Sprintf("%s%s:*", latestReadingKeyPrefix, deviceID)

	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	return nil
}
