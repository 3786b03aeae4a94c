package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-posture/internal/models"

	"go.uber.org/zap"
)

// SnapshotCache 坐姿实时快照缓存（覆盖写入 + TTL，不保留历史）
type SnapshotCache struct {
	kv        KVStore
	keyPrefix string
	suffix    string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(kv KVStore, keyPrefix, suffix string, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		kv:        kv,
		keyPrefix: keyPrefix,
		suffix:    suffix,
		ttl:       ttl,
		logger:    logger,
	}
}

// Key 构建缓存键，如 "posture:session:{id}:realtime"
func (c *SnapshotCache) Key(sessionID string) string {
	return fmt.Sprintf("%s%s%s", c.keyPrefix, sessionID, c.suffix)
}

// Update 写入实时快照
func (c *SnapshotCache) Update(ctx context.Context, snap models.Snapshot) error {
	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := c.Key(snap.SessionID)
	if err := c.kv.Set(ctx, key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	c.logger.Debug("Updated posture snapshot",
		zap.String("key", key),
		zap.String("streak", snap.Streak),
		zap.Int("elapsed_seconds", snap.ElapsedSeconds),
	)
	return nil
}

// Delete 会话结束时删除快照
func (c *SnapshotCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.kv.Del(ctx, c.Key(sessionID)); err != nil {
		return fmt.Errorf("failed to delete snapshot cache: %w", err)
	}
	return nil
}
