package service

import (
	"context"
	"fmt"

	"wisefido-posture/internal/alert"
	"wisefido-posture/internal/cache"
	"wisefido-posture/internal/classifier"
	"wisefido-posture/internal/config"
	"wisefido-posture/internal/models"
	"wisefido-posture/internal/publisher"
	"wisefido-posture/internal/sampler"

	"go.uber.org/zap"
)

// Classifier 坐姿分类器（失败时返回 Unknown 结果，不返回错误）
type Classifier interface {
	Classify(ctx context.Context, seq uint64, dataURL string) models.ClassificationResult
}

// SnapshotStore 实时快照存储
type SnapshotStore interface {
	Update(ctx context.Context, snap models.Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// Deps 会话依赖的外部组件
type Deps struct {
	Source     sampler.FrameSource
	Classifier Classifier
	Player     alert.Player        // nil 表示不播放提示音
	Snapshots  SnapshotStore       // nil 表示不写 Redis
	Publisher  publisher.Publisher // nil 表示不发布 MQTT

	closers []func()
}

// BuildDeps 按配置创建依赖；Redis / MQTT 地址为空时不启用
func BuildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Deps, error) {
	p := cfg.Posture
	deps := Deps{}

	// 1. 视频源
	if p.Video.Image != "" {
		deps.Source = sampler.NewImageSource(p.Video.Image)
	} else {
		deps.Source = sampler.NewDeviceSource(p.Video.FFmpegPath, p.Video.Device, p.Video.Width, p.Video.Height, logger)
	}

	// 2. 分类客户端
	subset, err := models.ParseKeypointSubset(p.KeypointSubset)
	if err != nil {
		return Deps{}, err
	}
	deps.Classifier = classifier.NewClient(p.Inference.Endpoint, cfg.InferenceTimeout(), subset, logger)

	// 3. 提示音
	if p.Alert.Enabled {
		deps.Player = alert.NewCommandPlayer(p.Alert.Player)
	}

	// 4. Redis 实时快照
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return Deps{}, err
		}
		deps.Snapshots = cache.NewSnapshotCache(
			cache.NewRedisKVStore(redisClient),
			p.Snapshot.KeyPrefix,
			p.Snapshot.Suffix,
			cfg.SnapshotTTL(),
			logger,
		)
		deps.closers = append(deps.closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close redis", zap.Error(err))
			}
		})
		logger.Info("Realtime snapshot cache enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	// 5. MQTT 事件发布
	if cfg.MQTT.Broker != "" {
		mqttClient, err := publisher.NewClient(&cfg.MQTT)
		if err != nil {
			deps.Close()
			return Deps{}, fmt.Errorf("failed to create mqtt publisher: %w", err)
		}
		deps.Publisher = publisher.NewEventPublisher(mqttClient, p.TopicPrefix, cfg.MQTT.QoS, logger)
		logger.Info("Posture event publisher enabled", zap.String("broker", cfg.MQTT.Broker))
	}

	return deps, nil
}

// Close 释放 BuildDeps 创建的连接
func (d Deps) Close() {
	for _, fn := range d.closers {
		fn()
	}
}
