package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Emitter 提示音发射器；Emit 不阻塞调用方，队列满时丢弃
type Emitter struct {
	player Player
	wav    []byte
	logger *zap.Logger

	queue chan string
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewEmitter 创建发射器（提示音预先合成）
func NewEmitter(player Player, tone Tone, queueSize int, logger *zap.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Emitter{
		player: player,
		wav:    tone.WAV(),
		logger: logger,
		queue:  make(chan string, queueSize),
		done:   make(chan struct{}),
	}
}

// Start 启动播放协程
func (e *Emitter) Start(ctx context.Context) {
	if p, ok := e.player.(interface{ Available() error }); ok {
		if err := p.Available(); err != nil {
			// 音频不可用不影响坐姿跟踪
			e.logger.Warn("Audio output unavailable, alerts will be logged only", zap.Error(err))
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case reason := <-e.queue:
				e.play(ctx, reason)
			}
		}
	}()
}

// Emit 提交一次提醒；返回是否入队
func (e *Emitter) Emit(reason string) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.queue <- reason:
		return true
	default:
		e.logger.Debug("Alert queue full, tone dropped", zap.String("reason", reason))
		return false
	}
}

func (e *Emitter) play(ctx context.Context, reason string) {
	playCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.player.Play(playCtx, e.wav); err != nil {
		e.logger.Warn("Failed to play alert tone",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("Alert tone played", zap.String("reason", reason))
}

// Close 停止播放协程
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}
