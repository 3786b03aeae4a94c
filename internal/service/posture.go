package service

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"sync"
	"time"

	"wisefido-posture/internal/alert"
	"wisefido-posture/internal/config"
	"wisefido-posture/internal/models"
	"wisefido-posture/internal/overlay"
	"wisefido-posture/internal/posture"
	"wisefido-posture/internal/publisher"
	"wisefido-posture/internal/sampler"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 单次 Redis 快照写入超时
const snapshotWriteTimeout = time.Second

// Display 视频显示尺寸（叠加层画布尺寸）
type Display struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Status 会话状态（HTTP 状态接口）
type Status struct {
	models.Snapshot
	Keypoints []models.Keypoint `json:"keypoints"`
	LastSeq   uint64            `json:"last_seq"`
	Display   Display           `json:"display"`
}

// PostureService 坐姿监测会话
//
// 事件循环独占状态机、计时器和最近一次结果；
// 分类请求在独立协程中执行，结果通过 results 通道回到事件循环。
type PostureService struct {
	config    *config.Config
	logger    *zap.Logger
	sessionID string

	source     sampler.FrameSource
	sampler    *sampler.Sampler
	classifier Classifier
	machine    *posture.Machine
	renderer   *overlay.Renderer
	emitter    *alert.Emitter
	snapshots  SnapshotStore
	publisher  publisher.Publisher
	deps       Deps

	sampleInterval time.Duration
	streakInterval time.Duration

	// 以下字段仅由事件循环访问
	results     chan models.ClassificationResult
	seq         uint64
	lastApplied uint64
	lastResult  models.ClassificationResult

	displayChanged chan struct{}
	inflight       sync.WaitGroup
	stopOnce       sync.Once
	cancel         context.CancelFunc
	done           chan struct{}
	stopped        bool

	mu      sync.RWMutex
	status  Status
	display Display
}

// NewPostureService 创建坐姿监测会话
func NewPostureService(cfg *config.Config, logger *zap.Logger, deps Deps) (*PostureService, error) {
	if deps.Source == nil {
		return nil, errors.New("video source is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("classifier is required")
	}

	p := cfg.Posture
	transform := overlay.Transform{
		XScale:  p.Overlay.XScale,
		OffsetX: p.Overlay.OffsetX,
		OffsetY: p.Overlay.OffsetY,
	}
	display := Display{Width: p.Display.Width, Height: p.Display.Height}

	s := &PostureService{
		config:         cfg,
		logger:         logger,
		sessionID:      uuid.New().String(),
		source:         deps.Source,
		sampler:        sampler.NewSampler(),
		classifier:     deps.Classifier,
		machine:        posture.NewMachine(nil),
		renderer:       overlay.NewRenderer(transform, nil, display.Width, display.Height),
		snapshots:      deps.Snapshots,
		publisher:      deps.Publisher,
		deps:           deps,
		sampleInterval: cfg.SampleInterval(),
		streakInterval: cfg.StreakInterval(),
		results:        make(chan models.ClassificationResult, 4),
		displayChanged: make(chan struct{}, 1),
		display:        display,
	}
	if s.publisher == nil {
		s.publisher = publisher.NopPublisher{}
	}
	if deps.Player != nil {
		s.emitter = alert.NewEmitter(deps.Player, alert.DefaultTone(), p.Alert.QueueSize, logger)
	}

	s.status = Status{
		Snapshot: s.initialSnapshot(),
		Display:  display,
	}
	s.status.Keypoints = []models.Keypoint{}

	return s, nil
}

// SessionID 会话ID
func (s *PostureService) SessionID() string {
	return s.sessionID
}

// Start 启动会话，阻塞直到 ctx 取消
func (s *PostureService) Start(ctx context.Context) error {
	s.logger.Info("Starting posture session",
		zap.String("session_id", s.sessionID),
		zap.Duration("sample_interval", s.sampleInterval),
		zap.Duration("streak_interval", s.streakInterval),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)

	// Stop 先于 Start 执行时不再启动视频源和计时器
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Warn("Posture session already stopped", zap.String("session_id", s.sessionID))
		return nil
	}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	// 视频源启动失败不退出：记录状态，采样空转
	if err := s.source.Start(ctx); err != nil {
		s.setCaptureError(err)
	}

	if s.emitter != nil {
		s.emitter.Start(ctx)
	}

	s.run(ctx)
	return nil
}

// run 会话事件循环
func (s *PostureService) run(ctx context.Context) {
	sampleTicker := time.NewTicker(s.sampleInterval)
	defer sampleTicker.Stop()

	// 连续计时器仅在有连续状态时运行；nil 通道永不就绪
	var streakTicker *time.Ticker
	var streakC <-chan time.Time
	stopStreak := func() {
		if streakTicker != nil {
			streakTicker.Stop()
			streakTicker = nil
			streakC = nil
		}
	}
	defer stopStreak()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Posture session loop stopped", zap.String("session_id", s.sessionID))
			return

		case <-sampleTicker.C:
			s.sample(ctx)

		case res := <-s.results:
			if res.Seq <= s.lastApplied {
				s.logger.Debug("Discarding stale classification result",
					zap.Uint64("seq", res.Seq),
					zap.Uint64("last_applied", s.lastApplied),
				)
				continue
			}
			s.lastApplied = res.Seq

			change := s.apply(ctx, res)
			if change.KindChanged() {
				stopStreak()
				if change.Curr.Active() {
					streakTicker = time.NewTicker(s.streakInterval)
					streakC = streakTicker.C
				}
			}

		case <-streakC:
			s.tick(ctx)

		case <-s.displayChanged:
			w, h := s.displaySize()
			s.renderer.Render(s.lastResult, w, h)
		}
	}
}

// sample 采样一帧并异步提交分类
func (s *PostureService) sample(ctx context.Context) {
	frame, err := s.sampler.Capture(s.source)
	if err != nil {
		if errors.Is(err, sampler.ErrNoFrame) {
			if srcErr := s.source.Err(); srcErr != nil {
				s.setCaptureError(srcErr)
			}
			return
		}
		s.logger.Warn("Failed to capture frame", zap.Error(err))
		return
	}

	s.seq++
	seq := s.seq
	dataURL := frame.DataURL()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res := s.classifier.Classify(ctx, seq, dataURL)
		select {
		case s.results <- res:
		case <-ctx.Done():
		}
	}()
}

// apply 应用一次分类结果：重绘叠加层、更新状态机
func (s *PostureService) apply(ctx context.Context, res models.ClassificationResult) posture.Change {
	if res.Keypoints == nil {
		res.Keypoints = []models.Keypoint{}
	}
	s.lastResult = res
	w, h := s.displaySize()
	s.renderer.Render(res, w, h)

	change := s.machine.Apply(res.Verdict)

	s.mu.Lock()
	s.status.Verdict = res.Verdict
	s.status.Status = res.Verdict.StatusText()
	s.status.Keypoints = res.Keypoints
	s.status.KeypointCount = len(res.Keypoints)
	s.status.LastSeq = res.Seq
	s.setStreakLocked(change.Curr)
	snap := s.status.Snapshot
	s.mu.Unlock()

	if change.KindChanged() {
		s.logger.Info("Posture streak changed",
			zap.String("session_id", s.sessionID),
			zap.Stringer("from", change.Prev.Kind),
			zap.Stringer("to", change.Curr.Kind),
			zap.Int("prev_elapsed_seconds", change.Prev.Elapsed),
		)
		evt := models.StateEvent{
			SessionID:   s.sessionID,
			PrevStreak:  change.Prev.Kind.String(),
			Streak:      change.Curr.Kind.String(),
			PrevElapsed: change.Prev.Elapsed,
			Verdict:     res.Verdict,
			ChangedAt:   snap.UpdatedAt,
		}
		if err := s.publisher.PublishState(evt); err != nil {
			s.logger.Warn("Failed to publish state event", zap.Error(err))
		}
	}

	s.writeSnapshot(ctx, snap)
	return change
}

// tick 连续计时一秒，必要时触发提醒
func (s *PostureService) tick(ctx context.Context) {
	streak, a := s.machine.Tick()

	s.mu.Lock()
	s.setStreakLocked(streak)
	snap := s.status.Snapshot
	s.mu.Unlock()

	if a != nil {
		s.logger.Info("Bad posture alert",
			zap.String("session_id", s.sessionID),
			zap.String("rule", a.Rule.Name),
			zap.String("level", a.Rule.Level),
			zap.Int("elapsed_seconds", a.Elapsed),
		)
		if s.emitter != nil {
			s.emitter.Emit(a.Rule.Name)
		}
		evt := models.NewAlertEvent(s.sessionID, a.Rule.Name, a.Rule.Level, a.Elapsed, snap.UpdatedAt)
		if err := s.publisher.PublishAlert(evt); err != nil {
			s.logger.Warn("Failed to publish alert event", zap.Error(err))
		}
	}

	s.writeSnapshot(ctx, snap)
}

func (s *PostureService) writeSnapshot(ctx context.Context, snap models.Snapshot) {
	if s.snapshots == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, snapshotWriteTimeout)
	defer cancel()
	if err := s.snapshots.Update(writeCtx, snap); err != nil {
		s.logger.Warn("Failed to write posture snapshot", zap.Error(err))
	}
}

func (s *PostureService) setStreakLocked(streak posture.Streak) {
	s.status.Streak = streak.Kind.String()
	s.status.ElapsedSeconds = streak.Elapsed
	s.status.UpdatedAt = time.Now().UTC()
}

func (s *PostureService) initialSnapshot() models.Snapshot {
	return models.Snapshot{
		SessionID: s.sessionID,
		Verdict:   models.VerdictUnknown,
		Status:    models.VerdictUnknown.StatusText(),
		Streak:    posture.KindNone.String(),
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *PostureService) setCaptureError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.CaptureError == err.Error() {
		return
	}
	s.status.CaptureError = err.Error()
	s.logger.Error("Video capture unavailable",
		zap.String("session_id", s.sessionID),
		zap.Error(err),
	)
}

// Status 当前会话状态快照
func (s *PostureService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.status
	st.Display = s.display
	st.Keypoints = append([]models.Keypoint(nil), s.status.Keypoints...)
	if st.Keypoints == nil {
		st.Keypoints = []models.Keypoint{}
	}
	return st
}

// SetDisplay 更新视频显示尺寸，叠加层在事件循环中按新尺寸重绘
func (s *PostureService) SetDisplay(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid display size: %dx%d", width, height)
	}

	s.mu.Lock()
	s.display = Display{Width: width, Height: height}
	s.mu.Unlock()

	select {
	case s.displayChanged <- struct{}{}:
	default:
	}
	return nil
}

func (s *PostureService) displaySize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display.Width, s.display.Height
}

// WriteOverlayPNG 输出当前叠加层
func (s *PostureService) WriteOverlayPNG(w io.Writer) error {
	return s.renderer.WritePNG(w)
}

// WriteFramePNG 输出最近一次采样帧（256×192）
func (s *PostureService) WriteFramePNG(w io.Writer) error {
	frame, ok := s.sampler.Latest()
	if !ok {
		return sampler.ErrNoFrame
	}
	_, err := w.Write(frame.PNG)
	return err
}

// WriteViewPNG 输出视频帧与叠加层的合成图
func (s *PostureService) WriteViewPNG(w io.Writer) error {
	img, ok := s.source.Latest()
	if !ok {
		return sampler.ErrNoFrame
	}
	return png.Encode(w, s.renderer.Composite(img))
}

// Stop 停止会话并释放视频源与外部连接
func (s *PostureService) Stop() error {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping posture session", zap.String("session_id", s.sessionID))

		// 停止事件循环，丢弃仍在进行的分类请求
		s.mu.Lock()
		s.stopped = true
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
		s.inflight.Wait()

		// 会话结束，清除实时快照（不等待 TTL 过期）
		if s.snapshots != nil {
			ctx, cancel := context.WithTimeout(context.Background(), snapshotWriteTimeout)
			if err := s.snapshots.Delete(ctx, s.sessionID); err != nil {
				s.logger.Warn("Failed to delete posture snapshot", zap.Error(err))
			}
			cancel()
		}

		if err := s.source.Close(); err != nil {
			s.logger.Error("Failed to release video source", zap.Error(err))
		}
		if s.emitter != nil {
			s.emitter.Close()
		}
		s.publisher.Close()
		s.deps.Close()
	})
	return nil
}
