package service

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wisefido-posture/internal/cache"
	"wisefido-posture/internal/config"
	"wisefido-posture/internal/models"
	"wisefido-posture/internal/sampler"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClassifier 按当前设置的结论返回结果
type fakeClassifier struct {
	mu      sync.Mutex
	verdict models.Verdict
	calls   atomic.Int32
}

func (f *fakeClassifier) set(v models.Verdict) {
	f.mu.Lock()
	f.verdict = v
	f.mu.Unlock()
}

func (f *fakeClassifier) Classify(ctx context.Context, seq uint64, dataURL string) models.ClassificationResult {
	f.calls.Add(1)
	f.mu.Lock()
	v := f.verdict
	f.mu.Unlock()

	if v == models.VerdictUnknown {
		return models.UnknownResult(seq)
	}
	kps := make([]models.Keypoint, 13)
	for i := range kps {
		kps[i] = models.Keypoint{Index: i, Name: models.KeypointNames[i], Row: 96, Col: 128}
	}
	return models.ClassificationResult{Seq: seq, Verdict: v, Keypoints: kps, CompletedAt: time.Now()}
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
	states []models.StateEvent
}

func (p *recordingPublisher) PublishAlert(evt models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, evt)
	return nil
}

func (p *recordingPublisher) PublishState(evt models.StateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, evt)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) alertRules() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rules := make([]string, 0, len(p.alerts))
	for _, a := range p.alerts {
		rules = append(rules, a.Rule)
	}
	return rules
}

func (p *recordingPublisher) stateChanges() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	changes := make([]string, 0, len(p.states))
	for _, s := range p.states {
		changes = append(changes, s.PrevStreak+"->"+s.Streak)
	}
	return changes
}

type countingPlayer struct {
	plays atomic.Int32
}

func (p *countingPlayer) Play(ctx context.Context, wav []byte) error {
	p.plays.Add(1)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Posture.SampleIntervalMs = 10
	cfg.Posture.StreakIntervalMs = 10
	return cfg
}

func testSource() sampler.FrameSource {
	return sampler.NewImageSourceFrom(image.NewRGBA(image.Rect(0, 0, 640, 480)))
}

// startService 启动会话并在测试结束时停止
func startService(t *testing.T, cfg *config.Config, deps Deps) *PostureService {
	t.Helper()
	svc, err := NewPostureService(cfg, zap.NewNop(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Stop()
	})
	return svc
}

func TestNewPostureService_RequiresDeps(t *testing.T) {
	_, err := NewPostureService(testConfig(), zap.NewNop(), Deps{Classifier: &fakeClassifier{}})
	assert.Error(t, err)

	_, err = NewPostureService(testConfig(), zap.NewNop(), Deps{Source: testSource()})
	assert.Error(t, err)
}

func TestPostureService_InitialStatus(t *testing.T) {
	svc, err := NewPostureService(testConfig(), zap.NewNop(), Deps{Source: testSource(), Classifier: &fakeClassifier{}})
	require.NoError(t, err)

	st := svc.Status()
	assert.Equal(t, svc.SessionID(), st.SessionID)
	assert.Equal(t, models.VerdictUnknown, st.Verdict)
	assert.Equal(t, "Analyzing posture...", st.Status)
	assert.Equal(t, "none", st.Streak)
	assert.Empty(t, st.Keypoints)
	assert.NotNil(t, st.Keypoints)
	assert.Equal(t, Display{Width: 640, Height: 480}, st.Display)
}

func TestPostureService_BadStreakAlerts(t *testing.T) {
	cls := &fakeClassifier{}
	cls.set(models.VerdictBad)
	pub := &recordingPublisher{}
	player := &countingPlayer{}

	svc := startService(t, testConfig(), Deps{
		Source:     testSource(),
		Classifier: cls,
		Player:     player,
		Publisher:  pub,
	})

	assert.Eventually(t, func() bool {
		rules := pub.alertRules()
		return len(rules) > 0 && rules[0] == "bad_posture_5s"
	}, 3*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return player.plays.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	st := svc.Status()
	assert.Equal(t, models.VerdictBad, st.Verdict)
	assert.Equal(t, "Bad posture detected", st.Status)
	assert.Equal(t, "bad", st.Streak)
	assert.GreaterOrEqual(t, st.ElapsedSeconds, 5)
	assert.Len(t, st.Keypoints, 13)
	assert.Equal(t, 13, st.KeypointCount)

	changes := pub.stateChanges()
	require.NotEmpty(t, changes)
	assert.Equal(t, "none->bad", changes[0])

	pub.mu.Lock()
	first := pub.alerts[0]
	pub.mu.Unlock()
	assert.Equal(t, svc.SessionID(), first.SessionID)
	assert.Equal(t, "reminder", first.Level)
	assert.Equal(t, 5, first.ElapsedSeconds)
	assert.NotEmpty(t, first.EventID)
}

func TestPostureService_GoodStreakNeverAlerts(t *testing.T) {
	cls := &fakeClassifier{}
	cls.set(models.VerdictGood)
	pub := &recordingPublisher{}

	svc := startService(t, testConfig(), Deps{Source: testSource(), Classifier: cls, Publisher: pub})

	assert.Eventually(t, func() bool {
		st := svc.Status()
		return st.Streak == "good" && st.ElapsedSeconds >= 8
	}, 3*time.Second, 10*time.Millisecond)

	assert.Empty(t, pub.alertRules())
	assert.Equal(t, "Good posture detected", svc.Status().Status)
}

func TestPostureService_FailureClearsStreak(t *testing.T) {
	cls := &fakeClassifier{}
	cls.set(models.VerdictBad)
	pub := &recordingPublisher{}

	svc := startService(t, testConfig(), Deps{Source: testSource(), Classifier: cls, Publisher: pub})

	assert.Eventually(t, func() bool { return svc.Status().ElapsedSeconds >= 3 }, 3*time.Second, 10*time.Millisecond)

	cls.set(models.VerdictUnknown)

	assert.Eventually(t, func() bool {
		st := svc.Status()
		return st.Streak == "none" && st.Verdict == models.VerdictUnknown
	}, 3*time.Second, 10*time.Millisecond)

	st := svc.Status()
	assert.Equal(t, 0, st.ElapsedSeconds)
	assert.Empty(t, st.Keypoints)
	assert.Contains(t, pub.stateChanges(), "bad->none")
}

func TestPostureService_DiscardsStaleResults(t *testing.T) {
	cfg := testConfig()
	// 不采样，由测试直接投递结果
	cfg.Posture.SampleIntervalMs = 3600 * 1000

	svc := startService(t, cfg, Deps{Source: testSource(), Classifier: &fakeClassifier{}})

	svc.results <- models.ClassificationResult{Seq: 2, Verdict: models.VerdictBad, Keypoints: []models.Keypoint{}}
	svc.results <- models.ClassificationResult{Seq: 1, Verdict: models.VerdictGood, Keypoints: []models.Keypoint{}}
	svc.results <- models.ClassificationResult{Seq: 2, Verdict: models.VerdictGood, Keypoints: []models.Keypoint{}}
	svc.results <- models.ClassificationResult{Seq: 3, Verdict: models.VerdictBad, Keypoints: []models.Keypoint{}}

	assert.Eventually(t, func() bool { return svc.Status().LastSeq == 3 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.VerdictBad, svc.Status().Verdict)
	assert.Equal(t, "bad", svc.Status().Streak)
}

func TestPostureService_CaptureErrorIsReported(t *testing.T) {
	cls := &fakeClassifier{}
	src := sampler.NewDeviceSource("definitely-not-an-ffmpeg-binary", "/dev/video99", 640, 480, zap.NewNop())

	svc := startService(t, testConfig(), Deps{Source: src, Classifier: cls})

	assert.Eventually(t, func() bool {
		return svc.Status().CaptureError != ""
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, svc.Status().CaptureError, "ffmpeg not found")

	// 无帧时不发送分类请求
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), cls.calls.Load())
	assert.Equal(t, "none", svc.Status().Streak)
}

func TestPostureService_SetDisplay(t *testing.T) {
	cls := &fakeClassifier{}
	cls.set(models.VerdictGood)
	svc := startService(t, testConfig(), Deps{Source: testSource(), Classifier: cls})

	assert.Error(t, svc.SetDisplay(0, 480))
	assert.Error(t, svc.SetDisplay(640, -1))

	require.NoError(t, svc.SetDisplay(320, 240))
	assert.Equal(t, Display{Width: 320, Height: 240}, svc.Status().Display)

	assert.Eventually(t, func() bool {
		var buf bytes.Buffer
		if err := svc.WriteOverlayPNG(&buf); err != nil {
			return false
		}
		img, err := png.Decode(&buf)
		if err != nil {
			return false
		}
		return img.Bounds().Dx() == 320 && img.Bounds().Dy() == 240
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPostureService_FrameAndView(t *testing.T) {
	cfg := testConfig()
	cfg.Posture.SampleIntervalMs = 3600 * 1000

	svc := startService(t, cfg, Deps{Source: testSource(), Classifier: &fakeClassifier{}})

	var buf bytes.Buffer
	assert.ErrorIs(t, svc.WriteFramePNG(&buf), sampler.ErrNoFrame)

	// 视频源在 Start 中就绪，合成图不依赖采样
	assert.Eventually(t, func() bool {
		buf.Reset()
		return svc.WriteViewPNG(&buf) == nil
	}, 3*time.Second, 10*time.Millisecond)
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())
}

func TestPostureService_SampledFrame(t *testing.T) {
	cls := &fakeClassifier{}
	svc := startService(t, testConfig(), Deps{Source: testSource(), Classifier: cls})

	assert.Eventually(t, func() bool { return cls.calls.Load() > 0 }, 3*time.Second, 10*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteFramePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, models.ModelCols, models.ModelRows), img.Bounds())
}

func TestPostureService_WritesSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	snapshots := cache.NewSnapshotCache(cache.NewRedisKVStore(redisClient), "posture:session:", ":realtime", 30*time.Second, zap.NewNop())

	cls := &fakeClassifier{}
	cls.set(models.VerdictBad)
	svc := startService(t, testConfig(), Deps{Source: testSource(), Classifier: cls, Snapshots: snapshots})

	key := "posture:session:" + svc.SessionID() + ":realtime"
	assert.Eventually(t, func() bool {
		raw, err := mr.Get(key)
		if err != nil {
			return false
		}
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return false
		}
		return snap.Streak == "bad" && snap.Verdict == models.VerdictBad
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	// 会话结束后快照被清除
	require.NoError(t, svc.Stop())
	assert.False(t, mr.Exists(key))
}

// countingSource 记录 Start 调用次数
type countingSource struct {
	sampler.FrameSource
	starts atomic.Int32
}

func (c *countingSource) Start(ctx context.Context) error {
	c.starts.Add(1)
	return c.FrameSource.Start(ctx)
}

func TestPostureService_StopBeforeStart(t *testing.T) {
	cls := &fakeClassifier{}
	cls.set(models.VerdictBad)
	src := &countingSource{FrameSource: testSource()}

	svc, err := NewPostureService(testConfig(), zap.NewNop(), Deps{Source: src, Classifier: cls})
	require.NoError(t, err)
	require.NoError(t, svc.Stop())

	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start kept running after Stop")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), src.starts.Load())
	assert.Equal(t, int32(0), cls.calls.Load())
	assert.Equal(t, "none", svc.Status().Streak)
}

func TestPostureService_StopIsIdempotent(t *testing.T) {
	svc, err := NewPostureService(testConfig(), zap.NewNop(), Deps{Source: testSource(), Classifier: &fakeClassifier{}})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		svc.mu.RLock()
		defer svc.mu.RUnlock()
		return svc.cancel != nil
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, svc.Stop())
	assert.NoError(t, svc.Stop())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
