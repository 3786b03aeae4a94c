package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// DeviceSource 通过 ffmpeg 读取 V4L2 摄像头，输出 RGBA 原始帧
// 只保留最新一帧（新帧覆盖旧帧）
type DeviceSource struct {
	ffmpegPath string
	device     string
	width      int
	height     int
	logger     *zap.Logger

	mu     sync.RWMutex
	latest *image.RGBA
	err    error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDeviceSource 创建摄像头视频源
func NewDeviceSource(ffmpegPath, device string, width, height int, logger *zap.Logger) *DeviceSource {
	return &DeviceSource{
		ffmpegPath: ffmpegPath,
		device:     device,
		width:      width,
		height:     height,
		logger:     logger,
	}
}

// Start 启动 ffmpeg 子进程；设备不可用时返回错误，不重试
func (d *DeviceSource) Start(ctx context.Context) error {
	ffmpegPath, err := exec.LookPath(d.ffmpegPath)
	if err != nil {
		err = fmt.Errorf("ffmpeg not found in PATH: %w", err)
		d.setErr(err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, ffmpegPath, d.args()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		d.setErr(err)
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		d.setErr(err)
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d.logger.Info("Video capture started",
		zap.String("device", d.device),
		zap.Int("width", d.width),
		zap.Int("height", d.height),
	)

	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)

		readErr := readFrames(stdout, d.width, d.height, d.publish)
		waitErr := cmd.Wait()

		// 主动关闭时不记录错误
		if runCtx.Err() != nil {
			return
		}
		if readErr == nil || errors.Is(readErr, io.EOF) {
			readErr = waitErr
		}
		if readErr == nil {
			readErr = errors.New("video stream ended")
		}
		err := fmt.Errorf("video capture stopped: %w", readErr)
		d.setErr(err)
		d.logger.Error("Video capture failed",
			zap.String("device", d.device),
			zap.String("ffmpeg_stderr", stderr.String()),
			zap.Error(err),
		)
	}()

	return nil
}

func (d *DeviceSource) args() []string {
	size := strconv.Itoa(d.width) + "x" + strconv.Itoa(d.height)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", size,
		"-i", d.device,
		"-vf", fmt.Sprintf("scale=%d:%d", d.width, d.height),
		"-pix_fmt", "rgba",
		"-f", "rawvideo",
		"-",
	}
}

func (d *DeviceSource) publish(frame *image.RGBA) {
	d.mu.Lock()
	d.latest = frame
	d.mu.Unlock()
}

func (d *DeviceSource) Latest() (image.Image, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.latest == nil {
		return nil, false
	}
	return d.latest, true
}

func (d *DeviceSource) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

func (d *DeviceSource) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Close 停止 ffmpeg 并释放设备
func (d *DeviceSource) Close() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	<-d.done
	d.logger.Info("Video capture released", zap.String("device", d.device))
	return nil
}

// readFrames 从原始 RGBA 流中按固定大小切帧
func readFrames(r io.Reader, width, height int, publish func(*image.RGBA)) error {
	frameSize := width * height * 4
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		publish(&image.RGBA{
			Pix:    buf,
			Stride: width * 4,
			Rect:   image.Rect(0, 0, width, height),
		})
	}
}
