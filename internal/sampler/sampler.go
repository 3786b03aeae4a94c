package sampler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"wisefido-posture/internal/models"

	"golang.org/x/image/draw"
)

// ErrNoFrame 视频源尚无可用帧（本次采样跳过，不视为错误）
var ErrNoFrame = errors.New("no video frame available")

// Frame 一次采样得到的缩略帧
type Frame struct {
	Image      *image.RGBA // 256×192
	PNG        []byte
	CapturedAt time.Time
}

// DataURL PNG 的 data URL 形式（推理请求体）
func (f *Frame) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(f.PNG)
}

// Sampler 帧采样器；采样帧缓冲只有 Capture 一个写入方
type Sampler struct {
	width   int
	height  int
	encoder *png.Encoder

	mu     sync.RWMutex
	latest *Frame
}

// NewSampler 创建采样器，输出尺寸固定为模型输入尺寸
func NewSampler() *Sampler {
	return &Sampler{
		width:   models.ModelCols,
		height:  models.ModelRows,
		encoder: &png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

// Capture 从视频源取最新帧，缩放到 256×192 并编码为 PNG
func (s *Sampler) Capture(src FrameSource) (*Frame, error) {
	if src == nil {
		return nil, ErrNoFrame
	}
	img, ok := src.Latest()
	if !ok || img == nil || img.Bounds().Empty() {
		return nil, ErrNoFrame
	}

	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	frame := &Frame{
		Image:      dst,
		PNG:        buf.Bytes(),
		CapturedAt: time.Now(),
	}

	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()

	return frame, nil
}

// Latest 最近一次采样帧（只读，调用方不得修改）
func (s *Sampler) Latest() (*Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}
