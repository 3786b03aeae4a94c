package sampler

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// FrameSource 视频帧来源
type FrameSource interface {
	// Start 获取采集设备（会话开始时调用一次）
	Start(ctx context.Context) error
	// Latest 返回最新解码的一帧；尚无可用帧时返回 false
	Latest() (image.Image, bool)
	// Err 采集过程中的错误（设备不可用等），无错误返回 nil
	Err() error
	// Close 释放采集设备
	Close() error
}

// ImageSource 以静态图片作为视频源（演示、测试）
type ImageSource struct {
	path string

	mu  sync.RWMutex
	img *image.RGBA
	err error
}

// NewImageSource 创建静态图片视频源
func NewImageSource(path string) *ImageSource {
	return &ImageSource{path: path}
}

// NewImageSourceFrom 使用内存中的图片
func NewImageSourceFrom(img image.Image) *ImageSource {
	return &ImageSource{img: toRGBA(img)}
}

func (s *ImageSource) Start(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		s.setErr(err)
		return fmt.Errorf("failed to open video image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		s.setErr(err)
		return fmt.Errorf("failed to decode video image: %w", err)
	}

	s.mu.Lock()
	s.img = toRGBA(img)
	s.mu.Unlock()
	return nil
}

func (s *ImageSource) Latest() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, false
	}
	return s.img, true
}

func (s *ImageSource) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *ImageSource) Close() error {
	return nil
}

func (s *ImageSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
