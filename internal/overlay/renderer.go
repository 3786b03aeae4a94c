package overlay

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"wisefido-posture/internal/models"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

var (
	ColorGood  = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	ColorBad   = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	ColorLabel = color.White
)

// Renderer 骨架叠加层渲染器
type Renderer struct {
	transform Transform
	edges     []models.SkeletonEdge
	radius    float64
	lineWidth float64

	mu sync.RWMutex
	dc *gg.Context
}

// NewRenderer 创建渲染器，画布尺寸为显示尺寸
func NewRenderer(transform Transform, edges []models.SkeletonEdge, displayW, displayH int) *Renderer {
	if edges == nil {
		edges = models.DefaultSkeleton()
	}
	return &Renderer{
		transform: transform,
		edges:     edges,
		radius:    5,
		lineWidth: 3,
		dc:        gg.NewContext(displayW, displayH),
	}
}

// Render 按最新结果重绘叠加层；无关键点时完全清空
func (r *Renderer) Render(result models.ClassificationResult, displayW, displayH int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dc.Width() != displayW || r.dc.Height() != displayH {
		r.dc = gg.NewContext(displayW, displayH)
	}
	dc := r.dc

	dc.SetColor(color.Transparent)
	dc.Clear()

	if len(result.Keypoints) == 0 {
		return
	}

	c := color.Color(ColorBad)
	if result.Verdict == models.VerdictGood {
		c = ColorGood
	}

	points := make(map[int][2]float64, len(result.Keypoints))
	for _, kp := range result.Keypoints {
		x, y := r.transform.ToDisplay(kp, displayW, displayH)
		points[kp.Index] = [2]float64{x, y}
	}

	// 先画连线，关节点覆盖在上面
	dc.SetColor(c)
	dc.SetLineWidth(r.lineWidth)
	for _, e := range r.edges {
		from, ok1 := points[e.From]
		to, ok2 := points[e.To]
		if !ok1 || !ok2 {
			continue
		}
		dc.DrawLine(from[0], from[1], to[0], to[1])
		dc.Stroke()
	}

	for _, kp := range result.Keypoints {
		p := points[kp.Index]
		dc.DrawCircle(p[0], p[1], r.radius)
		dc.SetColor(c)
		dc.FillPreserve()
		dc.SetColor(ColorLabel)
		dc.SetLineWidth(1.5)
		dc.Stroke()

		dc.DrawString(kp.Name, p[0]+r.radius+2, p[1]-r.radius-2)
	}
}

// Snapshot 当前叠加层的副本
func (r *Renderer) Snapshot() *image.RGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.dc.Image().(*image.RGBA)
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// Composite 将视频帧缩放到叠加层尺寸后合成
func (r *Renderer) Composite(frame image.Image) *image.RGBA {
	layer := r.Snapshot()
	out := image.NewRGBA(layer.Bounds())
	if frame != nil {
		draw.ApproxBiLinear.Scale(out, out.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	}
	draw.Draw(out, out.Bounds(), layer, image.Point{}, draw.Over)
	return out
}

// WritePNG 输出叠加层 PNG
func (r *Renderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Snapshot())
}
