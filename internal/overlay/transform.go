package overlay

import "wisefido-posture/internal/models"

// Transform 模型坐标 → 显示像素坐标
//
// 两个轴独立缩放到视频的显示尺寸（不是采集分辨率）。XScale、OffsetX、OffsetY
// 用于补偿模型裁剪与实际显示画面之间的系统偏差，均为经验值，可通过配置调整。
type Transform struct {
	XScale  float64
	OffsetX float64 // 加到 x
	OffsetY float64 // 从 y 中减去
}

// DefaultTransform 默认校正参数
func DefaultTransform() Transform {
	return Transform{XScale: 1.0, OffsetX: 5, OffsetY: 5}
}

// ToDisplay 将关键点映射到显示坐标；Col 对应 x，Row 对应 y
func (t Transform) ToDisplay(kp models.Keypoint, displayW, displayH int) (x, y float64) {
	sx := float64(displayW) / models.ModelCols
	sy := float64(displayH) / models.ModelRows
	x = kp.Col*sx*t.XScale + t.OffsetX
	y = kp.Row*sy - t.OffsetY
	return x, y
}
