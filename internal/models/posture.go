package models

import (
	"time"
)

// 模型输入尺寸（行 × 列）
const (
	ModelRows = 192
	ModelCols = 256
)

// Verdict 分类结论
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictGood
	VerdictBad
)

func (v Verdict) String() string {
	switch v {
	case VerdictGood:
		return "good"
	case VerdictBad:
		return "bad"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式输出（JSON / Redis 快照）
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText 解析字符串形式的结论，未知值视为 unknown
func (v *Verdict) UnmarshalText(text []byte) error {
	switch string(text) {
	case "good":
		*v = VerdictGood
	case "bad":
		*v = VerdictBad
	default:
		*v = VerdictUnknown
	}
	return nil
}

// StatusText 页面状态文案
func (v Verdict) StatusText() string {
	switch v {
	case VerdictGood:
		return "Good posture detected"
	case VerdictBad:
		return "Bad posture detected"
	default:
		return "Analyzing posture..."
	}
}

// Keypoint 关键点（模型输入坐标系，Row 0..192，Col 0..256）
type Keypoint struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Row   float64 `json:"row"`
	Col   float64 `json:"col"`
}

// ClassificationResult 单次采样的分类结果
type ClassificationResult struct {
	Seq         uint64     `json:"seq"` // 请求序号（单调递增）
	Verdict     Verdict    `json:"verdict"`
	Keypoints   []Keypoint `json:"keypoints"`
	CompletedAt time.Time  `json:"completed_at"`
}

// UnknownResult 分类失败时的结果（无关键点）
func UnknownResult(seq uint64) ClassificationResult {
	return ClassificationResult{
		Seq:         seq,
		Verdict:     VerdictUnknown,
		Keypoints:   []Keypoint{},
		CompletedAt: time.Now(),
	}
}
