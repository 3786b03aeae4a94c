package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent 坐姿提醒事件（MQTT 发布）
type AlertEvent struct {
	EventID        string    `json:"event_id"`
	SessionID      string    `json:"session_id"`
	Rule           string    `json:"rule"`  // 触发规则名称
	Level          string    `json:"level"` // reminder / renewed / alarm
	ElapsedSeconds int       `json:"elapsed_seconds"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// StateEvent 连续状态切换事件
type StateEvent struct {
	SessionID   string    `json:"session_id"`
	PrevStreak  string    `json:"prev_streak"`
	Streak      string    `json:"streak"`
	PrevElapsed int       `json:"prev_elapsed_seconds"`
	Verdict     Verdict   `json:"verdict"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Snapshot 实时快照（Redis 缓存，TTL 过期，不保留历史）
type Snapshot struct {
	SessionID      string    `json:"session_id"`
	Verdict        Verdict   `json:"verdict"`
	Status         string    `json:"status"`
	Streak         string    `json:"streak"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	KeypointCount  int       `json:"keypoint_count"`
	CaptureError   string    `json:"capture_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewAlertEvent 创建提醒事件（生成事件ID）
func NewAlertEvent(sessionID, rule, level string, elapsed int, at time.Time) AlertEvent {
	return AlertEvent{
		EventID:        uuid.New().String(),
		SessionID:      sessionID,
		Rule:           rule,
		Level:          level,
		ElapsedSeconds: elapsed,
		TriggeredAt:    at,
	}
}
