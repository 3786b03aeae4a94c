package publisher

import (
	"encoding/json"
	"fmt"

	"wisefido-posture/internal/models"

	"go.uber.org/zap"
)

// Publisher 坐姿事件发布接口
type Publisher interface {
	PublishAlert(evt models.AlertEvent) error
	PublishState(evt models.StateEvent) error
	Close()
}

// MessageClient 底层消息客户端（*Client 实现，测试中可替换）
type MessageClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// EventPublisher 基于 MQTT 的事件发布器
//
// 主题：
//   - {prefix}/{session_id}/alerts  提醒事件
//   - {prefix}/{session_id}/state   连续状态切换（retained，新订阅者可拿到最新状态）
type EventPublisher struct {
	client MessageClient
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(client MessageClient, prefix string, qos byte, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		client: client,
		prefix: prefix,
		qos:    qos,
		logger: logger,
	}
}

// AlertTopic 提醒事件主题
func (p *EventPublisher) AlertTopic(sessionID string) string {
	return fmt.Sprintf("%s/%s/alerts", p.prefix, sessionID)
}

// StateTopic 状态事件主题
func (p *EventPublisher) StateTopic(sessionID string) string {
	return fmt.Sprintf("%s/%s/state", p.prefix, sessionID)
}

// PublishAlert 发布提醒事件
func (p *EventPublisher) PublishAlert(evt models.AlertEvent) error {
	return p.publish(p.AlertTopic(evt.SessionID), false, evt)
}

// PublishState 发布状态切换事件
func (p *EventPublisher) PublishState(evt models.StateEvent) error {
	return p.publish(p.StateTopic(evt.SessionID), true, evt)
}

func (p *EventPublisher) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(topic, p.qos, retained, payload); err != nil {
		return err
	}
	p.logger.Debug("Published posture event", zap.String("topic", topic))
	return nil
}

// Close 断开 MQTT 连接
func (p *EventPublisher) Close() {
	p.client.Disconnect()
}

// NopPublisher 未配置 MQTT 时使用
type NopPublisher struct{}

func (NopPublisher) PublishAlert(models.AlertEvent) error { return nil }
func (NopPublisher) PublishState(models.StateEvent) error { return nil }
func (NopPublisher) Close()                               {}
