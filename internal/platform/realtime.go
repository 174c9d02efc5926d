package platform

import (
	"encoding/json"
	"fmt"

	"vitalband/internal/config"
	"vitalband/internal/mqttx"

	"go.uber.org/zap"
)

// 平台实时消息的类型标签
const (
	realtimeThresholdUpdated    = "vital_threshold_updated"
	realtimeAlertCreated        = "alert_created"
	realtimeDeviceStatusChanged = "device_status_changed"
	realtimeSyncRequested       = "sync_requested"
	realtimeLogoutRequested     = "logout_requested"
)

// RealtimeConn 已建立的实时通道连接
type RealtimeConn interface {
	Close()
	IsConnected() bool
}

// RealtimeDialer 建立实时通道
// onMessage 收到平台消息时回调；onLost 连接丢失时回调（通道不自动重连）
type RealtimeDialer func(onMessage mqttx.MessageHandler, onLost func(error)) (RealtimeConn, error)

// mqttRealtimeConn MQTT 实时通道连接
type mqttRealtimeConn struct {
	client *mqttx.Client
	topic  string
}

func (c *mqttRealtimeConn) Close() {
	_ = c.client.Unsubscribe(c.topic)
	c.client.Disconnect()
}

func (c *mqttRealtimeConn) IsConnected() bool {
	return c.client.IsConnected()
}

// NewMQTTRealtimeDialer 基于 MQTT 的实时通道拨号器
// 每次拨号建立新连接并订阅平台事件主题；断连不自动重连，由上层决定
func NewMQTTRealtimeDialer(cfg *config.MQTTConfig, platformName string, logger *zap.Logger) RealtimeDialer {
	topic := fmt.Sprintf("platform/%s/events", platformName)

	return func(onMessage mqttx.MessageHandler, onLost func(error)) (RealtimeConn, error) {
		client, err := mqttx.NewClient(cfg, logger, onLost)
		if err != nil {
			return nil, err
		}
		if err := client.Subscribe(topic, cfg.QoS, onMessage); err != nil {
			client.Disconnect()
			return nil, err
		}
		return &mqttRealtimeConn{client: client, topic: topic}, nil
	}
}

// realtimeMessage 实时通道消息外层封装
type realtimeMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectRealtime 建立实时通道
// 仅在激活平台支持实时监控且已认证时建立；连接失败与断连都通过事件流上报，
// 断连后不自动重连，由订阅方决定是否重新调用本方法
func (m *Manager) ConnectRealtime() error {
	if m.dialRealtime == nil {
		return fmt.Errorf("realtime channel not configured")
	}
	if !m.IsFeatureSupported(FeatureRealtimeMonitoring) {
		return fmt.Errorf("platform %s does not support realtime monitoring", m.ActivePlatform())
	}
	if !m.isAuthenticated() {
		return fmt.Errorf("realtime channel requires authentication")
	}

	m.mu.Lock()
	if m.realtime != nil && m.realtime.IsConnected() {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	platform := m.ActivePlatform()

	conn, err := m.dialRealtime(m.handleRealtimeMessage, func(lostErr error) {
		m.events.Publish(Event{
			Type:     EventRealtimeDisconnect,
			Platform: platform,
			Message:  lostErr.Error(),
		})
		m.logger.Warn("Realtime channel lost", zap.Error(lostErr))
	})
	if err != nil {
		m.events.Publish(Event{
			Type:     EventRealtimeDisconnect,
			Platform: platform,
			Message:  err.Error(),
		})
		return fmt.Errorf("failed to establish realtime channel: %w", err)
	}

	m.mu.Lock()
	m.realtime = conn
	m.mu.Unlock()

	m.events.Publish(Event{Type: EventRealtimeConnected, Platform: platform})
	m.logger.Info("Realtime channel established", zap.String("platform", platform))
	return nil
}

// CloseRealtime 关闭实时通道（未建立时 no-op）
func (m *Manager) CloseRealtime() {
	m.mu.Lock()
	conn := m.realtime
	m.realtime = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// handleRealtimeMessage 按类型标签分发实时消息
// 未识别的标签记录日志后忽略，不视为错误
func (m *Manager) handleRealtimeMessage(topic string, payload []byte) error {
	var msg realtimeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("malformed realtime message: %w", err)
	}

	platform := m.ActivePlatform()

	switch msg.Type {
	case realtimeThresholdUpdated:
		var threshold ThresholdDTO
		if err := json.Unmarshal(msg.Payload, &threshold); err != nil {
			return fmt.Errorf("malformed threshold payload: %w", err)
		}
		m.events.Publish(Event{Type: EventThresholdUpdated, Platform: platform, Payload: threshold})

	case realtimeAlertCreated:
		var alert AlertDTO
		if err := json.Unmarshal(msg.Payload, &alert); err != nil {
			return fmt.Errorf("malformed alert payload: %w", err)
		}
		m.events.Publish(Event{Type: EventAlertCreated, Platform: platform, Payload: alert})

	case realtimeDeviceStatusChanged:
		var device DeviceDTO
		if err := json.Unmarshal(msg.Payload, &device); err != nil {
			return fmt.Errorf("malformed device status payload: %w", err)
		}
		m.events.Publish(Event{Type: EventDeviceStatusChanged, Platform: platform, Payload: device})

	case realtimeSyncRequested:
		if err := m.StartSync(SyncConfig{Full: true}); err != nil {
			m.logger.Warn("Platform-requested sync rejected", zap.Error(err))
		}

	case realtimeLogoutRequested:
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.Logout(m.runCtx); err != nil {
				m.logger.Warn("Platform-requested logout failed", zap.Error(err))
			}
		}()

	default:
		m.logger.Debug("Ignoring unrecognized realtime message",
			zap.String("type", msg.Type), zap.String("topic", topic))
	}

	return nil
}
