package platform

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType 平台事件类型
type EventType string

const (
	EventAuthChanged         EventType = "AUTH_CHANGED"
	EventSyncProgress        EventType = "SYNC_PROGRESS"
	EventSyncCompleted       EventType = "SYNC_COMPLETED"
	EventSyncFailed          EventType = "SYNC_FAILED"
	EventRealtimeConnected   EventType = "REALTIME_CONNECTED"
	EventRealtimeDisconnect  EventType = "REALTIME_DISCONNECTED"
	EventThresholdUpdated    EventType = "THRESHOLD_UPDATED"
	EventAlertCreated        EventType = "ALERT_CREATED"
	EventDeviceStatusChanged EventType = "DEVICE_STATUS_CHANGED"
)

// Event 平台事件（认证/同步/实时通道广播流）
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Platform  string      `json:"platform,omitempty"`
	Progress  int         `json:"progress,omitempty"` // SYNC_PROGRESS: 0-100
	Stage     string      `json:"stage,omitempty"`    // SYNC_PROGRESS: 当前阶段
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // 实时事件的平台侧载荷
}

const eventBufferSize = 64

// eventBus 多消费者广播通道
// 消费者处理过慢时丢弃该消费者的事件并告警，不阻塞发布方
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *zap.Logger
}

func newEventBus(logger *zap.Logger) *eventBus {
	return &eventBus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe 订阅事件流；返回只读通道和取消函数
func (b *eventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, eventBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish 广播事件
func (b *eventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Platform event subscriber buffer full, dropping event")
		}
	}
}

// Close 关闭广播并断开全部订阅者
func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
