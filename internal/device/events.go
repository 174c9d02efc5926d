package device

import (
	"sync"
	"time"

	"vitalband/internal/domain"

	"go.uber.org/zap"
)

const eventBufferSize = 64

// eventBus 多消费者广播通道
// 同一设备的事件按发布顺序投递；跨设备交错顺序不作保证
// 消费者处理过慢时丢弃该消费者的事件并告警，不阻塞发布方
type eventBus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	closed bool
	logger *zap.Logger
}

func newEventBus[T any](logger *zap.Logger) *eventBus[T] {
	return &eventBus[T]{
		subs:   make(map[int]chan T),
		logger: logger,
	}
}

// Subscribe 订阅事件流；返回只读通道和取消函数
func (b *eventBus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan T, eventBufferSize)
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
func (b *eventBus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Event subscriber buffer full, dropping event")
		}
	}
}

// Close 关闭广播并断开全部订阅者
func (b *eventBus[T]) Close() {
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

// newDeviceEvent 构建设备事件
func newDeviceEvent(t domain.DeviceEventType, deviceID string) domain.DeviceEvent {
	return domain.DeviceEvent{
		Type:      t,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
	}
}
