package device

import (
	"context"
	"math/rand"
	"time"

	"vitalband/internal/domain"

	"go.uber.org/zap"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 60 * time.Second
	reconnectJitterRatio = 0.3
)

// reconnectState 单设备重连状态（单次断连事件内最多5次尝试）
type reconnectState struct {
	attempts int
	cancel   context.CancelFunc
}

// reconnectDelay 指数退避延迟：min(1s * 2^attempt, 60s) 加最多30%随机抖动
func reconnectDelay(attempt int) time.Duration {
	delay := reconnectBaseDelay << uint(attempt)
	if delay > reconnectMaxDelay || delay <= 0 {
		delay = reconnectMaxDelay
	}
	jitter := time.Duration(rand.Float64() * reconnectJitterRatio * float64(delay))
	return delay + jitter
}

// scheduleReconnect 安排下一次重连尝试
// 超过尝试上限时广播 ReconnectionExhausted 后放弃（不再自动重试，由调用方决定手动重连）
func (s *SessionManager) scheduleReconnect(deviceID string) {
	s.mu.Lock()
	rs, ok := s.reconnects[deviceID]
	if !ok {
		rs = &reconnectState{}
		s.reconnects[deviceID] = rs
	}

	if rs.attempts >= maxReconnectAttempts {
		delete(s.reconnects, deviceID)
		s.mu.Unlock()

		ev := newDeviceEvent(domain.EventReconnectionExhausted, deviceID)
		ev.Message = "reconnection attempts exhausted"
		s.deviceEvents.Publish(ev)
		s.logger.Warn("Reconnection attempts exhausted, giving up",
			zap.String("device_id", deviceID),
			zap.Int("attempts", maxReconnectAttempts),
		)
		return
	}

	attempt := rs.attempts
	rs.attempts++

	rcCtx, cancel := context.WithCancel(s.runCtx)
	rs.cancel = cancel
	s.mu.Unlock()

	delay := reconnectDelay(attempt)

	ev := newDeviceEvent(domain.EventReconnecting, deviceID)
	ev.Attempt = attempt + 1
	s.deviceEvents.Publish(ev)

	s.logger.Info("Scheduling reconnection attempt",
		zap.String("device_id", deviceID),
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-rcCtx.Done():
			return
		case <-time.After(delay):
		}

		if err := s.ConnectToDevice(rcCtx, deviceID); err != nil {
			s.logger.Warn("Reconnection attempt failed",
				zap.String("device_id", deviceID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			s.scheduleReconnect(deviceID)
			return
		}
		// 连接成功路径已在 ConnectToDevice 中重置计数
	}()
}
