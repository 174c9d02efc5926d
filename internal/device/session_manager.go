package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vitalband/internal/bandsdk"
	"vitalband/internal/config"
	"vitalband/internal/domain"
	"vitalband/internal/mapper"
	"vitalband/internal/repository"

	"go.uber.org/zap"
)

const (
	discoveryTimeout = 30 * time.Second
	livenessInterval = 5 * time.Second
)

// deviceSession 已连接设备会话（仅存在于内存；进程重启后需重新连接+探测）
type deviceSession struct {
	deviceID    string
	capability  *domain.DeviceCapability
	connectedAt time.Time

	// 串行化该设备的全部适配器操作（设备不支持并发异步操作）
	opMu sync.Mutex
}

// SessionManager 设备会话管理器
// 持有已连接设备集合、能力档案、按指标的采集循环、断连检测与指数退避重连，
// 并对外广播设备事件流与数据事件流
type SessionManager struct {
	adapter    bandsdk.Adapter
	mapper     *mapper.Mapper
	capRepo    repository.CapabilitiesRepository
	vitalsRepo repository.VitalsRepository
	collectCfg *config.CollectionConfig
	logger     *zap.Logger

	// mu 保护 sessions/jobs/reconnects/discovering
	mu          sync.Mutex
	sessions    map[string]*deviceSession
	jobs        map[string]map[domain.Metric]context.CancelFunc
	reconnects  map[string]*reconnectState
	discovering bool
	stopDisc    context.CancelFunc

	deviceEvents *eventBus[domain.DeviceEvent]
	dataEvents   *eventBus[domain.DataEvent]

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	livenessTick time.Duration
}

// NewSessionManager 创建会话管理器
func NewSessionManager(
	adapter bandsdk.Adapter,
	m *mapper.Mapper,
	capRepo repository.CapabilitiesRepository,
	vitalsRepo repository.VitalsRepository,
	collectCfg *config.CollectionConfig,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		adapter:      adapter,
		mapper:       m,
		capRepo:      capRepo,
		vitalsRepo:   vitalsRepo,
		collectCfg:   collectCfg,
		logger:       logger,
		sessions:     make(map[string]*deviceSession),
		jobs:         make(map[string]map[domain.Metric]context.CancelFunc),
		reconnects:   make(map[string]*reconnectState),
		deviceEvents: newEventBus[domain.DeviceEvent](logger),
		dataEvents:   newEventBus[domain.DataEvent](logger),
		livenessTick: livenessInterval,
	}
}

// Start 启动后台断连检测循环
func (s *SessionManager) Start(ctx context.Context) error {
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.livenessLoop(s.runCtx)

	s.logger.Info("Session manager started")
	return nil
}

// Stop 断开所有设备并停止后台任务
func (s *SessionManager) Stop() {
	for _, deviceID := range s.ConnectedDevices() {
		if err := s.DisconnectFromDevice(deviceID); err != nil {
			s.logger.Warn("Error disconnecting device during shutdown",
				zap.String("device_id", deviceID), zap.Error(err))
		}
	}
	_ = s.StopDeviceDiscovery()

	if s.runCancel != nil {
		s.runCancel()
	}
	s.wg.Wait()

	s.deviceEvents.Close()
	s.dataEvents.Close()
	s.logger.Info("Session manager stopped")
}

// DeviceEvents 订阅设备事件流
func (s *SessionManager) DeviceEvents() (<-chan domain.DeviceEvent, func()) {
	return s.deviceEvents.Subscribe()
}

// DataEvents 订阅数据事件流
func (s *SessionManager) DataEvents() (<-chan domain.DataEvent, func()) {
	return s.dataEvents.Subscribe()
}

// ConnectedDevices 当前已连接设备ID列表
func (s *SessionManager) ConnectedDevices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// GetCapability 返回已连接设备的能力档案
func (s *SessionManager) GetCapability(deviceID string) (*domain.DeviceCapability, error) {
	sess, err := s.session(deviceID)
	if err != nil {
		return nil, err
	}
	return sess.capability, nil
}

// session 查找已连接设备会话
func (s *SessionManager) session(deviceID string) (*deviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[deviceID]
	if !ok {
		return nil, &domain.DeviceNotFoundError{DeviceID: deviceID}
	}
	return sess, nil
}

// StartDeviceDiscovery 开始扫描；30秒后自动停止
// 已在扫描中时幂等成功
func (s *SessionManager) StartDeviceDiscovery() error {
	if s.runCtx == nil {
		return fmt.Errorf("session manager not started")
	}
	if !s.adapter.IsBluetoothSupported() {
		return domain.ErrBluetoothNotSupported
	}
	if !s.adapter.IsBluetoothEnabled() {
		return domain.ErrBluetoothDisabled
	}

	s.mu.Lock()
	if s.discovering {
		s.mu.Unlock()
		return nil
	}
	s.discovering = true
	discCtx, cancel := context.WithCancel(s.runCtx)
	s.stopDisc = cancel
	s.mu.Unlock()

	err := s.adapter.StartDiscovery(discCtx, func(d bandsdk.DiscoveredDevice, rssi int) {
		ev := newDeviceEvent(domain.EventDeviceDiscovered, d.ID)
		ev.RSSI = rssi
		ev.Message = d.Name
		s.deviceEvents.Publish(ev)
	})
	if err != nil {
		s.mu.Lock()
		s.discovering = false
		s.stopDisc = nil
		s.mu.Unlock()
		cancel()
		return &domain.UnknownError{Cause: err}
	}

	// 扫描超时自动停止
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-discCtx.Done():
		case <-time.After(discoveryTimeout):
			if err := s.StopDeviceDiscovery(); err != nil {
				s.logger.Warn("Failed to auto-stop discovery", zap.Error(err))
			}
		}
	}()

	s.logger.Info("Device discovery started")
	return nil
}

// StopDeviceDiscovery 停止扫描；未在扫描时幂等成功
func (s *SessionManager) StopDeviceDiscovery() error {
	s.mu.Lock()
	if !s.discovering {
		s.mu.Unlock()
		return nil
	}
	s.discovering = false
	cancel := s.stopDisc
	s.stopDisc = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.adapter.StopDiscovery(); err != nil {
		return &domain.UnknownError{Cause: err}
	}

	s.logger.Info("Device discovery stopped")
	return nil
}

// ConnectToDevice 连接设备
// 已连接时幂等成功；连接前先停止扫描；成功后探测并持久化能力档案、注册会话、
// 重置重连计数并广播 DeviceConnected
func (s *SessionManager) ConnectToDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if _, ok := s.sessions[deviceID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// 连接前停止扫描
	if err := s.StopDeviceDiscovery(); err != nil {
		s.logger.Warn("Failed to stop discovery before connect", zap.Error(err))
	}

	if err := s.adapter.ConnectDevice(ctx, deviceID); err != nil {
		ev := newDeviceEvent(domain.EventConnectionFailed, deviceID)
		ev.Message = err.Error()
		s.deviceEvents.Publish(ev)
		return &domain.ConnectionError{DeviceID: deviceID, Cause: err}
	}

	// 密码确认（SDK 固定调用序列：连接 → 密码确认 → 能力查询）
	if err := s.adapter.ConfirmPassword(ctx, deviceID); err != nil {
		_ = s.adapter.DisconnectDevice(deviceID)
		ev := newDeviceEvent(domain.EventConnectionFailed, deviceID)
		ev.Message = err.Error()
		s.deviceEvents.Publish(ev)
		return &domain.PairingError{DeviceID: deviceID, Cause: err}
	}

	capability, err := s.detectCapabilities(ctx, deviceID)
	if err != nil {
		_ = s.adapter.DisconnectDevice(deviceID)
		ev := newDeviceEvent(domain.EventConnectionFailed, deviceID)
		ev.Message = err.Error()
		s.deviceEvents.Publish(ev)
		return &domain.ConnectionError{DeviceID: deviceID, Cause: err}
	}

	if err := s.capRepo.SaveCapability(ctx, capability); err != nil {
		// 档案保存失败不阻断连接，下次连接重新探测
		s.logger.Warn("Failed to persist device capability",
			zap.String("device_id", deviceID), zap.Error(err))
	}

	sess := &deviceSession{
		deviceID:    deviceID,
		capability:  capability,
		connectedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[deviceID] = sess
	// 连接成功重置重连计数
	if rs, ok := s.reconnects[deviceID]; ok {
		rs.cancel()
		delete(s.reconnects, deviceID)
	}
	s.mu.Unlock()

	s.deviceEvents.Publish(newDeviceEvent(domain.EventDeviceConnected, deviceID))
	s.logger.Info("Device connected",
		zap.String("device_id", deviceID),
		zap.String("model", capability.Model),
		zap.Int("supported_metrics", len(capability.Metrics)),
	)

	return nil
}

// DisconnectFromDevice 断开设备
// 先停止该设备的全部采集任务并取消待定重连，再断开；设备未连接时也成功（no-op）
func (s *SessionManager) DisconnectFromDevice(deviceID string) error {
	s.stopAllJobs(deviceID)

	s.mu.Lock()
	if rs, ok := s.reconnects[deviceID]; ok {
		rs.cancel()
		delete(s.reconnects, deviceID)
	}
	_, existed := s.sessions[deviceID]
	delete(s.sessions, deviceID)
	s.mu.Unlock()

	if err := s.adapter.DisconnectDevice(deviceID); err != nil {
		s.logger.Warn("Adapter disconnect returned error",
			zap.String("device_id", deviceID), zap.Error(err))
	}

	if existed {
		ev := newDeviceEvent(domain.EventDeviceDisconnected, deviceID)
		ev.Reason = domain.DisconnectUserRequested
		s.deviceEvents.Publish(ev)
		s.logger.Info("Device disconnected", zap.String("device_id", deviceID))
	}

	return nil
}

// livenessLoop 断连检测循环：每5秒轮询各已连接设备是否仍然可达
func (s *SessionManager) livenessLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.livenessTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, deviceID := range s.ConnectedDevices() {
				if !s.adapter.IsDeviceConnected(deviceID) {
					s.handleConnectionLost(deviceID)
				}
			}
		}
	}
}

// handleConnectionLost 检测到连接丢失：停止采集任务、移除会话、广播断连、触发重连
func (s *SessionManager) handleConnectionLost(deviceID string) {
	s.stopAllJobs(deviceID)

	s.mu.Lock()
	_, existed := s.sessions[deviceID]
	delete(s.sessions, deviceID)
	s.mu.Unlock()

	if !existed {
		return
	}

	ev := newDeviceEvent(domain.EventDeviceDisconnected, deviceID)
	ev.Reason = domain.DisconnectConnectionLost
	s.deviceEvents.Publish(ev)

	s.logger.Warn("Device connection lost", zap.String("device_id", deviceID))
	s.scheduleReconnect(deviceID)
}
