package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vitalband/internal/config"

	"go.uber.org/zap"
)

// Feature 平台功能开关
type Feature string

const (
	FeatureRealtimeMonitoring Feature = "REALTIME_MONITORING"
	FeatureBatchSync          Feature = "BATCH_SYNC"
	FeatureMFARequired        Feature = "MFA_REQUIRED"
	FeatureCarePlans          Feature = "CARE_PLANS"
)

// AuthStatus 认证状态枚举
type AuthStatus string

const (
	AuthNotAuthenticated AuthStatus = "NOT_AUTHENTICATED"
	AuthAuthenticating   AuthStatus = "AUTHENTICATING"
	AuthAuthenticated    AuthStatus = "AUTHENTICATED"
	AuthError            AuthStatus = "ERROR"
)

// AuthState 认证状态（进程级单槽位，每个平台各自持有一份）
type AuthState struct {
	Status       AuthStatus
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	Message      string // ERROR 状态的原因
}

// Manager 平台集成管理器
// 负责认证生命周期（登录/MFA/刷新定时器/登出）、平台选择与功能门控、
// 同步编排、离线队列与实时通道
type Manager struct {
	cfg          *config.Config
	clients      map[string]PlatformAPI
	dialRealtime RealtimeDialer
	logger       *zap.Logger

	// mu 保护 activeKey/auth/clientID/mfaSession/refreshTimer/online/realtime
	mu           sync.Mutex
	activeKey    string
	auth         map[string]AuthState
	clientID     string
	mfaSession   string
	refreshTimer *time.Timer
	online       bool
	realtime     RealtimeConn

	// syncMu 保护 syncCancel（startSync 取消并替换语义）
	syncMu     sync.Mutex
	syncCancel context.CancelFunc

	// 最近一次同步拉取的平台侧配置/阈值
	stateMu     sync.Mutex
	vitalConfig *VitalConfigurationDTO
	thresholds  []ThresholdDTO

	queue  *offlineQueue
	events *eventBus

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager 创建平台集成管理器
// clients 以 "primary"/"secondary" 为键；dialRealtime 可为 nil（禁用实时通道）
func NewManager(
	cfg *config.Config,
	clients map[string]PlatformAPI,
	dialRealtime RealtimeDialer,
	logger *zap.Logger,
) *Manager {
	auth := make(map[string]AuthState, len(clients))
	for key := range clients {
		auth[key] = AuthState{Status: AuthNotAuthenticated}
	}

	return &Manager{
		cfg:          cfg,
		clients:      clients,
		dialRealtime: dialRealtime,
		logger:       logger,
		activeKey:    cfg.ActivePlatform,
		auth:         auth,
		online:       true,
		queue:        newOfflineQueue(),
		events:       newEventBus(logger),
	}
}

// Start 启动离线队列定时排空循环
func (m *Manager) Start(ctx context.Context) error {
	m.runCtx, m.runCancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.drainLoop(m.runCtx)

	m.logger.Info("Platform manager started",
		zap.String("active_platform", m.ActivePlatform()))
	return nil
}

// Stop 停止同步任务、刷新定时器、实时通道与后台循环
func (m *Manager) Stop() {
	m.cancelSync()

	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	realtime := m.realtime
	m.realtime = nil
	m.mu.Unlock()

	if realtime != nil {
		realtime.Close()
	}

	if m.runCancel != nil {
		m.runCancel()
	}
	m.wg.Wait()

	m.events.Close()
	m.logger.Info("Platform manager stopped")
}

// Events 订阅平台事件流
func (m *Manager) Events() (<-chan Event, func()) {
	return m.events.Subscribe()
}

// ActivePlatform 当前激活平台名
func (m *Manager) ActivePlatform() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.platformConfig(m.activeKey).Name
}

// ActivePlatformKey 当前激活平台键（"primary"/"secondary"）
func (m *Manager) ActivePlatformKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeKey
}

// platformConfig 按键取平台配置；调用方需持有 m.mu 或确保键不变
func (m *Manager) platformConfig(key string) *config.PlatformConfig {
	if key == "secondary" {
		return &m.cfg.PlatformSecondary
	}
	return &m.cfg.PlatformPrimary
}

// client 当前激活平台的 API 客户端
func (m *Manager) client() PlatformAPI {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.activeKey]
}

// IsFeatureSupported 功能门控：当前激活平台静态配置的纯函数
// 调用方必须先判断再操作，而不是靠失败发现不支持
func (m *Manager) IsFeatureSupported(feature Feature) bool {
	m.mu.Lock()
	features := m.platformConfig(m.activeKey).Features
	m.mu.Unlock()

	switch feature {
	case FeatureRealtimeMonitoring:
		return features.RealtimeMonitoring
	case FeatureBatchSync:
		return features.BatchSync
	case FeatureMFARequired:
		return features.MFARequired
	case FeatureCarePlans:
		return features.CarePlans
	default:
		return false
	}
}

// AuthState 当前激活平台的认证状态
func (m *Manager) AuthState() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth[m.activeKey]
}

// isAuthenticated 当前激活平台是否已认证
func (m *Manager) isAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth[m.activeKey].Status == AuthAuthenticated
}

// Login 登录当前激活平台
// 平台要求 MFA 且服务端返回待验证会话时返回 mfaRequired=true，
// 需随后调用 VerifyMfa 完成认证
func (m *Manager) Login(ctx context.Context, creds Credentials) (mfaRequired bool, err error) {
	m.setAuthState(AuthState{Status: AuthAuthenticating})

	result, err := m.client().Login(ctx, creds)
	if err != nil {
		m.setAuthState(AuthState{Status: AuthError, Message: err.Error()})
		return false, fmt.Errorf("login failed: %w", err)
	}

	m.mu.Lock()
	m.clientID = creds.ClientID
	m.mu.Unlock()

	if result.MfaRequired {
		m.mu.Lock()
		m.mfaSession = result.MfaSessionID
		m.mu.Unlock()
		return true, nil
	}

	m.setAuthenticated(result)
	return false, nil
}

// VerifyMfa 完成 MFA 验证
func (m *Manager) VerifyMfa(ctx context.Context, code string) error {
	m.mu.Lock()
	session := m.mfaSession
	m.mu.Unlock()

	if session == "" {
		return fmt.Errorf("no pending MFA session")
	}

	result, err := m.client().VerifyMfa(ctx, session, code)
	if err != nil {
		m.setAuthState(AuthState{Status: AuthError, Message: err.Error()})
		return fmt.Errorf("MFA verification failed: %w", err)
	}

	m.mu.Lock()
	m.mfaSession = ""
	m.mu.Unlock()

	m.setAuthenticated(result)
	return nil
}

// Logout 登出：取消进行中的同步、关闭实时通道、停止刷新定时器
func (m *Manager) Logout(ctx context.Context) error {
	m.cancelSync()
	m.CloseRealtime()

	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	client := m.clients[m.activeKey]
	m.mu.Unlock()

	if err := client.Logout(ctx); err != nil {
		m.logger.Warn("Platform logout request failed", zap.Error(err))
	}
	client.SetToken("")

	m.setAuthState(AuthState{Status: AuthNotAuthenticated})
	m.logger.Info("Logged out from platform", zap.String("platform", m.ActivePlatform()))
	return nil
}

// setAuthState 更新当前激活平台的认证状态并广播
func (m *Manager) setAuthState(state AuthState) {
	m.mu.Lock()
	m.auth[m.activeKey] = state
	platform := m.platformConfig(m.activeKey).Name
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:     EventAuthChanged,
		Platform: platform,
		Message:  string(state.Status),
	})
}

// setAuthenticated 认证成功：记录令牌、设置客户端认证头、重新武装刷新定时器
func (m *Manager) setAuthenticated(result *AuthResult) {
	state := AuthState{
		Status:       AuthAuthenticated,
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	}

	m.mu.Lock()
	m.auth[m.activeKey] = state
	m.clients[m.activeKey].SetToken(result.Token)
	platform := m.platformConfig(m.activeKey).Name
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:     EventAuthChanged,
		Platform: platform,
		Message:  string(AuthAuthenticated),
	})

	m.armRefreshTimer(result.ExpiresAt)

	// 认证恢复后尝试排空积压
	m.triggerDrain()

	m.logger.Info("Authenticated with platform",
		zap.String("platform", platform),
		zap.Time("expires_at", result.ExpiresAt),
	)
}

// armRefreshTimer 武装一次性令牌刷新定时器
// 延迟 = 到期时间 − 当前时间 − 提前量；已在提前量窗口内则立即刷新
func (m *Manager) armRefreshTimer(expiresAt time.Time) {
	delay := time.Until(expiresAt) - m.cfg.Sync.TokenRefreshSlack

	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}

	if delay <= 0 {
		m.mu.Unlock()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.refreshNow()
		}()
		return
	}

	m.refreshTimer = time.AfterFunc(delay, m.refreshNow)
	m.mu.Unlock()

	m.logger.Debug("Token refresh scheduled", zap.Duration("delay", delay))
}

// refreshNow 执行令牌刷新；失败回落到未认证状态
func (m *Manager) refreshNow() {
	m.mu.Lock()
	state := m.auth[m.activeKey]
	client := m.clients[m.activeKey]
	m.mu.Unlock()

	if state.Status != AuthAuthenticated || state.RefreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := client.RefreshToken(ctx, state.RefreshToken)
	if err != nil {
		m.logger.Warn("Token refresh failed, dropping to unauthenticated", zap.Error(err))
		client.SetToken("")
		m.setAuthState(AuthState{Status: AuthNotAuthenticated})
		return
	}

	m.setAuthenticated(result)
}

// SetOnline 上报连接状态；离线→在线转换触发一次队列排空
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		m.logger.Info("Connectivity restored, draining offline queue")
		m.triggerDrain()
	}
}

// IsOnline 当前连接状态
func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SubmitVitalReading 上报单条体征读数
// 离线/未认证/提交失败时入队等待排空，不向调用方返回失败
func (m *Manager) SubmitVitalReading(ctx context.Context, reading VitalReadingDTO) error {
	if !m.IsOnline() || !m.isAuthenticated() {
		m.queue.EnqueueVital(reading)
		return nil
	}

	if err := m.client().SubmitVitalReading(ctx, &reading); err != nil {
		m.logger.Warn("Vital reading submission failed, queuing",
			zap.String("metric", reading.Metric), zap.Error(err))
		m.queue.EnqueueVital(reading)
		return nil
	}
	return nil
}

// RegisterDevice 注册设备；失败语义与 SubmitVitalReading 一致
func (m *Manager) RegisterDevice(ctx context.Context, registration DeviceRegistrationDTO) error {
	if !m.IsOnline() || !m.isAuthenticated() {
		m.queue.EnqueueRegistration(registration)
		return nil
	}

	if err := m.client().RegisterDevice(ctx, &registration); err != nil {
		m.logger.Warn("Device registration failed, queuing",
			zap.String("device_id", registration.Device.DeviceID), zap.Error(err))
		m.queue.EnqueueRegistration(registration)
		return nil
	}
	return nil
}

// QueueSizes 离线队列积压条数
func (m *Manager) QueueSizes() (vitals, registrations int) {
	return m.queue.Sizes()
}

// ClearOfflineQueue 显式清空离线队列
func (m *Manager) ClearOfflineQueue() {
	m.queue.Clear()
}

// drainLoop 在线+已认证时按固定周期排空离线队列
func (m *Manager) drainLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Sync.QueueDrainTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.drainQueue(ctx)
		}
	}
}

// triggerDrain 异步触发一次队列排空
func (m *Manager) triggerDrain() {
	if m.runCtx == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.drainQueue(m.runCtx)
	}()
}

// drainQueue 排空离线队列
// 先设备注册后体征读数；本轮首个失败即提前结束，剩余条目等待下次触发。
// 平台支持批量同步时体征按固定分片批量提交，否则逐条提交
func (m *Manager) drainQueue(ctx context.Context) {
	if !m.IsOnline() || !m.isAuthenticated() {
		return
	}

	client := m.client()

	for {
		registration, ok := m.queue.TakeRegistration()
		if !ok {
			break
		}
		if err := client.RegisterDevice(ctx, &registration); err != nil {
			m.queue.RequeueRegistration(registration)
			m.logger.Warn("Queue drain stopped on registration failure", zap.Error(err))
			return
		}
	}

	batch := m.IsFeatureSupported(FeatureBatchSync)
	chunkSize := m.cfg.Sync.BatchChunkSize
	if !batch {
		chunkSize = 1
	}

	for {
		readings := m.queue.TakeVitals(chunkSize)
		if len(readings) == 0 {
			break
		}

		var err error
		if batch {
			err = client.SubmitVitalReadingsBatch(ctx, readings)
		} else {
			err = client.SubmitVitalReading(ctx, &readings[0])
		}
		if err != nil {
			m.queue.RequeueVitals(readings)
			m.logger.Warn("Queue drain stopped on vital submission failure", zap.Error(err))
			return
		}
	}
}

// SwitchPlatform 切换激活平台
// 取消进行中的同步并关闭实时通道；目标平台各自的认证状态独立保存
func (m *Manager) SwitchPlatform(key string) error {
	if key != "primary" && key != "secondary" {
		return fmt.Errorf("unknown platform key: %s", key)
	}

	m.cancelSync()
	m.CloseRealtime()

	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.activeKey = key
	state := m.auth[key]
	platform := m.platformConfig(key).Name
	m.mu.Unlock()

	// 目标平台仍持有效令牌时恢复刷新定时器
	if state.Status == AuthAuthenticated {
		m.armRefreshTimer(state.ExpiresAt)
	}

	m.logger.Info("Switched active platform", zap.String("platform", platform))
	return nil
}

// VitalConfiguration 最近一次同步拉取的平台体征配置
func (m *Manager) VitalConfiguration() *VitalConfigurationDTO {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.vitalConfig
}

// Thresholds 最近一次同步拉取的平台阈值
func (m *Manager) Thresholds() []ThresholdDTO {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.thresholds
}
