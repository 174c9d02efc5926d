package platform

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SyncStage 同步阶段
type SyncStage string

const (
	StageConfiguration SyncStage = "CONFIGURATION"
	StageThresholds    SyncStage = "THRESHOLDS"
	StageDevices       SyncStage = "DEVICES"
	StageVitals        SyncStage = "VITALS"
	StageAlerts        SyncStage = "ALERTS"
	StageQueueDrain    SyncStage = "QUEUE_DRAIN"
)

// fullSyncStages 全量同步的固定阶段序列
var fullSyncStages = []SyncStage{
	StageConfiguration,
	StageThresholds,
	StageDevices,
	StageVitals,
	StageAlerts,
	StageQueueDrain,
}

// SyncConfig 同步任务配置
// Full 为 true 时执行全部阶段（体征窗口固定取配置的天数）；
// 否则按 Stages 执行增量同步，体征窗口由 VitalsWindowDays 指定；
// Periodic 为 true 时按 Interval 周期重复，直到任务被取消
type SyncConfig struct {
	Full             bool
	Stages           []SyncStage
	VitalsWindowDays int
	Periodic         bool
	Interval         time.Duration
}

// StartSync 启动同步任务
// 取消并替换语义：已有进行中的同步任务先被取消；
// 前置条件（在线+已认证）不满足时快速失败并说明原因
func (m *Manager) StartSync(cfg SyncConfig) error {
	if m.runCtx == nil {
		return fmt.Errorf("sync rejected: manager not started")
	}
	if !m.IsOnline() {
		return fmt.Errorf("sync rejected: offline")
	}
	if !m.isAuthenticated() {
		return fmt.Errorf("sync rejected: not authenticated")
	}

	m.syncMu.Lock()
	if m.syncCancel != nil {
		m.syncCancel()
	}
	syncCtx, cancel := context.WithCancel(m.runCtx)
	m.syncCancel = cancel
	m.syncMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runSync(syncCtx, cfg)
	}()

	return nil
}

// cancelSync 取消进行中的同步任务（无任务时 no-op）
func (m *Manager) cancelSync() {
	m.syncMu.Lock()
	if m.syncCancel != nil {
		m.syncCancel()
		m.syncCancel = nil
	}
	m.syncMu.Unlock()
}

// runSync 执行同步（Periodic 时循环执行到取消）
func (m *Manager) runSync(ctx context.Context, cfg SyncConfig) {
	for {
		m.runSyncPass(ctx, cfg)

		if !cfg.Periodic || cfg.Interval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Interval):
		}
	}
}

// runSyncPass 单轮同步：按阶段顺序执行并推进 0-100 进度
// 任一阶段失败中止本轮剩余阶段并广播失败；不在本次调用内自动重试
func (m *Manager) runSyncPass(ctx context.Context, cfg SyncConfig) {
	stages := cfg.Stages
	windowDays := cfg.VitalsWindowDays
	if cfg.Full {
		stages = fullSyncStages
		windowDays = m.cfg.Sync.VitalsWindowDays
	}
	if len(stages) == 0 {
		return
	}
	if windowDays <= 0 {
		windowDays = m.cfg.Sync.VitalsWindowDays
	}

	platform := m.ActivePlatform()
	m.logger.Info("Sync started",
		zap.String("platform", platform),
		zap.Bool("full", cfg.Full),
		zap.Int("stages", len(stages)),
	)

	m.events.Publish(Event{Type: EventSyncProgress, Platform: platform, Progress: 0})

	for i, stage := range stages {
		if ctx.Err() != nil {
			return
		}

		if err := m.runStage(ctx, stage, windowDays); err != nil {
			m.events.Publish(Event{
				Type:     EventSyncFailed,
				Platform: platform,
				Stage:    string(stage),
				Message:  err.Error(),
			})
			m.logger.Warn("Sync stage failed, aborting remaining stages",
				zap.String("stage", string(stage)), zap.Error(err))
			return
		}

		m.events.Publish(Event{
			Type:     EventSyncProgress,
			Platform: platform,
			Stage:    string(stage),
			Progress: (i + 1) * 100 / len(stages),
		})
	}

	m.events.Publish(Event{Type: EventSyncCompleted, Platform: platform, Progress: 100})
	m.logger.Info("Sync completed", zap.String("platform", platform))
}

// runStage 执行单个同步阶段
func (m *Manager) runStage(ctx context.Context, stage SyncStage, windowDays int) error {
	client := m.client()

	m.mu.Lock()
	clientID := m.clientID
	m.mu.Unlock()

	switch stage {
	case StageConfiguration:
		vitalConfig, err := client.GetClientVitalConfiguration(ctx, clientID)
		if err != nil {
			return err
		}
		m.stateMu.Lock()
		m.vitalConfig = vitalConfig
		m.stateMu.Unlock()
		return nil

	case StageThresholds:
		thresholds, err := client.GetClientThresholds(ctx, clientID)
		if err != nil {
			return err
		}
		m.stateMu.Lock()
		m.thresholds = thresholds
		m.stateMu.Unlock()
		return nil

	case StageDevices:
		_, err := client.GetClientDevices(ctx, clientID)
		return err

	case StageVitals:
		end := time.Now()
		start := end.AddDate(0, 0, -windowDays)
		_, err := client.GetClientVitals(ctx, clientID, start, end)
		return err

	case StageAlerts:
		start := time.Now().AddDate(0, 0, -windowDays)
		_, err := client.GetClientAlerts(ctx, clientID, start)
		return err

	case StageQueueDrain:
		m.drainQueue(ctx)
		return nil

	default:
		return fmt.Errorf("unknown sync stage: %s", stage)
	}
}
