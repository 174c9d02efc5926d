package platform

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MigrationConfig 平台迁移配置
type MigrationConfig struct {
	VitalsWindowDays int // 迁移的体征时间窗口；<=0 时取同步配置的缺省窗口
}

// MigrationResult 迁移结果
// 部分条目失败不视为整体失败：计数记录成功条数，错误逐条累积
type MigrationResult struct {
	SourcePlatform        string    `json:"source_platform"`
	TargetPlatform        string    `json:"target_platform"`
	ConfigurationMigrated bool      `json:"configuration_migrated"`
	ThresholdsMigrated    int       `json:"thresholds_migrated"`
	DevicesMigrated       int       `json:"devices_migrated"`
	VitalsMigrated        int       `json:"vitals_migrated"`
	Errors                []string  `json:"errors"`
	StartedAt             time.Time `json:"started_at"`
	EndedAt               time.Time `json:"ended_at"`
}

// MigrateBetweenPlatforms 在两个平台之间迁移数据
// 流程：切到源平台校验认证 → 拉取有界快照（配置/阈值/设备/窗口内体征）→
// 切到目标平台校验认证 → 依次上传配置、阈值、设备、体征（支持批量时分片批量）。
// 无论结果如何都恢复迁移前的激活平台
func (m *Manager) MigrateBetweenPlatforms(ctx context.Context, source, target string, cfg MigrationConfig) (*MigrationResult, error) {
	if source == target {
		return nil, fmt.Errorf("source and target platforms must differ")
	}

	originalKey := m.ActivePlatformKey()
	defer func() {
		if err := m.SwitchPlatform(originalKey); err != nil {
			m.logger.Warn("Failed to restore active platform after migration", zap.Error(err))
		}
	}()

	windowDays := cfg.VitalsWindowDays
	if windowDays <= 0 {
		windowDays = m.cfg.Sync.VitalsWindowDays
	}

	result := &MigrationResult{StartedAt: time.Now()}

	// 源平台：校验认证并拉取快照
	if err := m.SwitchPlatform(source); err != nil {
		return nil, err
	}
	result.SourcePlatform = m.ActivePlatform()
	if !m.isAuthenticated() {
		return nil, fmt.Errorf("not authenticated with source platform %s", result.SourcePlatform)
	}

	m.mu.Lock()
	clientID := m.clientID
	sourceClient := m.clients[source]
	m.mu.Unlock()

	vitalConfig, err := sourceClient.GetClientVitalConfiguration(ctx, clientID)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("vital configuration fetch: %v", err))
		vitalConfig = nil
	}

	thresholds, err := sourceClient.GetClientThresholds(ctx, clientID)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("thresholds fetch: %v", err))
		thresholds = nil
	}

	devices, err := sourceClient.GetClientDevices(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch devices from source platform: %w", err)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -windowDays)
	vitals, err := sourceClient.GetClientVitals(ctx, clientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vitals from source platform: %w", err)
	}

	// 目标平台：校验认证并上传
	if err := m.SwitchPlatform(target); err != nil {
		return nil, err
	}
	result.TargetPlatform = m.ActivePlatform()
	if !m.isAuthenticated() {
		return nil, fmt.Errorf("not authenticated with target platform %s", result.TargetPlatform)
	}

	m.mu.Lock()
	targetClient := m.clients[target]
	targetBatch := m.platformConfig(target).Features.BatchSync
	m.mu.Unlock()

	// 配置与阈值先行；失败累积错误，不中止迁移
	if vitalConfig != nil {
		if err := targetClient.UpdateClientVitalConfiguration(ctx, vitalConfig); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("vital configuration upload: %v", err))
		} else {
			result.ConfigurationMigrated = true
		}
	}
	if len(thresholds) > 0 {
		if err := targetClient.UpdateClientThresholds(ctx, clientID, thresholds); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("thresholds upload: %v", err))
		} else {
			result.ThresholdsMigrated = len(thresholds)
		}
	}

	// 先设备后体征；单条失败累积错误，不中止迁移
	for _, device := range devices {
		registration := DeviceRegistrationDTO{ClientID: clientID, Device: device}
		if err := targetClient.RegisterDevice(ctx, &registration); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("device %s: %v", device.DeviceID, err))
			continue
		}
		result.DevicesMigrated++
	}

	chunkSize := m.cfg.Sync.BatchChunkSize
	if !targetBatch {
		chunkSize = 1
	}
	for offset := 0; offset < len(vitals); offset += chunkSize {
		endIdx := offset + chunkSize
		if endIdx > len(vitals) {
			endIdx = len(vitals)
		}
		chunk := vitals[offset:endIdx]

		var uploadErr error
		if targetBatch {
			uploadErr = targetClient.SubmitVitalReadingsBatch(ctx, chunk)
		} else {
			uploadErr = targetClient.SubmitVitalReading(ctx, &chunk[0])
		}
		if uploadErr != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("vitals chunk at %d: %v", offset, uploadErr))
			continue
		}
		result.VitalsMigrated += len(chunk)
	}

	result.EndedAt = time.Now()

	m.logger.Info("Platform migration finished",
		zap.String("source", result.SourcePlatform),
		zap.String("target", result.TargetPlatform),
		zap.Int("devices", result.DevicesMigrated),
		zap.Int("vitals", result.VitalsMigrated),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}
