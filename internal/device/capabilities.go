package device

import (
	"context"
	"fmt"
	"time"

	"vitalband/internal/domain"

	"go.uber.org/zap"
)

// flagshipModels 旗舰机型：默认支持全部指标，跳过逐项探测
var flagshipModels = map[string]bool{
	"VB-PRO-2":   true,
	"VB-PRO-2S":  true,
	"VB-ULTRA-1": true,
}

// detectCapabilities 能力探测
// 已有持久化档案时复用，仅刷新电量/固件；否则查询机型：
// 旗舰机型默认支持全部指标，未知机型逐项探测并记录采样率/精度
func (s *SessionManager) detectCapabilities(ctx context.Context, deviceID string) (*domain.DeviceCapability, error) {
	saved, err := s.capRepo.GetCapability(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved capability: %w", err)
	}

	if saved != nil {
		s.refreshDeviceStatus(ctx, deviceID, saved)
		saved.UpdatedAt = time.Now()
		return saved, nil
	}

	info, err := s.adapter.GetDeviceInfo(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}

	capability := &domain.DeviceCapability{
		DeviceID:    deviceID,
		DisplayName: info.Manufacturer + " " + info.Model,
		Model:       info.Model,
		Metrics:     make(map[domain.Metric]domain.MetricSpec),
		DetectedAt:  time.Now(),
		UpdatedAt:   time.Now(),
	}

	for _, metric := range domain.AllMetrics {
		supported := flagshipModels[info.Model]
		if !supported {
			ok, err := s.adapter.SupportsMetric(ctx, deviceID, string(metric))
			if err != nil {
				// 单项探测失败视为不支持，不中断其余探测
				s.logger.Warn("Metric support probe failed",
					zap.String("device_id", deviceID),
					zap.String("metric", string(metric)),
				)
				continue
			}
			supported = ok
		}
		if !supported {
			continue
		}

		spec := domain.MetricSpec{}
		if rate, err := s.adapter.GetSamplingRate(ctx, deviceID, string(metric)); err == nil {
			spec.SamplingRateHz = rate
		}
		if acc, err := s.adapter.GetAccuracyRating(ctx, deviceID, string(metric)); err == nil {
			spec.Accuracy = acc
		}
		capability.Metrics[metric] = spec
	}

	s.refreshDeviceStatus(ctx, deviceID, capability)

	return capability, nil
}

// refreshDeviceStatus 刷新电量/固件版本（失败仅记录日志）
func (s *SessionManager) refreshDeviceStatus(ctx context.Context, deviceID string, capability *domain.DeviceCapability) {
	if level, err := s.adapter.GetBatteryLevel(ctx, deviceID); err == nil && level != nil {
		capability.BatteryLevel = level
	} else if err != nil {
		s.logger.Debug("Battery level query failed", zap.String("device_id", deviceID))
	}

	if version, err := s.adapter.GetFirmwareVersion(ctx, deviceID); err == nil && version != nil {
		capability.FirmwareVersion = version
	} else if err != nil {
		s.logger.Debug("Firmware version query failed", zap.String("device_id", deviceID))
	}
}
