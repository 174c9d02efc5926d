package repository

import (
	"context"

	"vitalband/internal/domain"
)

// CapabilitiesRepository 设备能力档案Repository接口
// 按 DeviceID（稳定地址）持久化能力探测结果；档案不隐式删除
type CapabilitiesRepository interface {
	// GetCapability 按设备ID获取能力档案（不存在返回 nil, nil）
	GetCapability(ctx context.Context, deviceID string) (*domain.DeviceCapability, error)

	// SaveCapability 保存/覆盖能力档案（upsert）
	SaveCapability(ctx context.Context, cap *domain.DeviceCapability) error

	// UpdateBatteryLevel 刷新电量
	UpdateBatteryLevel(ctx context.Context, deviceID string, level int) error

	// UpdateFirmwareVersion 刷新固件版本
	UpdateFirmwareVersion(ctx context.Context, deviceID string, version string) error
}
