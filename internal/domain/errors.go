package domain

import (
	"errors"
	"fmt"
)

// 错误分类（所有公共操作通过带类型的错误返回，不使用 panic）
// 适配器/网络层异常在操作边界捕获并转换为以下分类，保留原始消息
var (
	ErrBluetoothNotSupported = errors.New("Bluetooth not supported")
	ErrBluetoothDisabled     = errors.New("Bluetooth not enabled")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrTimeout               = errors.New("operation timed out")
)

// ConnectionError 设备连接失败
type ConnectionError struct {
	DeviceID string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed for device %s: %v", e.DeviceID, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// PairingError 设备配对/密码确认失败
type PairingError struct {
	DeviceID string
	Cause    error
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("pairing failed for device %s: %v", e.DeviceID, e.Cause)
}

func (e *PairingError) Unwrap() error { return e.Cause }

// DeviceNotFoundError 目标设备不存在/未连接
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device not found: %s", e.DeviceID)
}

// DeviceNotSupportedError 设备不支持请求的指标/功能
// Metrics 标注缺失的指标子集（可为空）
type DeviceNotSupportedError struct {
	DeviceID string
	Metrics  []Metric
}

func (e *DeviceNotSupportedError) Error() string {
	if len(e.Metrics) == 0 {
		return fmt.Sprintf("device %s does not support the requested feature", e.DeviceID)
	}
	return fmt.Sprintf("device %s does not support metrics %v", e.DeviceID, e.Metrics)
}

// SyncError 同步失败（可标注失败的数据类型）
type SyncError struct {
	Metric Metric // 可为空
	Cause  error
}

func (e *SyncError) Error() string {
	if e.Metric != "" {
		return fmt.Sprintf("sync failed for %s: %v", e.Metric, e.Cause)
	}
	return fmt.Sprintf("sync failed: %v", e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// UnknownError 未归类错误（保留原始消息用于诊断）
type UnknownError struct {
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %v", e.Cause)
}

func (e *UnknownError) Unwrap() error { return e.Cause }
