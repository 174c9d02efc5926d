package domain

import "time"

// MetricSpec 单个指标的采集能力
type MetricSpec struct {
	SamplingRateHz int     `json:"sampling_rate_hz"` // 采样率（Hz），0 表示未知
	Accuracy       float64 `json:"accuracy"`         // 精度评级（0.0-1.0）
}

// DeviceCapability 设备能力档案
// 首次连接时探测生成，按 DeviceID 持久化；重连/刷新时更新，不隐式删除
type DeviceCapability struct {
	DeviceID        string                `json:"device_id"` // 稳定地址（如 "AA:BB:CC:DD:EE:FF"）
	DisplayName     string                `json:"display_name"`
	Model           string                `json:"model"`
	Metrics         map[Metric]MetricSpec `json:"metrics"`
	BatteryLevel    *int                  `json:"battery_level"`    // 0-100, nullable
	FirmwareVersion *string               `json:"firmware_version"` // nullable
	DetectedAt      time.Time             `json:"detected_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Supports 判断设备是否支持某个指标
func (c *DeviceCapability) Supports(m Metric) bool {
	_, ok := c.Metrics[m]
	return ok
}

// UnsupportedSubset 返回请求集合中设备不支持的指标子集
func (c *DeviceCapability) UnsupportedSubset(requested []Metric) []Metric {
	var missing []Metric
	for _, m := range requested {
		if !c.Supports(m) {
			missing = append(missing, m)
		}
	}
	return missing
}

// SupportedMetrics 返回支持的指标列表（顺序与 AllMetrics 一致，便于稳定遍历）
func (c *DeviceCapability) SupportedMetrics() []Metric {
	var out []Metric
	for _, m := range AllMetrics {
		if c.Supports(m) {
			out = append(out, m)
		}
	}
	return out
}
