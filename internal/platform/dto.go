package platform

import (
	"fmt"
	"time"
)

// 远程护理平台 API 的传输对象
// 字段命名跟随平台侧 JSON 契约，与本地领域模型解耦

// Credentials 登录凭证
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

// AuthResult 登录/刷新返回的令牌信息
// MfaRequired 为 true 时令牌字段为空，需调用 VerifyMfa 完成认证
type AuthResult struct {
	MfaRequired  bool      `json:"mfa_required"`
	MfaSessionID string    `json:"mfa_session_id,omitempty"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VitalConfigurationDTO 平台侧的体征采集配置
type VitalConfigurationDTO struct {
	ClientID           string         `json:"client_id"`
	EnabledMetrics     []string       `json:"enabled_metrics"`
	CollectionInterval map[string]int `json:"collection_interval_sec"`
}

// ThresholdDTO 单指标阈值
type ThresholdDTO struct {
	Metric string  `json:"metric"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// DeviceDTO 平台侧设备档案
type DeviceDTO struct {
	DeviceID        string  `json:"device_id"`
	DisplayName     string  `json:"display_name"`
	Model           string  `json:"model"`
	BatteryLevel    *int    `json:"battery_level,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`
}

// DeviceRegistrationDTO 设备注册请求
type DeviceRegistrationDTO struct {
	ClientID string    `json:"client_id"`
	Device   DeviceDTO `json:"device"`
}

// VitalReadingDTO 单条体征上报
type VitalReadingDTO struct {
	ReadingID  string                 `json:"reading_id"`
	ClientID   string                 `json:"client_id"`
	DeviceID   string                 `json:"device_id"`
	Metric     string                 `json:"metric"`
	Timestamp  time.Time              `json:"timestamp"`
	Validation string                 `json:"validation"`
	Payload    map[string]interface{} `json:"payload"`
}

// AlertDTO 平台告警
type AlertDTO struct {
	AlertID   string    `json:"alert_id"`
	ClientID  string    `json:"client_id"`
	Metric    string    `json:"metric"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError 平台返回的业务错误（非 2xx 响应）
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (status %d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized 是否为认证失效错误
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
