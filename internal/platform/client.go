package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vitalband/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// PlatformAPI 远程护理平台 API
// 所有调用返回带类型的结果或错误；非 2xx 响应转换为 *APIError
type PlatformAPI interface {
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	VerifyMfa(ctx context.Context, sessionID, code string) (*AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context) error

	GetClientVitalConfiguration(ctx context.Context, clientID string) (*VitalConfigurationDTO, error)
	UpdateClientVitalConfiguration(ctx context.Context, cfg *VitalConfigurationDTO) error
	GetClientThresholds(ctx context.Context, clientID string) ([]ThresholdDTO, error)
	UpdateClientThresholds(ctx context.Context, clientID string, thresholds []ThresholdDTO) error
	GetClientDevices(ctx context.Context, clientID string) ([]DeviceDTO, error)
	GetClientVitals(ctx context.Context, clientID string, start, end time.Time) ([]VitalReadingDTO, error)
	GetClientAlerts(ctx context.Context, clientID string, startDate time.Time) ([]AlertDTO, error)
	GetDeviceDetails(ctx context.Context, deviceID string) (*DeviceDTO, error)

	SubmitVitalReading(ctx context.Context, reading *VitalReadingDTO) error
	SubmitVitalReadingsBatch(ctx context.Context, readings []VitalReadingDTO) error
	RegisterDevice(ctx context.Context, registration *DeviceRegistrationDTO) error

	// SetToken 设置后续请求的 Bearer 令牌（空串清除）
	SetToken(token string)
}

// restyClient 基于 resty 的平台客户端实现
type restyClient struct {
	http   *resty.Client
	cfg    *config.PlatformConfig
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

var _ PlatformAPI = (*restyClient)(nil)

// NewClient 创建平台 API 客户端
func NewClient(cfg *config.PlatformConfig, logger *zap.Logger) PlatformAPI {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Client-ID", cfg.ClientID)

	return &restyClient{
		http:   http,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *restyClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// request 构建带认证头的请求
func (c *restyClient) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)

	c.mu.RLock()
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	c.mu.RUnlock()

	return req
}

// checkResponse 将非 2xx 响应转换为 APIError
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	return nil
}

func (c *restyClient) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var result AuthResult
	resp, err := c.request(ctx).
		SetBody(creds).
		SetResult(&result).
		Post("/api/v1/auth/login")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restyClient) VerifyMfa(ctx context.Context, sessionID, code string) (*AuthResult, error) {
	var result AuthResult
	resp, err := c.request(ctx).
		SetBody(map[string]string{"mfa_session_id": sessionID, "code": code}).
		SetResult(&result).
		Post("/api/v1/auth/mfa/verify")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restyClient) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	var result AuthResult
	resp, err := c.request(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&result).
		Post("/api/v1/auth/refresh")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restyClient) Logout(ctx context.Context) error {
	resp, err := c.request(ctx).Post("/api/v1/auth/logout")
	return checkResponse(resp, err)
}

func (c *restyClient) GetClientVitalConfiguration(ctx context.Context, clientID string) (*VitalConfigurationDTO, error) {
	var result VitalConfigurationDTO
	resp, err := c.request(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/clients/%s/vital-configuration", clientID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restyClient) UpdateClientVitalConfiguration(ctx context.Context, dto *VitalConfigurationDTO) error {
	resp, err := c.request(ctx).
		SetBody(dto).
		Put(fmt.Sprintf("/api/v1/clients/%s/vital-configuration", dto.ClientID))
	return checkResponse(resp, err)
}

func (c *restyClient) GetClientThresholds(ctx context.Context, clientID string) ([]ThresholdDTO, error) {
	var result []ThresholdDTO
	resp, err := c.request(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/clients/%s/thresholds", clientID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *restyClient) UpdateClientThresholds(ctx context.Context, clientID string, thresholds []ThresholdDTO) error {
	resp, err := c.request(ctx).
		SetBody(thresholds).
		Put(fmt.Sprintf("/api/v1/clients/%s/thresholds", clientID))
	return checkResponse(resp, err)
}

func (c *restyClient) GetClientDevices(ctx context.Context, clientID string) ([]DeviceDTO, error) {
	var result []DeviceDTO
	resp, err := c.request(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/clients/%s/devices", clientID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *restyClient) GetClientVitals(ctx context.Context, clientID string, start, end time.Time) ([]VitalReadingDTO, error) {
	var result []VitalReadingDTO
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/clients/%s/vitals", clientID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *restyClient) GetClientAlerts(ctx context.Context, clientID string, startDate time.Time) ([]AlertDTO, error) {
	var result []AlertDTO
	resp, err := c.request(ctx).
		SetQueryParam("start_date", startDate.Format(time.RFC3339)).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/clients/%s/alerts", clientID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *restyClient) GetDeviceDetails(ctx context.Context, deviceID string) (*DeviceDTO, error) {
	var result DeviceDTO
	resp, err := c.request(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/api/v1/devices/%s", deviceID))
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restyClient) SubmitVitalReading(ctx context.Context, reading *VitalReadingDTO) error {
	resp, err := c.request(ctx).
		SetBody(reading).
		Post("/api/v1/vitals")
	return checkResponse(resp, err)
}

func (c *restyClient) SubmitVitalReadingsBatch(ctx context.Context, readings []VitalReadingDTO) error {
	resp, err := c.request(ctx).
		SetBody(map[string]interface{}{"readings": readings}).
		Post("/api/v1/vitals/batch")
	return checkResponse(resp, err)
}

func (c *restyClient) RegisterDevice(ctx context.Context, registration *DeviceRegistrationDTO) error {
	resp, err := c.request(ctx).
		SetBody(registration).
		Post("/api/v1/devices/register")
	return checkResponse(resp, err)
}
