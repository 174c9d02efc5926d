package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"vitalband/internal/config"

	"go.uber.org/zap"
)

// fakeAPI 脚本化的平台 API 替身
type fakeAPI struct {
	mu sync.Mutex

	token string

	loginResult   *AuthResult
	loginErr      error
	mfaResult     *AuthResult
	mfaErr        error
	refreshResult *AuthResult
	refreshErr    error
	refreshCalls  int

	vitalConfig       *VitalConfigurationDTO
	configErr         error
	thresholds        []ThresholdDTO
	thresholdsErr     error
	updatedConfigs    []*VitalConfigurationDTO
	updatedThresholds [][]ThresholdDTO
	devices       []DeviceDTO
	devicesErr    error
	devicesCalls  int
	vitals        []VitalReadingDTO
	vitalsErr     error
	alerts        []AlertDTO
	alertsErr     error

	submitErr     error
	submitCalls   int
	batchErr      error
	batchFailOn   int // 1-based：第 N 次批量调用失败（0 表示不失败）
	batchCalls    [][]VitalReadingDTO
	registerErr   error
	registerFailFor string // 指定 DeviceID 的注册失败
	registered    []DeviceRegistrationDTO
}

var _ PlatformAPI = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		loginResult: &AuthResult{
			Token:        "token-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		refreshResult: &AuthResult{
			Token:        "token-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		vitalConfig: &VitalConfigurationDTO{ClientID: "client-1", EnabledMetrics: []string{"HEART_RATE"}},
		thresholds:  []ThresholdDTO{{Metric: "HEART_RATE", Lower: 50, Upper: 120}},
	}
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeAPI) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAPI) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeAPI) VerifyMfa(ctx context.Context, sessionID, code string) (*AuthResult, error) {
	if f.mfaErr != nil {
		return nil, f.mfaErr
	}
	return f.mfaResult, nil
}

func (f *fakeAPI) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshResult, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error { return nil }

func (f *fakeAPI) GetClientVitalConfiguration(ctx context.Context, clientID string) (*VitalConfigurationDTO, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	return f.vitalConfig, nil
}

func (f *fakeAPI) UpdateClientVitalConfiguration(ctx context.Context, cfg *VitalConfigurationDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedConfigs = append(f.updatedConfigs, cfg)
	return nil
}

func (f *fakeAPI) GetClientThresholds(ctx context.Context, clientID string) ([]ThresholdDTO, error) {
	if f.thresholdsErr != nil {
		return nil, f.thresholdsErr
	}
	return f.thresholds, nil
}

func (f *fakeAPI) UpdateClientThresholds(ctx context.Context, clientID string, thresholds []ThresholdDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedThresholds = append(f.updatedThresholds, thresholds)
	return nil
}

func (f *fakeAPI) GetClientDevices(ctx context.Context, clientID string) ([]DeviceDTO, error) {
	f.mu.Lock()
	f.devicesCalls++
	f.mu.Unlock()
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return f.devices, nil
}

func (f *fakeAPI) GetClientVitals(ctx context.Context, clientID string, start, end time.Time) ([]VitalReadingDTO, error) {
	if f.vitalsErr != nil {
		return nil, f.vitalsErr
	}
	return f.vitals, nil
}

func (f *fakeAPI) GetClientAlerts(ctx context.Context, clientID string, startDate time.Time) ([]AlertDTO, error) {
	if f.alertsErr != nil {
		return nil, f.alertsErr
	}
	return f.alerts, nil
}

func (f *fakeAPI) GetDeviceDetails(ctx context.Context, deviceID string) (*DeviceDTO, error) {
	return &DeviceDTO{DeviceID: deviceID}, nil
}

func (f *fakeAPI) SubmitVitalReading(ctx context.Context, reading *VitalReadingDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitCalls++
	return nil
}

func (f *fakeAPI) SubmitVitalReadingsBatch(ctx context.Context, readings []VitalReadingDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.batchCalls) + 1
	if f.batchErr != nil {
		return f.batchErr
	}
	if f.batchFailOn > 0 && call == f.batchFailOn {
		return &APIError{StatusCode: 503, Message: "temporarily unavailable"}
	}
	f.batchCalls = append(f.batchCalls, readings)
	return nil
}

func (f *fakeAPI) RegisterDevice(ctx context.Context, registration *DeviceRegistrationDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	if f.registerFailFor != "" && registration.Device.DeviceID == f.registerFailFor {
		return &APIError{StatusCode: 500, Message: "registration rejected"}
	}
	f.registered = append(f.registered, *registration)
	return nil
}

// testConfig 双平台测试配置：primary 全功能，secondary 精简
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.PlatformPrimary = config.PlatformConfig{
		Name:    "careconnect",
		BaseURL: "https://primary.test",
		Features: config.PlatformFeatures{
			RealtimeMonitoring: true,
			BatchSync:          true,
			MFARequired:        true,
			CarePlans:          true,
		},
	}
	cfg.PlatformSecondary = config.PlatformConfig{
		Name:    "vitalcloud",
		BaseURL: "https://secondary.test",
	}
	cfg.ActivePlatform = "primary"
	cfg.Sync.VitalsWindowDays = 30
	cfg.Sync.QueueDrainTick = time.Hour
	cfg.Sync.BatchChunkSize = 50
	cfg.Sync.TokenRefreshSlack = 5 * time.Minute
	return cfg
}

// newTestManager 构建已启动的平台管理器
func newTestManager(t *testing.T, primary, secondary *fakeAPI, dialer RealtimeDialer) *Manager {
	t.Helper()

	m := NewManager(testConfig(), map[string]PlatformAPI{
		"primary":   primary,
		"secondary": secondary,
	}, dialer, zap.NewNop())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("failed to start platform manager: %v", err)
	}
	t.Cleanup(m.Stop)

	return m
}

// login 以不触发 MFA 的脚本登录
func login(t *testing.T, m *Manager, api *fakeAPI) {
	t.Helper()
	api.loginResult.MfaRequired = false
	mfaRequired, err := m.Login(context.Background(), Credentials{
		Username: "caregiver", Password: "secret", ClientID: "client-1",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if mfaRequired {
		t.Fatal("unexpected MFA challenge in scripted login")
	}
}

// waitEvent 等待指定类型的平台事件
func waitEvent(t *testing.T, ch <-chan Event, eventType EventType, timeout time.Duration) Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for platform event %s", eventType)
		}
	}
}
