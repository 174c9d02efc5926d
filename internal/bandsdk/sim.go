package bandsdk

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimAdapter 模拟适配器
// 厂家 BLE 桥接未接入时用于联调：内置一台旗舰手环，测量值在生理区间内随机波动
type SimAdapter struct {
	mu        sync.Mutex
	connected map[string]bool
	rng       *rand.Rand
	logger    *zap.Logger
}

const simDeviceID = "AA:BB:CC:DD:EE:01"

var _ Adapter = (*SimAdapter)(nil)

// NewSimAdapter 创建模拟适配器
func NewSimAdapter(logger *zap.Logger) *SimAdapter {
	return &SimAdapter{
		connected: make(map[string]bool),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

func (a *SimAdapter) IsBluetoothSupported() bool { return true }
func (a *SimAdapter) IsBluetoothEnabled() bool   { return true }

func (a *SimAdapter) StartDiscovery(ctx context.Context, cb DiscoveryCallback) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(200 * time.Millisecond):
			cb(DiscoveredDevice{ID: simDeviceID, Name: "VitalBand Pro 2", RSSI: -58}, -58)
		}
	}()
	return nil
}

func (a *SimAdapter) StopDiscovery() error { return nil }

func (a *SimAdapter) ConnectDevice(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected[deviceID] = true
	a.logger.Info("Simulated device connected", zap.String("device_id", deviceID))
	return nil
}

func (a *SimAdapter) ConfirmPassword(ctx context.Context, deviceID string) error { return nil }

func (a *SimAdapter) DisconnectDevice(deviceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.connected, deviceID)
	return nil
}

func (a *SimAdapter) IsDeviceConnected(deviceID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected[deviceID]
}

func (a *SimAdapter) GetPairedDevices() []string {
	return []string{simDeviceID}
}

func (a *SimAdapter) GetDeviceInfo(ctx context.Context, deviceID string) (*DeviceInfo, error) {
	return &DeviceInfo{Model: "VB-PRO-2", Manufacturer: "VitalBand", SerialNumber: "SIM-0001"}, nil
}

func (a *SimAdapter) GetBatteryLevel(ctx context.Context, deviceID string) (*int, error) {
	level := 70 + a.intn(30)
	return &level, nil
}

func (a *SimAdapter) GetFirmwareVersion(ctx context.Context, deviceID string) (*string, error) {
	version := "2.4.1"
	return &version, nil
}

func (a *SimAdapter) UpdateFirmware(ctx context.Context, deviceID, url string) (bool, error) {
	return false, nil
}

func (a *SimAdapter) MeasureHeartRate(ctx context.Context, deviceID string) (*RawHeartRate, error) {
	return &RawHeartRate{BPM: 60 + a.intn(40), TimestampMs: nowMs()}, nil
}

func (a *SimAdapter) MeasureBloodPressure(ctx context.Context, deviceID string) (*RawBloodPressure, error) {
	return &RawBloodPressure{
		Systolic:    110 + a.intn(25),
		Diastolic:   70 + a.intn(15),
		Pulse:       60 + a.intn(30),
		TimestampMs: nowMs(),
	}, nil
}

func (a *SimAdapter) MeasureBloodOxygen(ctx context.Context, deviceID string) (*RawBloodOxygen, error) {
	return &RawBloodOxygen{SpO2: 95 + a.float()*4, TimestampMs: nowMs()}, nil
}

func (a *SimAdapter) MeasureBodyTemperature(ctx context.Context, deviceID string) (*RawBodyTemperature, error) {
	return &RawBodyTemperature{Celsius: 36.2 + a.float()*0.8, TimestampMs: nowMs()}, nil
}

func (a *SimAdapter) MeasureStressLevel(ctx context.Context, deviceID string) (*RawStressLevel, error) {
	return &RawStressLevel{Level: 20 + a.intn(50), TimestampMs: nowMs()}, nil
}

func (a *SimAdapter) RecordEcg(ctx context.Context, deviceID string, durationSec int) (*RawEcg, error) {
	const rateHz = 125
	waveform := make([]float64, durationSec*rateHz)
	for i := range waveform {
		waveform[i] = a.float()*2 - 1
	}
	return &RawEcg{
		Waveform:       waveform,
		SamplingRateHz: rateHz,
		DurationSec:    durationSec,
		AverageBPM:     60 + a.intn(30),
		TimestampMs:    nowMs(),
	}, nil
}

func (a *SimAdapter) MeasureBloodGlucose(ctx context.Context, deviceID string) (*RawBloodGlucose, error) {
	return &RawBloodGlucose{MmolPerL: 4.5 + a.float()*2.5, TimestampMs: nowMs()}, nil
}

func (a *SimAdapter) SyncHeartRate(ctx context.Context, deviceID string) ([]RawHeartRate, error) {
	samples := make([]RawHeartRate, 0, 12)
	for i := 12; i > 0; i-- {
		samples = append(samples, RawHeartRate{
			BPM:         60 + a.intn(40),
			TimestampMs: nowMs() - int64(i)*5*60*1000,
		})
	}
	return samples, nil
}

func (a *SimAdapter) SyncBloodPressure(ctx context.Context, deviceID string) ([]RawBloodPressure, error) {
	return nil, nil
}

func (a *SimAdapter) SyncBloodOxygen(ctx context.Context, deviceID string) ([]RawBloodOxygen, error) {
	return nil, nil
}

func (a *SimAdapter) SyncBodyTemperature(ctx context.Context, deviceID string) ([]RawBodyTemperature, error) {
	return nil, nil
}

func (a *SimAdapter) SyncStressLevel(ctx context.Context, deviceID string) ([]RawStressLevel, error) {
	return nil, nil
}

func (a *SimAdapter) SyncEcg(ctx context.Context, deviceID string) ([]RawEcg, error) {
	return nil, nil
}

func (a *SimAdapter) SyncBloodGlucose(ctx context.Context, deviceID string) ([]RawBloodGlucose, error) {
	return nil, nil
}

func (a *SimAdapter) SyncActivity(ctx context.Context, deviceID string) ([]RawActivity, error) {
	return []RawActivity{{
		ActivityType: "WALKING",
		Steps:        2000 + a.intn(4000),
		DurationSec:  1800,
		DistanceM:    1500 + a.float()*2000,
		TimestampMs:  nowMs() - 3600*1000,
	}}, nil
}

func (a *SimAdapter) SyncSleep(ctx context.Context, deviceID string) ([]RawSleep, error) {
	end := nowMs() - 6*3600*1000
	start := end - 7*3600*1000
	return []RawSleep{{
		StartMs:  start,
		EndMs:    end,
		TotalSec: 7 * 3600,
		AwakeSec: 1200,
		Stages: []RawSleepStage{
			{Stage: "LIGHT", DurationSec: 3 * 3600},
			{Stage: "DEEP", DurationSec: 2 * 3600},
			{Stage: "REM", DurationSec: 2*3600 - 1200},
			{Stage: "AWAKE", DurationSec: 1200},
		},
	}}, nil
}

func (a *SimAdapter) SupportsMetric(ctx context.Context, deviceID string, metric string) (bool, error) {
	return true, nil
}

func (a *SimAdapter) GetSamplingRate(ctx context.Context, deviceID string, metric string) (int, error) {
	return 60, nil
}

func (a *SimAdapter) GetAccuracyRating(ctx context.Context, deviceID string, metric string) (float64, error) {
	return 0.95, nil
}

func (a *SimAdapter) ShouldClearDeviceDataAfterSync(deviceID string) bool { return true }

func (a *SimAdapter) ClearDeviceData(ctx context.Context, deviceID string) error { return nil }

func (a *SimAdapter) intn(n int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Intn(n)
}

func (a *SimAdapter) float() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
