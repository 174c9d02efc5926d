package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"vitalband/internal/bandsdk"
	"vitalband/internal/config"
	"vitalband/internal/domain"
	"vitalband/internal/mapper"
	"vitalband/internal/repository"

	"go.uber.org/zap"
)

// fakeAdapter 模拟厂家SDK适配器
// 默认：蓝牙可用、连接总是成功、旗舰机型；并检测同一设备的并发在途操作
type fakeAdapter struct {
	mu sync.Mutex

	btSupported bool
	btEnabled   bool

	connectErr error
	confirmErr error

	connected    map[string]bool
	connectCalls map[string]int

	discovered []bandsdk.DiscoveredDevice

	model        string
	metricProbes map[string]bool
	samplingRate map[string]int

	hr      *bandsdk.RawHeartRate
	bp      *bandsdk.RawBloodPressure
	spo2    *bandsdk.RawBloodOxygen
	temp    *bandsdk.RawBodyTemperature
	stress  *bandsdk.RawStressLevel
	ecg     *bandsdk.RawEcg
	glucose *bandsdk.RawBloodGlucose

	syncHR       []bandsdk.RawHeartRate
	syncActivity []bandsdk.RawActivity
	syncErrs     map[domain.Metric]error

	clearAfterSync bool
	cleared        bool

	// 单在途操作检测
	opDelay  time.Duration
	inFlight map[string]bool
	overlaps int
}

var _ bandsdk.Adapter = (*fakeAdapter)(nil)

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		btSupported:  true,
		btEnabled:    true,
		connected:    make(map[string]bool),
		connectCalls: make(map[string]int),
		model:        "VB-PRO-2",
		metricProbes: make(map[string]bool),
		samplingRate: make(map[string]int),
		syncErrs:     make(map[domain.Metric]error),
		inFlight:     make(map[string]bool),
		hr:           &bandsdk.RawHeartRate{BPM: 72, TimestampMs: time.Now().UnixMilli()},
		bp:           &bandsdk.RawBloodPressure{Systolic: 120, Diastolic: 80, TimestampMs: time.Now().UnixMilli()},
		spo2:         &bandsdk.RawBloodOxygen{SpO2: 98, TimestampMs: time.Now().UnixMilli()},
		temp:         &bandsdk.RawBodyTemperature{Celsius: 36.6, TimestampMs: time.Now().UnixMilli()},
		stress:       &bandsdk.RawStressLevel{Level: 35, TimestampMs: time.Now().UnixMilli()},
		ecg:          &bandsdk.RawEcg{Waveform: make([]float64, 300), SamplingRateHz: 128, DurationSec: 30, TimestampMs: time.Now().UnixMilli()},
		glucose:      &bandsdk.RawBloodGlucose{MmolPerL: 5.4, TimestampMs: time.Now().UnixMilli()},
	}
}

// beginOp 标记设备在途操作；已有在途操作时计入违例
func (f *fakeAdapter) beginOp(deviceID string) {
	f.mu.Lock()
	if f.inFlight[deviceID] {
		f.overlaps++
	}
	f.inFlight[deviceID] = true
	delay := f.opDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *fakeAdapter) endOp(deviceID string) {
	f.mu.Lock()
	f.inFlight[deviceID] = false
	f.mu.Unlock()
}

func (f *fakeAdapter) IsBluetoothSupported() bool { return f.btSupported }
func (f *fakeAdapter) IsBluetoothEnabled() bool   { return f.btEnabled }

func (f *fakeAdapter) StartDiscovery(ctx context.Context, cb bandsdk.DiscoveryCallback) error {
	f.mu.Lock()
	devices := append([]bandsdk.DiscoveredDevice(nil), f.discovered...)
	f.mu.Unlock()

	for _, d := range devices {
		cb(d, d.RSSI)
	}
	return nil
}

func (f *fakeAdapter) StopDiscovery() error { return nil }

func (f *fakeAdapter) ConnectDevice(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls[deviceID]++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected[deviceID] = true
	return nil
}

func (f *fakeAdapter) ConfirmPassword(ctx context.Context, deviceID string) error {
	return f.confirmErr
}

func (f *fakeAdapter) DisconnectDevice(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[deviceID] = false
	return nil
}

func (f *fakeAdapter) IsDeviceConnected(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[deviceID]
}

func (f *fakeAdapter) setConnected(deviceID string, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[deviceID] = connected
}

func (f *fakeAdapter) GetPairedDevices() []string { return nil }

func (f *fakeAdapter) GetDeviceInfo(ctx context.Context, deviceID string) (*bandsdk.DeviceInfo, error) {
	return &bandsdk.DeviceInfo{Model: f.model, Manufacturer: "VitalBand", SerialNumber: "SN-0001"}, nil
}

func (f *fakeAdapter) GetBatteryLevel(ctx context.Context, deviceID string) (*int, error) {
	level := 85
	return &level, nil
}

func (f *fakeAdapter) GetFirmwareVersion(ctx context.Context, deviceID string) (*string, error) {
	version := "2.4.1"
	return &version, nil
}

func (f *fakeAdapter) UpdateFirmware(ctx context.Context, deviceID, url string) (bool, error) {
	return false, nil
}

func (f *fakeAdapter) MeasureHeartRate(ctx context.Context, deviceID string) (*bandsdk.RawHeartRate, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.hr, nil
}

func (f *fakeAdapter) MeasureBloodPressure(ctx context.Context, deviceID string) (*bandsdk.RawBloodPressure, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.bp, nil
}

func (f *fakeAdapter) MeasureBloodOxygen(ctx context.Context, deviceID string) (*bandsdk.RawBloodOxygen, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.spo2, nil
}

func (f *fakeAdapter) MeasureBodyTemperature(ctx context.Context, deviceID string) (*bandsdk.RawBodyTemperature, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.temp, nil
}

func (f *fakeAdapter) MeasureStressLevel(ctx context.Context, deviceID string) (*bandsdk.RawStressLevel, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.stress, nil
}

func (f *fakeAdapter) RecordEcg(ctx context.Context, deviceID string, durationSec int) (*bandsdk.RawEcg, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.ecg, nil
}

func (f *fakeAdapter) MeasureBloodGlucose(ctx context.Context, deviceID string) (*bandsdk.RawBloodGlucose, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return f.glucose, nil
}

func (f *fakeAdapter) SyncHeartRate(ctx context.Context, deviceID string) ([]bandsdk.RawHeartRate, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	if err := f.syncErrs[domain.MetricHeartRate]; err != nil {
		return nil, err
	}
	return f.syncHR, nil
}

func (f *fakeAdapter) SyncBloodPressure(ctx context.Context, deviceID string) ([]bandsdk.RawBloodPressure, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricBloodPressure]
}

func (f *fakeAdapter) SyncBloodOxygen(ctx context.Context, deviceID string) ([]bandsdk.RawBloodOxygen, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricBloodOxygen]
}

func (f *fakeAdapter) SyncBodyTemperature(ctx context.Context, deviceID string) ([]bandsdk.RawBodyTemperature, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricBodyTemperature]
}

func (f *fakeAdapter) SyncStressLevel(ctx context.Context, deviceID string) ([]bandsdk.RawStressLevel, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricStressLevel]
}

func (f *fakeAdapter) SyncEcg(ctx context.Context, deviceID string) ([]bandsdk.RawEcg, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricECG]
}

func (f *fakeAdapter) SyncBloodGlucose(ctx context.Context, deviceID string) ([]bandsdk.RawBloodGlucose, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricBloodGlucose]
}

func (f *fakeAdapter) SyncActivity(ctx context.Context, deviceID string) ([]bandsdk.RawActivity, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	if err := f.syncErrs[domain.MetricActivity]; err != nil {
		return nil, err
	}
	return f.syncActivity, nil
}

func (f *fakeAdapter) SyncSleep(ctx context.Context, deviceID string) ([]bandsdk.RawSleep, error) {
	f.beginOp(deviceID)
	defer f.endOp(deviceID)
	return nil, f.syncErrs[domain.MetricSleep]
}

func (f *fakeAdapter) SupportsMetric(ctx context.Context, deviceID string, metric string) (bool, error) {
	return f.metricProbes[metric], nil
}

func (f *fakeAdapter) GetSamplingRate(ctx context.Context, deviceID string, metric string) (int, error) {
	return f.samplingRate[metric], nil
}

func (f *fakeAdapter) GetAccuracyRating(ctx context.Context, deviceID string, metric string) (float64, error) {
	return 0.95, nil
}

func (f *fakeAdapter) ShouldClearDeviceDataAfterSync(deviceID string) bool { return f.clearAfterSync }

func (f *fakeAdapter) ClearDeviceData(ctx context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

// fakeCapRepo 内存能力档案仓库
type fakeCapRepo struct {
	mu      sync.Mutex
	caps    map[string]*domain.DeviceCapability
	saveErr error
	saves   int
}

func newFakeCapRepo() *fakeCapRepo {
	return &fakeCapRepo{caps: make(map[string]*domain.DeviceCapability)}
}

func (r *fakeCapRepo) GetCapability(ctx context.Context, deviceID string) (*domain.DeviceCapability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps[deviceID], nil
}

func (r *fakeCapRepo) SaveCapability(ctx context.Context, capability *domain.DeviceCapability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.caps[capability.DeviceID] = capability
	return nil
}

func (r *fakeCapRepo) UpdateBatteryLevel(ctx context.Context, deviceID string, level int) error {
	return nil
}

func (r *fakeCapRepo) UpdateFirmwareVersion(ctx context.Context, deviceID, version string) error {
	return nil
}

var _ repository.CapabilitiesRepository = (*fakeCapRepo)(nil)

// fakeVitalsRepo 内存体征仓库：按指标计数
type fakeVitalsRepo struct {
	mu     sync.Mutex
	counts map[domain.Metric]int
}

func newFakeVitalsRepo() *fakeVitalsRepo {
	return &fakeVitalsRepo{counts: make(map[domain.Metric]int)}
}

func (r *fakeVitalsRepo) add(m domain.Metric, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[m] += n
}

func (r *fakeVitalsRepo) count(m domain.Metric) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[m]
}

func (r *fakeVitalsRepo) SaveHeartRate(ctx context.Context, rec *domain.HeartRateRecord) error {
	r.add(domain.MetricHeartRate, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveHeartRateBatch(ctx context.Context, recs []*domain.HeartRateRecord) (int, error) {
	r.add(domain.MetricHeartRate, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) GetHeartRateRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.HeartRateRecord, error) {
	return nil, nil
}

func (r *fakeVitalsRepo) GetHeartRateStats(ctx context.Context, userID string, start, end time.Time) (*repository.HeartRateStats, error) {
	return nil, nil
}

func (r *fakeVitalsRepo) SaveBloodPressure(ctx context.Context, rec *domain.BloodPressureRecord) error {
	r.add(domain.MetricBloodPressure, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveBloodPressureBatch(ctx context.Context, recs []*domain.BloodPressureRecord) (int, error) {
	r.add(domain.MetricBloodPressure, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) GetBloodPressureRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodPressureRecord, error) {
	return nil, nil
}

func (r *fakeVitalsRepo) SaveBloodOxygen(ctx context.Context, rec *domain.BloodOxygenRecord) error {
	r.add(domain.MetricBloodOxygen, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveBloodOxygenBatch(ctx context.Context, recs []*domain.BloodOxygenRecord) (int, error) {
	r.add(domain.MetricBloodOxygen, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) GetBloodOxygenRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodOxygenRecord, error) {
	return nil, nil
}

func (r *fakeVitalsRepo) SaveBodyTemperature(ctx context.Context, rec *domain.BodyTemperatureRecord) error {
	r.add(domain.MetricBodyTemperature, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveBodyTemperatureBatch(ctx context.Context, recs []*domain.BodyTemperatureRecord) (int, error) {
	r.add(domain.MetricBodyTemperature, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) SaveStressLevel(ctx context.Context, rec *domain.StressLevelRecord) error {
	r.add(domain.MetricStressLevel, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveStressLevelBatch(ctx context.Context, recs []*domain.StressLevelRecord) (int, error) {
	r.add(domain.MetricStressLevel, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) SaveEcg(ctx context.Context, rec *domain.EcgRecord) error {
	r.add(domain.MetricECG, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveEcgBatch(ctx context.Context, recs []*domain.EcgRecord) (int, error) {
	r.add(domain.MetricECG, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) SaveBloodGlucose(ctx context.Context, rec *domain.BloodGlucoseRecord) error {
	r.add(domain.MetricBloodGlucose, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveBloodGlucoseBatch(ctx context.Context, recs []*domain.BloodGlucoseRecord) (int, error) {
	r.add(domain.MetricBloodGlucose, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) SaveActivity(ctx context.Context, rec *domain.ActivityRecord) error {
	r.add(domain.MetricActivity, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveActivityBatch(ctx context.Context, recs []*domain.ActivityRecord) (int, error) {
	r.add(domain.MetricActivity, len(recs))
	return len(recs), nil
}

func (r *fakeVitalsRepo) SaveSleep(ctx context.Context, rec *domain.SleepRecord) error {
	r.add(domain.MetricSleep, 1)
	return nil
}

func (r *fakeVitalsRepo) SaveSleepBatch(ctx context.Context, recs []*domain.SleepRecord) (int, error) {
	r.add(domain.MetricSleep, len(recs))
	return len(recs), nil
}

var _ repository.VitalsRepository = (*fakeVitalsRepo)(nil)

func testCollectionConfig() *config.CollectionConfig {
	return &config.CollectionConfig{
		HeartRateInterval:     time.Hour,
		BloodPressureInterval: time.Hour,
		BloodOxygenInterval:   time.Hour,
		TemperatureInterval:   time.Hour,
		StressInterval:        time.Hour,
	}
}

// newTestManager 构建已启动的会话管理器及其依赖
func newTestManager(t *testing.T, adapter *fakeAdapter) (*SessionManager, *fakeCapRepo, *fakeVitalsRepo) {
	t.Helper()

	capRepo := newFakeCapRepo()
	vitalsRepo := newFakeVitalsRepo()
	m := mapper.NewMapper("user-1", "VITALBAND")

	sm := NewSessionManager(adapter, m, capRepo, vitalsRepo, testCollectionConfig(), zap.NewNop())
	sm.livenessTick = 20 * time.Millisecond

	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("failed to start session manager: %v", err)
	}
	t.Cleanup(sm.Stop)

	return sm, capRepo, vitalsRepo
}

// waitDeviceEvent 等待指定类型的设备事件
func waitDeviceEvent(t *testing.T, ch <-chan domain.DeviceEvent, eventType domain.DeviceEventType, timeout time.Duration) domain.DeviceEvent {
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
			t.Fatalf("timed out waiting for device event %s", eventType)
		}
	}
}

// waitDataEvent 等待指定指标的数据事件
func waitDataEvent(t *testing.T, ch <-chan domain.DataEvent, eventType domain.DataEventType, metric domain.Metric, timeout time.Duration) domain.DataEvent {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("data channel closed while waiting for %s/%s", eventType, metric)
			}
			if ev.Type == eventType && ev.Metric == metric {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for data event %s/%s", eventType, metric)
		}
	}
}
