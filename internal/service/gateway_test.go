package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"vitalband/internal/domain"
	"vitalband/internal/export"
	"vitalband/internal/platform"
	"vitalband/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEventSource 脚本化设备事件来源
type fakeEventSource struct {
	dataCh   chan domain.DataEvent
	deviceCh chan domain.DeviceEvent
	caps     map[string]*domain.DeviceCapability
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{
		dataCh:   make(chan domain.DataEvent, 16),
		deviceCh: make(chan domain.DeviceEvent, 16),
		caps:     make(map[string]*domain.DeviceCapability),
	}
}

func (f *fakeEventSource) DataEvents() (<-chan domain.DataEvent, func()) {
	return f.dataCh, func() {}
}

func (f *fakeEventSource) DeviceEvents() (<-chan domain.DeviceEvent, func()) {
	return f.deviceCh, func() {}
}

func (f *fakeEventSource) GetCapability(deviceID string) (*domain.DeviceCapability, error) {
	capability, ok := f.caps[deviceID]
	if !ok {
		return nil, &domain.DeviceNotFoundError{DeviceID: deviceID}
	}
	return capability, nil
}

// fakeUplink 记录上报的平台替身
type fakeUplink struct {
	mu            sync.Mutex
	readings      []platform.VitalReadingDTO
	registrations []platform.DeviceRegistrationDTO
}

func (f *fakeUplink) SubmitVitalReading(ctx context.Context, reading platform.VitalReadingDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, reading)
	return nil
}

func (f *fakeUplink) RegisterDevice(ctx context.Context, registration platform.DeviceRegistrationDTO) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations = append(f.registrations, registration)
	return nil
}

// fakeVitalsSource 报表导出的查询替身
type fakeVitalsSource struct {
	heartRates []*domain.HeartRateRecord
}

func (f *fakeVitalsSource) GetHeartRateRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.HeartRateRecord, error) {
	return f.heartRates, nil
}

func (f *fakeVitalsSource) GetHeartRateStats(ctx context.Context, userID string, start, end time.Time) (*repository.HeartRateStats, error) {
	return &repository.HeartRateStats{}, nil
}

func (f *fakeVitalsSource) GetBloodPressureRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodPressureRecord, error) {
	return nil, nil
}

func (f *fakeVitalsSource) GetBloodOxygenRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodOxygenRecord, error) {
	return nil, nil
}

func setupGateway(t *testing.T) (*GatewayService, *fakeEventSource, *fakeUplink, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := newFakeEventSource()
	uplink := &fakeUplink{}
	cache := repository.NewLatestReadingCache(client, time.Minute, zap.NewNop())

	exporter := export.NewVitalsExporter(&fakeVitalsSource{}, zap.NewNop())
	gw := NewGatewayService(source, uplink, cache, client, exporter, "vitals:stream", "client-1", zap.NewNop())
	require.NoError(t, gw.Start(context.Background()))
	t.Cleanup(gw.Stop)

	return gw, source, uplink, client
}

func heartRateRecord(deviceID string, bpm int) *domain.HeartRateRecord {
	return &domain.HeartRateRecord{
		RecordMeta: domain.RecordMeta{
			ID:         "rec-1",
			UserID:     "user-1",
			Timestamp:  time.Now(),
			DeviceID:   deviceID,
			DeviceType: "VITALBAND",
			Validation: domain.ValidationValid,
		},
		BPM: bpm,
	}
}

func TestGateway_MeasuredEventFansOut(t *testing.T) {
	_, source, uplink, client := setupGateway(t)

	rec := heartRateRecord("dev-1", 72)
	source.dataCh <- domain.DataEvent{
		Type:      domain.EventDataMeasured,
		DeviceID:  "dev-1",
		Metric:    domain.MetricHeartRate,
		Timestamp: time.Now(),
		Record:    rec,
	}

	// 平台上报
	assert.Eventually(t, func() bool {
		uplink.mu.Lock()
		defer uplink.mu.Unlock()
		return len(uplink.readings) == 1
	}, time.Second, 10*time.Millisecond)

	uplink.mu.Lock()
	reading := uplink.readings[0]
	uplink.mu.Unlock()
	assert.Equal(t, "rec-1", reading.ReadingID)
	assert.Equal(t, "client-1", reading.ClientID)
	assert.Equal(t, "HEART_RATE", reading.Metric)
	assert.Equal(t, "VALID", reading.Validation)
	assert.EqualValues(t, 72, reading.Payload["bpm"])

	// 最新读数缓存
	cache := repository.NewLatestReadingCache(client, time.Minute, zap.NewNop())
	var cached domain.HeartRateRecord
	require.NoError(t, cache.GetLatest(context.Background(), "dev-1", domain.MetricHeartRate, &cached))
	assert.Equal(t, 72, cached.BPM)

	// Redis Stream 发布
	entries, err := client.XRange(context.Background(), "vitals:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values["data"], `"HEART_RATE"`)
}

func TestGateway_ConnectedDeviceRegistered(t *testing.T) {
	_, source, uplink, _ := setupGateway(t)

	battery := 85
	source.caps["dev-1"] = &domain.DeviceCapability{
		DeviceID:     "dev-1",
		DisplayName:  "VitalBand Pro",
		Model:        "VB-PRO-2",
		BatteryLevel: &battery,
	}
	source.deviceCh <- domain.DeviceEvent{
		Type:      domain.EventDeviceConnected,
		DeviceID:  "dev-1",
		Timestamp: time.Now(),
	}

	assert.Eventually(t, func() bool {
		uplink.mu.Lock()
		defer uplink.mu.Unlock()
		return len(uplink.registrations) == 1
	}, time.Second, 10*time.Millisecond)

	uplink.mu.Lock()
	registration := uplink.registrations[0]
	uplink.mu.Unlock()
	assert.Equal(t, "client-1", registration.ClientID)
	assert.Equal(t, "VB-PRO-2", registration.Device.Model)
	require.NotNil(t, registration.Device.BatteryLevel)
	assert.Equal(t, 85, *registration.Device.BatteryLevel)
}

func TestGateway_SyncSummaryPublishedWithoutUplink(t *testing.T) {
	_, source, uplink, client := setupGateway(t)

	source.dataCh <- domain.DataEvent{
		Type:      domain.EventDataSynced,
		DeviceID:  "dev-1",
		Metric:    domain.MetricHeartRate,
		Timestamp: time.Now(),
		Count:     42,
	}

	assert.Eventually(t, func() bool {
		entries, err := client.XRange(context.Background(), "vitals:stream", "-", "+").Result()
		return err == nil && len(entries) == 1
	}, time.Second, 10*time.Millisecond)

	uplink.mu.Lock()
	defer uplink.mu.Unlock()
	assert.Empty(t, uplink.readings)
}

func TestGateway_ExportVitalsReport(t *testing.T) {
	gw, _, _, _ := setupGateway(t)

	data, err := gw.ExportVitalsReport(context.Background(), "user-1",
		time.Now().Add(-24*time.Hour), time.Now())

	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGateway_OtherDeviceEventsIgnored(t *testing.T) {
	_, source, uplink, _ := setupGateway(t)

	source.deviceCh <- domain.DeviceEvent{
		Type:      domain.EventDeviceDisconnected,
		DeviceID:  "dev-1",
		Timestamp: time.Now(),
		Reason:    domain.DisconnectUserRequested,
	}

	time.Sleep(50 * time.Millisecond)
	uplink.mu.Lock()
	defer uplink.mu.Unlock()
	assert.Empty(t, uplink.registrations)
}
