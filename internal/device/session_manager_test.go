package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vitalband/internal/bandsdk"
	"vitalband/internal/domain"
	"vitalband/internal/mapper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartDeviceDiscovery_BeforeStart(t *testing.T) {
	sm := NewSessionManager(newFakeAdapter(), mapper.NewMapper("user-1", "VITALBAND"),
		newFakeCapRepo(), newFakeVitalsRepo(), testCollectionConfig(), zap.NewNop())

	err := sm.StartDeviceDiscovery()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestCollectionInterval_FromSamplingRate(t *testing.T) {
	sm, _, _ := newTestManager(t, newFakeAdapter())
	sess := &deviceSession{
		deviceID: "dev-1",
		capability: &domain.DeviceCapability{
			Metrics: map[domain.Metric]domain.MetricSpec{
				domain.MetricHeartRate:       {SamplingRateHz: 60},
				domain.MetricBloodOxygen:     {SamplingRateHz: 2000},
				domain.MetricBodyTemperature: {},
			},
		},
	}

	assert.Equal(t, time.Second/60, sm.collectionInterval(sess, domain.MetricHeartRate))
	// 超高采样率不会退化为零间隔空转
	assert.Equal(t, minCollectionInterval, sm.collectionInterval(sess, domain.MetricBloodOxygen))
	// 未上报采样率时回落到指标缺省间隔
	assert.Equal(t, time.Hour, sm.collectionInterval(sess, domain.MetricBodyTemperature))
}

func TestStartDeviceDiscovery_BluetoothUnavailable(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.btSupported = false
	sm, _, _ := newTestManager(t, adapter)

	err := sm.StartDeviceDiscovery()
	assert.ErrorIs(t, err, domain.ErrBluetoothNotSupported)

	adapter.btSupported = true
	adapter.btEnabled = false
	err = sm.StartDeviceDiscovery()
	assert.ErrorIs(t, err, domain.ErrBluetoothDisabled)
}

func TestStartDeviceDiscovery_PublishesDiscoveredDevices(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.discovered = []bandsdk.DiscoveredDevice{
		{ID: "AA:BB:CC:DD:EE:01", Name: "VitalBand Pro", RSSI: -52},
		{ID: "AA:BB:CC:DD:EE:02", Name: "VitalBand Lite", RSSI: -78},
	}
	sm, _, _ := newTestManager(t, adapter)

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	require.NoError(t, sm.StartDeviceDiscovery())

	first := waitDeviceEvent(t, events, domain.EventDeviceDiscovered, time.Second)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", first.DeviceID)
	assert.Equal(t, -52, first.RSSI)
	assert.Equal(t, "VitalBand Pro", first.Message)

	second := waitDeviceEvent(t, events, domain.EventDeviceDiscovered, time.Second)
	assert.Equal(t, "AA:BB:CC:DD:EE:02", second.DeviceID)

	// 重复启动与重复停止均幂等
	assert.NoError(t, sm.StartDeviceDiscovery())
	assert.NoError(t, sm.StopDeviceDiscovery())
	assert.NoError(t, sm.StopDeviceDiscovery())
}

func TestConnectToDevice_FlagshipSkipsProbes(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.model = "VB-PRO-2"
	sm, capRepo, _ := newTestManager(t, adapter)

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	ev := waitDeviceEvent(t, events, domain.EventDeviceConnected, time.Second)
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.Contains(t, sm.ConnectedDevices(), "dev-1")

	capability, err := sm.GetCapability("dev-1")
	require.NoError(t, err)
	assert.Len(t, capability.Metrics, len(domain.AllMetrics))
	require.NotNil(t, capability.BatteryLevel)
	assert.Equal(t, 85, *capability.BatteryLevel)

	// 档案已持久化
	saved, err := capRepo.GetCapability(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "VB-PRO-2", saved.Model)
}

func TestConnectToDevice_UnknownModelProbesEachMetric(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.model = "VB-LITE"
	adapter.metricProbes["HEART_RATE"] = true
	adapter.metricProbes["BLOOD_OXYGEN"] = true
	adapter.samplingRate["HEART_RATE"] = 1
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-2"))

	capability, err := sm.GetCapability("dev-2")
	require.NoError(t, err)
	assert.Len(t, capability.Metrics, 2)
	assert.True(t, capability.Supports(domain.MetricHeartRate))
	assert.True(t, capability.Supports(domain.MetricBloodOxygen))
	assert.False(t, capability.Supports(domain.MetricECG))
	assert.Equal(t, 1, capability.Metrics[domain.MetricHeartRate].SamplingRateHz)
}

func TestConnectToDevice_Idempotent(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))
	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	adapter.mu.Lock()
	calls := adapter.connectCalls["dev-1"]
	adapter.mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Len(t, sm.ConnectedDevices(), 1)
}

func TestConnectToDevice_PairingFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.confirmErr = errors.New("password rejected")
	sm, _, _ := newTestManager(t, adapter)

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	err := sm.ConnectToDevice(context.Background(), "dev-1")
	var pairingErr *domain.PairingError
	require.ErrorAs(t, err, &pairingErr)
	assert.Equal(t, "dev-1", pairingErr.DeviceID)

	ev := waitDeviceEvent(t, events, domain.EventConnectionFailed, time.Second)
	assert.Contains(t, ev.Message, "password rejected")

	// 配对失败后会话未注册且底层连接已释放
	assert.Empty(t, sm.ConnectedDevices())
	assert.False(t, adapter.IsDeviceConnected("dev-1"))
}

func TestConnectToDevice_ReusesSavedCapability(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.model = "VB-LITE"
	sm, capRepo, _ := newTestManager(t, adapter)

	saved := &domain.DeviceCapability{
		DeviceID: "dev-3",
		Model:    "VB-LITE",
		Metrics: map[domain.Metric]domain.MetricSpec{
			domain.MetricHeartRate: {SamplingRateHz: 1},
		},
		DetectedAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, capRepo.SaveCapability(context.Background(), saved))

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-3"))

	// 未重新探测：档案沿用，仅刷新电量/固件
	capability, err := sm.GetCapability("dev-3")
	require.NoError(t, err)
	assert.Len(t, capability.Metrics, 1)
	require.NotNil(t, capability.BatteryLevel)
	require.NotNil(t, capability.FirmwareVersion)
	assert.Equal(t, "2.4.1", *capability.FirmwareVersion)
}

func TestDisconnectFromDevice(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	require.NoError(t, sm.DisconnectFromDevice("dev-1"))

	ev := waitDeviceEvent(t, events, domain.EventDeviceDisconnected, time.Second)
	assert.Equal(t, domain.DisconnectUserRequested, ev.Reason)
	assert.Empty(t, sm.ConnectedDevices())

	// 未连接设备断开视为 no-op
	assert.NoError(t, sm.DisconnectFromDevice("dev-unknown"))
}

func TestGetCapability_NotConnected(t *testing.T) {
	sm, _, _ := newTestManager(t, newFakeAdapter())

	_, err := sm.GetCapability("dev-ghost")
	var notFound *domain.DeviceNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStartDataCollection_AllOrNothing(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.model = "VB-LITE"
	adapter.metricProbes["HEART_RATE"] = true
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	err := sm.StartDataCollection("dev-1", []domain.Metric{domain.MetricHeartRate, domain.MetricBloodPressure})
	var notSupported *domain.DeviceNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, []domain.Metric{domain.MetricBloodPressure}, notSupported.Metrics)

	// 任一指标不支持则一个循环都不启动
	assert.Empty(t, sm.ActiveCollectionJobs("dev-1"))
}

func TestStartStopDataCollection(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, vitalsRepo := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	dataEvents, unsubscribe := sm.DataEvents()
	defer unsubscribe()

	metrics := []domain.Metric{domain.MetricHeartRate, domain.MetricBloodOxygen}
	require.NoError(t, sm.StartDataCollection("dev-1", metrics))

	// 每个循环立即执行首次测量
	hrEv := waitDataEvent(t, dataEvents, domain.EventDataMeasured, domain.MetricHeartRate, time.Second)
	rec, ok := hrEv.Record.(*domain.HeartRateRecord)
	require.True(t, ok)
	assert.Equal(t, 72, rec.BPM)
	waitDataEvent(t, dataEvents, domain.EventDataMeasured, domain.MetricBloodOxygen, time.Second)

	assert.ElementsMatch(t, metrics, sm.ActiveCollectionJobs("dev-1"))
	assert.GreaterOrEqual(t, vitalsRepo.count(domain.MetricHeartRate), 1)

	// 重复启动同一指标不产生额外循环
	require.NoError(t, sm.StartDataCollection("dev-1", []domain.Metric{domain.MetricHeartRate}))
	assert.ElementsMatch(t, metrics, sm.ActiveCollectionJobs("dev-1"))

	// 只停心率，血氧循环保留
	require.NoError(t, sm.StopDataCollection("dev-1", []domain.Metric{domain.MetricHeartRate}))
	assert.Equal(t, []domain.Metric{domain.MetricBloodOxygen}, sm.ActiveCollectionJobs("dev-1"))

	require.NoError(t, sm.StopDataCollection("dev-1", []domain.Metric{domain.MetricBloodOxygen}))
	assert.Empty(t, sm.ActiveCollectionJobs("dev-1"))
}

func TestMeasureHeartRate_SingleShot(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, vitalsRepo := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	rec, err := sm.MeasureHeartRate(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 72, rec.BPM)
	assert.Equal(t, domain.ValidationValid, rec.Validation)
	assert.Equal(t, 1, vitalsRepo.count(domain.MetricHeartRate))
}

func TestMeasure_UnsupportedMetric(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.model = "VB-LITE"
	adapter.metricProbes["HEART_RATE"] = true
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	_, err := sm.MeasureBloodGlucose(context.Background(), "dev-1")
	var notSupported *domain.DeviceNotSupportedError
	require.ErrorAs(t, err, &notSupported)
	assert.Equal(t, []domain.Metric{domain.MetricBloodGlucose}, notSupported.Metrics)
}

func TestAdapterOps_SerializedPerDevice(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.opDelay = 10 * time.Millisecond
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sm.MeasureHeartRate(context.Background(), "dev-1")
		}()
	}
	wg.Wait()

	adapter.mu.Lock()
	overlaps := adapter.overlaps
	adapter.mu.Unlock()
	assert.Zero(t, overlaps, "adapter saw concurrent in-flight operations on one device")
}

func TestLivenessLoop_DetectsConnectionLoss(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))
	require.NoError(t, sm.StartDataCollection("dev-1", []domain.Metric{domain.MetricHeartRate}))

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	adapter.setConnected("dev-1", false)

	ev := waitDeviceEvent(t, events, domain.EventDeviceDisconnected, time.Second)
	assert.Equal(t, domain.DisconnectConnectionLost, ev.Reason)

	// 断连后立刻安排重连并广播
	rc := waitDeviceEvent(t, events, domain.EventReconnecting, time.Second)
	assert.Equal(t, 1, rc.Attempt)

	// 采集循环随断连停止
	assert.Empty(t, sm.ActiveCollectionJobs("dev-1"))
	assert.Empty(t, sm.ConnectedDevices())
}

func TestScheduleReconnect_Exhausted(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, _ := newTestManager(t, adapter)

	events, unsubscribe := sm.DeviceEvents()
	defer unsubscribe()

	sm.mu.Lock()
	sm.reconnects["dev-1"] = &reconnectState{attempts: maxReconnectAttempts}
	sm.mu.Unlock()

	sm.scheduleReconnect("dev-1")

	waitDeviceEvent(t, events, domain.EventReconnectionExhausted, time.Second)

	sm.mu.Lock()
	_, pending := sm.reconnects["dev-1"]
	sm.mu.Unlock()
	assert.False(t, pending, "exhausted device should not keep reconnect state")
}

func TestReconnectDelay_ExponentialWithCap(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		base := reconnectBaseDelay << uint(attempt)
		if base > reconnectMaxDelay || base <= 0 {
			base = reconnectMaxDelay
		}
		for i := 0; i < 20; i++ {
			delay := reconnectDelay(attempt)
			assert.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, base+time.Duration(float64(base)*reconnectJitterRatio), "attempt %d", attempt)
		}
	}
}

func TestStop_DisconnectsAllDevices(t *testing.T) {
	adapter := newFakeAdapter()
	sm, _, _ := newTestManager(t, adapter)

	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-1"))
	require.NoError(t, sm.ConnectToDevice(context.Background(), "dev-2"))
	require.NoError(t, sm.StartDataCollection("dev-1", []domain.Metric{domain.MetricHeartRate}))

	sm.Stop()

	assert.False(t, adapter.IsDeviceConnected("dev-1"))
	assert.False(t, adapter.IsDeviceConnected("dev-2"))
	assert.Empty(t, sm.ConnectedDevices())
}
