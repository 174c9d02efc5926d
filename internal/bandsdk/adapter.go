package bandsdk

import "context"

// DiscoveredDevice 扫描发现的设备
type DiscoveredDevice struct {
	ID   string // 稳定地址，如 "AA:BB:CC:DD:EE:FF"
	Name string
	RSSI int
}

// DeviceInfo 设备基本信息
type DeviceInfo struct {
	Model        string
	Manufacturer string
	SerialNumber string
}

// DiscoveryCallback 发现回调（每发现一个设备触发一次）
type DiscoveryCallback func(device DiscoveredDevice, rssi int)

// Adapter 厂家设备SDK适配接口
// 封装闭源 BLE 协议实现；调用序列固定：连接 → 密码确认 → 能力查询 → 数据操作
// 硬约束：同一设备同一时刻只允许一个在途操作，由调用方（会话管理器）串行化
type Adapter interface {
	// 蓝牙栈状态
	IsBluetoothSupported() bool
	IsBluetoothEnabled() bool

	// 扫描
	StartDiscovery(ctx context.Context, cb DiscoveryCallback) error
	StopDiscovery() error

	// 连接生命周期
	ConnectDevice(ctx context.Context, deviceID string) error
	ConfirmPassword(ctx context.Context, deviceID string) error
	DisconnectDevice(deviceID string) error
	IsDeviceConnected(deviceID string) bool
	GetPairedDevices() []string

	// 设备信息
	GetDeviceInfo(ctx context.Context, deviceID string) (*DeviceInfo, error)
	GetBatteryLevel(ctx context.Context, deviceID string) (*int, error)
	GetFirmwareVersion(ctx context.Context, deviceID string) (*string, error)
	UpdateFirmware(ctx context.Context, deviceID, url string) (bool, error)

	// 单次测量（返回 nil 表示设备未产出数据）
	MeasureHeartRate(ctx context.Context, deviceID string) (*RawHeartRate, error)
	MeasureBloodPressure(ctx context.Context, deviceID string) (*RawBloodPressure, error)
	MeasureBloodOxygen(ctx context.Context, deviceID string) (*RawBloodOxygen, error)
	MeasureBodyTemperature(ctx context.Context, deviceID string) (*RawBodyTemperature, error)
	MeasureStressLevel(ctx context.Context, deviceID string) (*RawStressLevel, error)
	RecordEcg(ctx context.Context, deviceID string, durationSec int) (*RawEcg, error)
	MeasureBloodGlucose(ctx context.Context, deviceID string) (*RawBloodGlucose, error)

	// 批量同步（拉取设备缓存的历史样本）
	SyncHeartRate(ctx context.Context, deviceID string) ([]RawHeartRate, error)
	SyncBloodPressure(ctx context.Context, deviceID string) ([]RawBloodPressure, error)
	SyncBloodOxygen(ctx context.Context, deviceID string) ([]RawBloodOxygen, error)
	SyncBodyTemperature(ctx context.Context, deviceID string) ([]RawBodyTemperature, error)
	SyncStressLevel(ctx context.Context, deviceID string) ([]RawStressLevel, error)
	SyncEcg(ctx context.Context, deviceID string) ([]RawEcg, error)
	SyncBloodGlucose(ctx context.Context, deviceID string) ([]RawBloodGlucose, error)
	SyncActivity(ctx context.Context, deviceID string) ([]RawActivity, error)
	SyncSleep(ctx context.Context, deviceID string) ([]RawSleep, error)

	// 能力探测
	SupportsMetric(ctx context.Context, deviceID string, metric string) (bool, error)
	GetSamplingRate(ctx context.Context, deviceID string, metric string) (int, error)
	GetAccuracyRating(ctx context.Context, deviceID string, metric string) (float64, error)

	// 设备端缓存清理
	ShouldClearDeviceDataAfterSync(deviceID string) bool
	ClearDeviceData(ctx context.Context, deviceID string) error
}
