package domain

import "time"

// DisconnectReason 断连原因
type DisconnectReason string

const (
	DisconnectUserRequested  DisconnectReason = "USER_REQUESTED"
	DisconnectConnectionLost DisconnectReason = "CONNECTION_LOST"
)

// DeviceEventType 设备事件类型
type DeviceEventType string

const (
	EventDeviceDiscovered      DeviceEventType = "DEVICE_DISCOVERED"
	EventDeviceConnected       DeviceEventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected    DeviceEventType = "DEVICE_DISCONNECTED"
	EventConnectionFailed      DeviceEventType = "CONNECTION_FAILED"
	EventSyncProgress          DeviceEventType = "SYNC_PROGRESS"
	EventReconnecting          DeviceEventType = "RECONNECTING"
	EventReconnectionExhausted DeviceEventType = "RECONNECTION_EXHAUSTED"
)

// DeviceEvent 设备事件（设备生命周期广播流）
// 单设备内事件有序；跨设备交错顺序不作保证
type DeviceEvent struct {
	Type      DeviceEventType  `json:"type"`
	DeviceID  string           `json:"device_id"`
	Timestamp time.Time        `json:"timestamp"`
	RSSI      int              `json:"rssi,omitempty"`      // DEVICE_DISCOVERED
	Reason    DisconnectReason `json:"reason,omitempty"`    // DEVICE_DISCONNECTED
	Message   string           `json:"message,omitempty"`   // CONNECTION_FAILED 等的可读原因
	Progress  int              `json:"progress,omitempty"`  // SYNC_PROGRESS: 0-100
	Attempt   int              `json:"attempt,omitempty"`   // RECONNECTING: 当前尝试次数
}

// DataEventType 数据事件类型
type DataEventType string

const (
	EventDataMeasured DataEventType = "DATA_MEASURED"
	EventDataSynced   DataEventType = "DATA_SYNCED"
	EventDataError    DataEventType = "DATA_ERROR"
)

// DataEvent 数据事件（采集/同步产出广播流）
// Record 持有对应指标的领域记录（*HeartRateRecord 等）
type DataEvent struct {
	Type      DataEventType `json:"type"`
	DeviceID  string        `json:"device_id"`
	Metric    Metric        `json:"metric"`
	Timestamp time.Time     `json:"timestamp"`
	Record    interface{}   `json:"record,omitempty"`
	Count     int           `json:"count,omitempty"`   // DATA_SYNCED: 记录数
	Message   string        `json:"message,omitempty"` // DATA_ERROR
}
