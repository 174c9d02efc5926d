package domain

import "time"

// RecordMeta 各指标记录的公共字段
// 记录为不可变值对象：Mapper 生成后不再修改，仅由仓储显式删除
type RecordMeta struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Timestamp  time.Time          `json:"timestamp"`
	DeviceID   string             `json:"device_id"`
	DeviceType string             `json:"device_type"`
	Context    MeasurementContext `json:"context"`
	Validation ValidationStatus   `json:"validation"`
}

// HeartRateRecord 心率记录
type HeartRateRecord struct {
	RecordMeta
	BPM int `json:"bpm"`
}

// BloodPressureRecord 血压记录
type BloodPressureRecord struct {
	RecordMeta
	Systolic  int  `json:"systolic"`
	Diastolic int  `json:"diastolic"`
	Pulse     *int `json:"pulse"` // nullable, 部分设备附带脉率
}

// BloodOxygenRecord 血氧记录
type BloodOxygenRecord struct {
	RecordMeta
	SpO2 float64 `json:"spo2"` // 百分比
}

// BodyTemperatureRecord 体温记录
type BodyTemperatureRecord struct {
	RecordMeta
	Celsius float64 `json:"celsius"`
}

// StressLevelRecord 压力记录
type StressLevelRecord struct {
	RecordMeta
	Level int `json:"level"` // 0-100
}

// EcgRecord 心电记录
type EcgRecord struct {
	RecordMeta
	Waveform       []float64 `json:"waveform"`
	SamplingRateHz int       `json:"sampling_rate_hz"`
	DurationSec    int       `json:"duration_sec"`
	AverageBPM     *int      `json:"average_bpm"` // nullable
}

// BloodGlucoseRecord 血糖记录
type BloodGlucoseRecord struct {
	RecordMeta
	MmolPerL float64 `json:"mmol_per_l"`
}

// ActivityRecord 活动记录
type ActivityRecord struct {
	RecordMeta
	ActivityType ActivityType      `json:"activity_type"`
	Steps        int               `json:"steps"`
	DurationSec  int               `json:"duration_sec"`
	DistanceM    float64           `json:"distance_m"`
	Calories     float64           `json:"calories"`
	AverageBPM   *int              `json:"average_bpm"` // nullable
	Intensity    ActivityIntensity `json:"intensity"`
}

// SleepStage 单段睡眠阶段
type SleepStage struct {
	Stage       string `json:"stage"` // "AWAKE"/"LIGHT"/"DEEP"/"REM"
	DurationSec int    `json:"duration_sec"`
}

// SleepRecord 睡眠记录
type SleepRecord struct {
	RecordMeta
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	TotalSec    int          `json:"total_sec"`
	AwakeSec    int          `json:"awake_sec"`
	Stages      []SleepStage `json:"stages"`
	Efficiency  float64      `json:"efficiency"` // (total-awake)/total*100
}
