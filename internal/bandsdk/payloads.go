package bandsdk

// 厂家SDK的原始载荷（毫秒时间戳、未校验的原始数值）
// 由 mapper 包转换为领域记录

// RawHeartRate 原始心率
type RawHeartRate struct {
	BPM         int   `json:"bpm"`
	TimestampMs int64 `json:"timestamp_ms"`
}

// RawBloodPressure 原始血压
type RawBloodPressure struct {
	Systolic    int   `json:"systolic"`
	Diastolic   int   `json:"diastolic"`
	Pulse       int   `json:"pulse"` // 0 表示设备未上报
	TimestampMs int64 `json:"timestamp_ms"`
}

// RawBloodOxygen 原始血氧
type RawBloodOxygen struct {
	SpO2        float64 `json:"spo2"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// RawBodyTemperature 原始体温
type RawBodyTemperature struct {
	Celsius     float64 `json:"celsius"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// RawStressLevel 原始压力值
type RawStressLevel struct {
	Level       int   `json:"level"`
	TimestampMs int64 `json:"timestamp_ms"`
}

// RawEcg 原始心电
type RawEcg struct {
	Waveform       []float64 `json:"waveform"`
	SamplingRateHz int       `json:"sampling_rate_hz"`
	DurationSec    int       `json:"duration_sec"`
	AverageBPM     int       `json:"average_bpm"` // 0 表示设备未上报
	TimestampMs    int64     `json:"timestamp_ms"`
}

// RawBloodGlucose 原始血糖（mmol/L）
type RawBloodGlucose struct {
	MmolPerL    float64 `json:"mmol_per_l"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// RawActivity 原始活动数据
type RawActivity struct {
	ActivityType string  `json:"activity_type"` // "WALKING"/"RUNNING"/...
	Steps        int     `json:"steps"`
	DurationSec  int     `json:"duration_sec"`
	DistanceM    float64 `json:"distance_m"`
	Calories     float64 `json:"calories"`    // 0 表示设备未上报，需推导
	AverageBPM   int     `json:"average_bpm"` // 0 表示设备未上报
	TimestampMs  int64   `json:"timestamp_ms"`
}

// RawSleepStage 原始睡眠阶段
type RawSleepStage struct {
	Stage       string `json:"stage"` // "AWAKE"/"LIGHT"/"DEEP"/"REM"
	DurationSec int    `json:"duration_sec"`
}

// RawSleep 原始睡眠数据
type RawSleep struct {
	StartMs    int64           `json:"start_ms"`
	EndMs      int64           `json:"end_ms"`
	TotalSec   int             `json:"total_sec"`
	AwakeSec   int             `json:"awake_sec"`
	Stages     []RawSleepStage `json:"stages"`
	Efficiency float64         `json:"efficiency"` // 0 表示设备未上报，需推导
}
