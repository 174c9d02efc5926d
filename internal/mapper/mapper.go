package mapper

import (
	"time"

	"vitalband/internal/bandsdk"
	"vitalband/internal/domain"

	"github.com/google/uuid"
)

// 各指标的有效值范围
const (
	heartRateMin = 30
	heartRateMax = 220

	systolicMin  = 70
	systolicMax  = 250
	diastolicMin = 40
	diastolicMax = 150

	spo2Min = 70.0
	spo2Max = 100.0

	temperatureMin = 34.0
	temperatureMax = 42.5

	glucoseMin = 2.0
	glucoseMax = 30.0

	stressMin = 0
	stressMax = 100

	// 心电波形最低采样率，低于此值视为测量错误
	ecgMinSamplingRateHz = 100
)

// Mapper 厂家载荷到领域记录的纯转换层
// 无副作用：生成记录、附加测量上下文、做范围校验；校验失败不阻断入库
type Mapper struct {
	userID     string
	deviceType string
}

// NewMapper 创建 Mapper
// userID: 记录归属用户；deviceType: 设备来源类型（如 "wearable_band"）
func NewMapper(userID, deviceType string) *Mapper {
	return &Mapper{
		userID:     userID,
		deviceType: deviceType,
	}
}

// meta 生成记录公共字段
func (m *Mapper) meta(deviceID string, tsMs int64, ctx domain.MeasurementContext, status domain.ValidationStatus) domain.RecordMeta {
	return domain.RecordMeta{
		ID:         uuid.New().String(),
		UserID:     m.userID,
		Timestamp:  time.UnixMilli(tsMs),
		DeviceID:   deviceID,
		DeviceType: m.deviceType,
		Context:    ctx,
		Validation: status,
	}
}

// MapHeartRate 心率：活动状态由数值推导（<60 静息，否则活动）
func (m *Mapper) MapHeartRate(raw *bandsdk.RawHeartRate, deviceID string) *domain.HeartRateRecord {
	state := domain.ActivityActive
	if raw.BPM < 60 {
		state = domain.ActivityResting
	}
	ctx := domain.MeasurementContext{
		ActivityState: state,
		BodyPosition:  domain.PositionUnknown,
	}

	status := domain.ValidationValid
	if raw.BPM < heartRateMin || raw.BPM > heartRateMax {
		status = domain.ValidationInvalidRange
	}

	return &domain.HeartRateRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		BPM:        raw.BPM,
	}
}

// MapBloodPressure 血压：默认静坐测量；收缩压必须大于舒张压
func (m *Mapper) MapBloodPressure(raw *bandsdk.RawBloodPressure, deviceID string) *domain.BloodPressureRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionSitting,
	}

	status := domain.ValidationValid
	if raw.Systolic < systolicMin || raw.Systolic > systolicMax ||
		raw.Diastolic < diastolicMin || raw.Diastolic > diastolicMax ||
		raw.Systolic <= raw.Diastolic {
		status = domain.ValidationInvalidRange
	}

	var pulse *int
	if raw.Pulse > 0 {
		p := raw.Pulse
		pulse = &p
	}

	return &domain.BloodPressureRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		Systolic:   raw.Systolic,
		Diastolic:  raw.Diastolic,
		Pulse:      pulse,
	}
}

// MapBloodOxygen 血氧：默认静坐测量
func (m *Mapper) MapBloodOxygen(raw *bandsdk.RawBloodOxygen, deviceID string) *domain.BloodOxygenRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionSitting,
	}

	status := domain.ValidationValid
	if raw.SpO2 < spo2Min || raw.SpO2 > spo2Max {
		status = domain.ValidationInvalidRange
	}

	return &domain.BloodOxygenRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		SpO2:       raw.SpO2,
	}
}

// MapBodyTemperature 体温
func (m *Mapper) MapBodyTemperature(raw *bandsdk.RawBodyTemperature, deviceID string) *domain.BodyTemperatureRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionUnknown,
	}

	status := domain.ValidationValid
	if raw.Celsius < temperatureMin || raw.Celsius > temperatureMax {
		status = domain.ValidationInvalidRange
	}

	return &domain.BodyTemperatureRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		Celsius:    raw.Celsius,
	}
}

// MapStressLevel 压力值
func (m *Mapper) MapStressLevel(raw *bandsdk.RawStressLevel, deviceID string) *domain.StressLevelRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionUnknown,
	}

	status := domain.ValidationValid
	if raw.Level < stressMin || raw.Level > stressMax {
		status = domain.ValidationInvalidRange
	}

	return &domain.StressLevelRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		Level:      raw.Level,
	}
}

// MapEcg 心电：空波形或采样率过低视为测量错误（结构性无效）
func (m *Mapper) MapEcg(raw *bandsdk.RawEcg, deviceID string) *domain.EcgRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionSitting,
	}

	status := domain.ValidationValid
	if len(raw.Waveform) == 0 || raw.SamplingRateHz < ecgMinSamplingRateHz {
		status = domain.ValidationMeasurementError
	}

	var avgBPM *int
	if raw.AverageBPM > 0 {
		v := raw.AverageBPM
		avgBPM = &v
	}

	return &domain.EcgRecord{
		RecordMeta:     m.meta(deviceID, raw.TimestampMs, ctx, status),
		Waveform:       raw.Waveform,
		SamplingRateHz: raw.SamplingRateHz,
		DurationSec:    raw.DurationSec,
		AverageBPM:     avgBPM,
	}
}

// MapBloodGlucose 血糖
func (m *Mapper) MapBloodGlucose(raw *bandsdk.RawBloodGlucose, deviceID string) *domain.BloodGlucoseRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityResting,
		BodyPosition:  domain.PositionUnknown,
	}

	status := domain.ValidationValid
	if raw.MmolPerL < glucoseMin || raw.MmolPerL > glucoseMax {
		status = domain.ValidationInvalidRange
	}

	return &domain.BloodGlucoseRecord{
		RecordMeta: m.meta(deviceID, raw.TimestampMs, ctx, status),
		MmolPerL:   raw.MmolPerL,
	}
}

// MapActivity 活动：卡路里/强度在设备未上报时推导
func (m *Mapper) MapActivity(raw *bandsdk.RawActivity, deviceID string) *domain.ActivityRecord {
	activityType := parseActivityType(raw.ActivityType)

	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivityExercise,
		BodyPosition:  domain.PositionUnknown,
	}

	calories := raw.Calories
	if calories == 0 {
		calories = EstimateCalories(activityType, raw.DurationSec)
	}

	var avgBPM *int
	if raw.AverageBPM > 0 {
		v := raw.AverageBPM
		avgBPM = &v
	}

	return &domain.ActivityRecord{
		RecordMeta:   m.meta(deviceID, raw.TimestampMs, ctx, domain.ValidationValid),
		ActivityType: activityType,
		Steps:        raw.Steps,
		DurationSec:  raw.DurationSec,
		DistanceM:    raw.DistanceM,
		Calories:     calories,
		AverageBPM:   avgBPM,
		Intensity:    DeriveIntensity(activityType, raw.AverageBPM),
	}
}

// MapSleep 睡眠：效率在设备未上报时推导 (total-awake)/total*100
func (m *Mapper) MapSleep(raw *bandsdk.RawSleep, deviceID string) *domain.SleepRecord {
	ctx := domain.MeasurementContext{
		ActivityState: domain.ActivitySleeping,
		BodyPosition:  domain.PositionLying,
	}

	status := domain.ValidationValid
	if raw.TotalSec <= 0 {
		status = domain.ValidationMeasurementError
	}

	efficiency := raw.Efficiency
	if efficiency == 0 && raw.TotalSec > 0 {
		efficiency = float64(raw.TotalSec-raw.AwakeSec) / float64(raw.TotalSec) * 100
	}

	stages := make([]domain.SleepStage, 0, len(raw.Stages))
	for _, s := range raw.Stages {
		stages = append(stages, domain.SleepStage{
			Stage:       s.Stage,
			DurationSec: s.DurationSec,
		})
	}

	return &domain.SleepRecord{
		RecordMeta: m.meta(deviceID, raw.StartMs, ctx, status),
		Start:      time.UnixMilli(raw.StartMs),
		End:        time.UnixMilli(raw.EndMs),
		TotalSec:   raw.TotalSec,
		AwakeSec:   raw.AwakeSec,
		Stages:     stages,
		Efficiency: efficiency,
	}
}

func parseActivityType(s string) domain.ActivityType {
	switch s {
	case "WALKING":
		return domain.ActivityTypeWalking
	case "RUNNING":
		return domain.ActivityTypeRunning
	case "CYCLING":
		return domain.ActivityTypeCycling
	case "SWIMMING":
		return domain.ActivityTypeSwimming
	case "WORKOUT":
		return domain.ActivityTypeWorkout
	default:
		return domain.ActivityTypeOther
	}
}
