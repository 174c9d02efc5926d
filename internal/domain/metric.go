package domain

// Metric 设备支持的生命体征指标类型
type Metric string

const (
	MetricHeartRate       Metric = "HEART_RATE"
	MetricBloodPressure   Metric = "BLOOD_PRESSURE"
	MetricBloodOxygen     Metric = "BLOOD_OXYGEN"
	MetricBodyTemperature Metric = "BODY_TEMPERATURE"
	MetricStressLevel     Metric = "STRESS_LEVEL"
	MetricECG             Metric = "ECG"
	MetricBloodGlucose    Metric = "BLOOD_GLUCOSE"
	MetricActivity        Metric = "ACTIVITY"
	MetricSleep           Metric = "SLEEP"
	MetricSteps           Metric = "STEPS"
)

// AllMetrics 全部指标类型（旗舰机型默认全部支持）
var AllMetrics = []Metric{
	MetricHeartRate,
	MetricBloodPressure,
	MetricBloodOxygen,
	MetricBodyTemperature,
	MetricStressLevel,
	MetricECG,
	MetricBloodGlucose,
	MetricActivity,
	MetricSleep,
	MetricSteps,
}

// ValidationStatus 记录校验结果
// 校验不阻断持久化：无效记录仍然入库，由下游过滤
type ValidationStatus string

const (
	ValidationValid            ValidationStatus = "VALID"
	ValidationInvalidRange     ValidationStatus = "INVALID_RANGE"
	ValidationMeasurementError ValidationStatus = "INVALID_MEASUREMENT_ERROR"
)

// ActivityState 测量时的活动状态
type ActivityState string

const (
	ActivityResting  ActivityState = "RESTING"
	ActivityActive   ActivityState = "ACTIVE"
	ActivityExercise ActivityState = "EXERCISE"
	ActivitySleeping ActivityState = "SLEEPING"
	ActivityUnknown  ActivityState = "UNKNOWN"
)

// BodyPosition 测量时的身体姿态
type BodyPosition string

const (
	PositionSitting  BodyPosition = "SITTING"
	PositionStanding BodyPosition = "STANDING"
	PositionLying    BodyPosition = "LYING"
	PositionUnknown  BodyPosition = "UNKNOWN"
)

// MeasurementContext 测量上下文
type MeasurementContext struct {
	ActivityState ActivityState `json:"activity_state"`
	BodyPosition  BodyPosition  `json:"body_position"`
	ManualEntry   bool          `json:"manual_entry"`
}

// ActivityType 运动类型（用于卡路里/强度推导）
type ActivityType string

const (
	ActivityTypeWalking  ActivityType = "WALKING"
	ActivityTypeRunning  ActivityType = "RUNNING"
	ActivityTypeCycling  ActivityType = "CYCLING"
	ActivityTypeSwimming ActivityType = "SWIMMING"
	ActivityTypeWorkout  ActivityType = "WORKOUT"
	ActivityTypeOther    ActivityType = "OTHER"
)

// ActivityIntensity 运动强度分档
type ActivityIntensity string

const (
	IntensityLow      ActivityIntensity = "LOW"
	IntensityModerate ActivityIntensity = "MODERATE"
	IntensityHigh     ActivityIntensity = "HIGH"
	IntensityVeryHigh ActivityIntensity = "VERY_HIGH"
)
