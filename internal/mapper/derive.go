package mapper

import "vitalband/internal/domain"

// 卡路里推导假定体重 70kg
const assumedBodyWeightKg = 70.0

// metValues 各运动类型的 MET 值表
var metValues = map[domain.ActivityType]float64{
	domain.ActivityTypeWalking:  3.5,
	domain.ActivityTypeRunning:  9.8,
	domain.ActivityTypeCycling:  7.5,
	domain.ActivityTypeSwimming: 8.0,
	domain.ActivityTypeWorkout:  6.0,
	domain.ActivityTypeOther:    4.0,
}

// defaultIntensity 无心率时各运动类型的缺省强度
var defaultIntensity = map[domain.ActivityType]domain.ActivityIntensity{
	domain.ActivityTypeWalking:  domain.IntensityLow,
	domain.ActivityTypeRunning:  domain.IntensityHigh,
	domain.ActivityTypeCycling:  domain.IntensityModerate,
	domain.ActivityTypeSwimming: domain.IntensityHigh,
	domain.ActivityTypeWorkout:  domain.IntensityModerate,
	domain.ActivityTypeOther:    domain.IntensityLow,
}

// EstimateCalories 按 MET 值估算卡路里
// kcal = MET * 体重(kg) * 时长(h)
func EstimateCalories(activityType domain.ActivityType, durationSec int) float64 {
	met, ok := metValues[activityType]
	if !ok {
		met = metValues[domain.ActivityTypeOther]
	}
	return met * assumedBodyWeightKg * float64(durationSec) / 3600.0
}

// DeriveIntensity 按平均心率分档强度；无心率时取运动类型缺省值
// <90 低，<120 中，<150 高，其余极高
func DeriveIntensity(activityType domain.ActivityType, averageBPM int) domain.ActivityIntensity {
	if averageBPM <= 0 {
		if intensity, ok := defaultIntensity[activityType]; ok {
			return intensity
		}
		return domain.IntensityLow
	}

	switch {
	case averageBPM < 90:
		return domain.IntensityLow
	case averageBPM < 120:
		return domain.IntensityModerate
	case averageBPM < 150:
		return domain.IntensityHigh
	default:
		return domain.IntensityVeryHigh
	}
}
