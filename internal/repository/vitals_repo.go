package repository

import (
	"context"
	"time"

	"vitalband/internal/domain"
)

// HeartRateStats 心率区间统计
type HeartRateStats struct {
	Average float64
	Min     int
	Max     int
	Count   int
}

// VitalsRepository 生命体征Repository接口
// 逐条保存 + 批量保存（批量同步用）+ 区间查询；无效记录同样入库
type VitalsRepository interface {
	// 心率
	SaveHeartRate(ctx context.Context, rec *domain.HeartRateRecord) error
	SaveHeartRateBatch(ctx context.Context, recs []*domain.HeartRateRecord) (int, error)
	GetHeartRateRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.HeartRateRecord, error)
	GetHeartRateStats(ctx context.Context, userID string, start, end time.Time) (*HeartRateStats, error)

	// 血压
	SaveBloodPressure(ctx context.Context, rec *domain.BloodPressureRecord) error
	SaveBloodPressureBatch(ctx context.Context, recs []*domain.BloodPressureRecord) (int, error)
	GetBloodPressureRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodPressureRecord, error)

	// 血氧
	SaveBloodOxygen(ctx context.Context, rec *domain.BloodOxygenRecord) error
	SaveBloodOxygenBatch(ctx context.Context, recs []*domain.BloodOxygenRecord) (int, error)
	GetBloodOxygenRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodOxygenRecord, error)

	// 体温
	SaveBodyTemperature(ctx context.Context, rec *domain.BodyTemperatureRecord) error
	SaveBodyTemperatureBatch(ctx context.Context, recs []*domain.BodyTemperatureRecord) (int, error)

	// 压力
	SaveStressLevel(ctx context.Context, rec *domain.StressLevelRecord) error
	SaveStressLevelBatch(ctx context.Context, recs []*domain.StressLevelRecord) (int, error)

	// 心电
	SaveEcg(ctx context.Context, rec *domain.EcgRecord) error
	SaveEcgBatch(ctx context.Context, recs []*domain.EcgRecord) (int, error)

	// 血糖
	SaveBloodGlucose(ctx context.Context, rec *domain.BloodGlucoseRecord) error
	SaveBloodGlucoseBatch(ctx context.Context, recs []*domain.BloodGlucoseRecord) (int, error)

	// 活动
	SaveActivity(ctx context.Context, rec *domain.ActivityRecord) error
	SaveActivityBatch(ctx context.Context, recs []*domain.ActivityRecord) (int, error)

	// 睡眠
	SaveSleep(ctx context.Context, rec *domain.SleepRecord) error
	SaveSleepBatch(ctx context.Context, recs []*domain.SleepRecord) (int, error)
}
