package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vitalband/internal/domain"
)

// PostgresVitalsRepository 生命体征Repository实现
// 所有指标共用 vital_readings 表：公共列 + metric 标识 + JSONB payload 存放指标特有字段
type PostgresVitalsRepository struct {
	db *sql.DB
}

// NewPostgresVitalsRepository 创建生命体征Repository
func NewPostgresVitalsRepository(db *sql.DB) *PostgresVitalsRepository {
	return &PostgresVitalsRepository{db: db}
}

// 确保实现了接口
var _ VitalsRepository = (*PostgresVitalsRepository)(nil)

const insertReadingQuery = `
	INSERT INTO vital_readings (id, user_id, device_id, device_type, metric, timestamp,
		activity_state, body_position, manual_entry, validation, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// saveReading 写入单条记录（payload 为指标特有字段）
func (r *PostgresVitalsRepository) saveReading(ctx context.Context, meta domain.RecordMeta, metric domain.Metric, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertReadingQuery,
		meta.ID,
		meta.UserID,
		meta.DeviceID,
		meta.DeviceType,
		string(metric),
		meta.Timestamp,
		string(meta.Context.ActivityState),
		string(meta.Context.BodyPosition),
		meta.Context.ManualEntry,
		string(meta.Validation),
		payloadJSON,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s reading: %w", metric, err)
	}

	return nil
}

// saveReadingBatch 事务内批量写入；整批成功或整批回滚
func (r *PostgresVitalsRepository) saveReadingBatch(ctx context.Context, metric domain.Metric, metas []domain.RecordMeta, payloads []interface{}) (int, error) {
	if len(metas) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertReadingQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, meta := range metas {
		payloadJSON, err := json.Marshal(payloads[i])
		if err != nil {
			return 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			meta.ID, meta.UserID, meta.DeviceID, meta.DeviceType, string(metric), meta.Timestamp,
			string(meta.Context.ActivityState), string(meta.Context.BodyPosition), meta.Context.ManualEntry,
			string(meta.Validation), payloadJSON, now,
		); err != nil {
			return 0, fmt.Errorf("failed to save %s batch: %w", metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(metas), nil
}

const selectReadingQuery = `
	SELECT id, user_id, device_id, device_type, timestamp,
		activity_state, body_position, manual_entry, validation, payload
	FROM vital_readings
	WHERE user_id = $1 AND metric = $2 AND timestamp >= $3 AND timestamp <= $4
	ORDER BY timestamp ASC
`

// queryRange 区间查询，返回公共字段 + 原始 payload
func (r *PostgresVitalsRepository) queryRange(ctx context.Context, userID string, metric domain.Metric, start, end time.Time) ([]domain.RecordMeta, [][]byte, error) {
	rows, err := r.db.QueryContext(ctx, selectReadingQuery, userID, string(metric), start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s range: %w", metric, err)
	}
	defer rows.Close()

	var (
		metas    []domain.RecordMeta
		payloads [][]byte
	)
	for rows.Next() {
		var (
			meta          domain.RecordMeta
			activityState string
			bodyPosition  string
			validation    string
			payload       []byte
		)
		if err := rows.Scan(
			&meta.ID, &meta.UserID, &meta.DeviceID, &meta.DeviceType, &meta.Timestamp,
			&activityState, &bodyPosition, &meta.Context.ManualEntry, &validation, &payload,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan %s row: %w", metric, err)
		}
		meta.Context.ActivityState = domain.ActivityState(activityState)
		meta.Context.BodyPosition = domain.BodyPosition(bodyPosition)
		meta.Validation = domain.ValidationStatus(validation)
		metas = append(metas, meta)
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate %s rows: %w", metric, err)
	}

	return metas, payloads, nil
}

// ---- 心率 ----

type heartRatePayload struct {
	BPM int `json:"bpm"`
}

// SaveHeartRate 保存心率记录
func (r *PostgresVitalsRepository) SaveHeartRate(ctx context.Context, rec *domain.HeartRateRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricHeartRate, heartRatePayload{BPM: rec.BPM})
}

// SaveHeartRateBatch 批量保存心率记录
func (r *PostgresVitalsRepository) SaveHeartRateBatch(ctx context.Context, recs []*domain.HeartRateRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = heartRatePayload{BPM: rec.BPM}
	}
	return r.saveReadingBatch(ctx, domain.MetricHeartRate, metas, payloads)
}

// GetHeartRateRange 按时间区间查询心率
func (r *PostgresVitalsRepository) GetHeartRateRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.HeartRateRecord, error) {
	metas, payloads, err := r.queryRange(ctx, userID, domain.MetricHeartRate, start, end)
	if err != nil {
		return nil, err
	}

	recs := make([]*domain.HeartRateRecord, 0, len(metas))
	for i, meta := range metas {
		var p heartRatePayload
		if err := json.Unmarshal(payloads[i], &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal heart rate payload: %w", err)
		}
		recs = append(recs, &domain.HeartRateRecord{RecordMeta: meta, BPM: p.BPM})
	}
	return recs, nil
}

// GetHeartRateStats 心率区间统计（仅统计 VALID 记录）
func (r *PostgresVitalsRepository) GetHeartRateStats(ctx context.Context, userID string, start, end time.Time) (*HeartRateStats, error) {
	query := `
		SELECT COALESCE(AVG((payload->>'bpm')::int), 0),
			COALESCE(MIN((payload->>'bpm')::int), 0),
			COALESCE(MAX((payload->>'bpm')::int), 0),
			COUNT(*)
		FROM vital_readings
		WHERE user_id = $1 AND metric = $2 AND validation = $3
			AND timestamp >= $4 AND timestamp <= $5
	`

	var stats HeartRateStats
	err := r.db.QueryRowContext(ctx, query,
		userID, string(domain.MetricHeartRate), string(domain.ValidationValid), start, end,
	).Scan(&stats.Average, &stats.Min, &stats.Max, &stats.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to query heart rate stats: %w", err)
	}

	return &stats, nil
}

// ---- 血压 ----

type bloodPressurePayload struct {
	Systolic  int  `json:"systolic"`
	Diastolic int  `json:"diastolic"`
	Pulse     *int `json:"pulse,omitempty"`
}

// SaveBloodPressure 保存血压记录
func (r *PostgresVitalsRepository) SaveBloodPressure(ctx context.Context, rec *domain.BloodPressureRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricBloodPressure,
		bloodPressurePayload{Systolic: rec.Systolic, Diastolic: rec.Diastolic, Pulse: rec.Pulse})
}

// SaveBloodPressureBatch 批量保存血压记录
func (r *PostgresVitalsRepository) SaveBloodPressureBatch(ctx context.Context, recs []*domain.BloodPressureRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = bloodPressurePayload{Systolic: rec.Systolic, Diastolic: rec.Diastolic, Pulse: rec.Pulse}
	}
	return r.saveReadingBatch(ctx, domain.MetricBloodPressure, metas, payloads)
}

// GetBloodPressureRange 按时间区间查询血压
func (r *PostgresVitalsRepository) GetBloodPressureRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodPressureRecord, error) {
	metas, payloads, err := r.queryRange(ctx, userID, domain.MetricBloodPressure, start, end)
	if err != nil {
		return nil, err
	}

	recs := make([]*domain.BloodPressureRecord, 0, len(metas))
	for i, meta := range metas {
		var p bloodPressurePayload
		if err := json.Unmarshal(payloads[i], &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blood pressure payload: %w", err)
		}
		recs = append(recs, &domain.BloodPressureRecord{
			RecordMeta: meta,
			Systolic:   p.Systolic,
			Diastolic:  p.Diastolic,
			Pulse:      p.Pulse,
		})
	}
	return recs, nil
}

// ---- 血氧 ----

type bloodOxygenPayload struct {
	SpO2 float64 `json:"spo2"`
}

// SaveBloodOxygen 保存血氧记录
func (r *PostgresVitalsRepository) SaveBloodOxygen(ctx context.Context, rec *domain.BloodOxygenRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricBloodOxygen, bloodOxygenPayload{SpO2: rec.SpO2})
}

// SaveBloodOxygenBatch 批量保存血氧记录
func (r *PostgresVitalsRepository) SaveBloodOxygenBatch(ctx context.Context, recs []*domain.BloodOxygenRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = bloodOxygenPayload{SpO2: rec.SpO2}
	}
	return r.saveReadingBatch(ctx, domain.MetricBloodOxygen, metas, payloads)
}

// GetBloodOxygenRange 按时间区间查询血氧
func (r *PostgresVitalsRepository) GetBloodOxygenRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodOxygenRecord, error) {
	metas, payloads, err := r.queryRange(ctx, userID, domain.MetricBloodOxygen, start, end)
	if err != nil {
		return nil, err
	}

	recs := make([]*domain.BloodOxygenRecord, 0, len(metas))
	for i, meta := range metas {
		var p bloodOxygenPayload
		if err := json.Unmarshal(payloads[i], &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blood oxygen payload: %w", err)
		}
		recs = append(recs, &domain.BloodOxygenRecord{RecordMeta: meta, SpO2: p.SpO2})
	}
	return recs, nil
}

// ---- 体温 ----

type bodyTemperaturePayload struct {
	Celsius float64 `json:"celsius"`
}

// SaveBodyTemperature 保存体温记录
func (r *PostgresVitalsRepository) SaveBodyTemperature(ctx context.Context, rec *domain.BodyTemperatureRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricBodyTemperature, bodyTemperaturePayload{Celsius: rec.Celsius})
}

// SaveBodyTemperatureBatch 批量保存体温记录
func (r *PostgresVitalsRepository) SaveBodyTemperatureBatch(ctx context.Context, recs []*domain.BodyTemperatureRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = bodyTemperaturePayload{Celsius: rec.Celsius}
	}
	return r.saveReadingBatch(ctx, domain.MetricBodyTemperature, metas, payloads)
}

// ---- 压力 ----

type stressLevelPayload struct {
	Level int `json:"level"`
}

// SaveStressLevel 保存压力记录
func (r *PostgresVitalsRepository) SaveStressLevel(ctx context.Context, rec *domain.StressLevelRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricStressLevel, stressLevelPayload{Level: rec.Level})
}

// SaveStressLevelBatch 批量保存压力记录
func (r *PostgresVitalsRepository) SaveStressLevelBatch(ctx context.Context, recs []*domain.StressLevelRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = stressLevelPayload{Level: rec.Level}
	}
	return r.saveReadingBatch(ctx, domain.MetricStressLevel, metas, payloads)
}

// ---- 心电 ----

type ecgPayload struct {
	Waveform       []float64 `json:"waveform"`
	SamplingRateHz int       `json:"sampling_rate_hz"`
	DurationSec    int       `json:"duration_sec"`
	AverageBPM     *int      `json:"average_bpm,omitempty"`
}

// SaveEcg 保存心电记录
func (r *PostgresVitalsRepository) SaveEcg(ctx context.Context, rec *domain.EcgRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricECG, ecgPayload{
		Waveform:       rec.Waveform,
		SamplingRateHz: rec.SamplingRateHz,
		DurationSec:    rec.DurationSec,
		AverageBPM:     rec.AverageBPM,
	})
}

// SaveEcgBatch 批量保存心电记录
func (r *PostgresVitalsRepository) SaveEcgBatch(ctx context.Context, recs []*domain.EcgRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = ecgPayload{
			Waveform:       rec.Waveform,
			SamplingRateHz: rec.SamplingRateHz,
			DurationSec:    rec.DurationSec,
			AverageBPM:     rec.AverageBPM,
		}
	}
	return r.saveReadingBatch(ctx, domain.MetricECG, metas, payloads)
}

// ---- 血糖 ----

type bloodGlucosePayload struct {
	MmolPerL float64 `json:"mmol_per_l"`
}

// SaveBloodGlucose 保存血糖记录
func (r *PostgresVitalsRepository) SaveBloodGlucose(ctx context.Context, rec *domain.BloodGlucoseRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricBloodGlucose, bloodGlucosePayload{MmolPerL: rec.MmolPerL})
}

// SaveBloodGlucoseBatch 批量保存血糖记录
func (r *PostgresVitalsRepository) SaveBloodGlucoseBatch(ctx context.Context, recs []*domain.BloodGlucoseRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = bloodGlucosePayload{MmolPerL: rec.MmolPerL}
	}
	return r.saveReadingBatch(ctx, domain.MetricBloodGlucose, metas, payloads)
}

// ---- 活动 ----

type activityPayload struct {
	ActivityType string  `json:"activity_type"`
	Steps        int     `json:"steps"`
	DurationSec  int     `json:"duration_sec"`
	DistanceM    float64 `json:"distance_m"`
	Calories     float64 `json:"calories"`
	AverageBPM   *int    `json:"average_bpm,omitempty"`
	Intensity    string  `json:"intensity"`
}

// SaveActivity 保存活动记录
func (r *PostgresVitalsRepository) SaveActivity(ctx context.Context, rec *domain.ActivityRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricActivity, activityPayloadFrom(rec))
}

// SaveActivityBatch 批量保存活动记录
func (r *PostgresVitalsRepository) SaveActivityBatch(ctx context.Context, recs []*domain.ActivityRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = activityPayloadFrom(rec)
	}
	return r.saveReadingBatch(ctx, domain.MetricActivity, metas, payloads)
}

func activityPayloadFrom(rec *domain.ActivityRecord) activityPayload {
	return activityPayload{
		ActivityType: string(rec.ActivityType),
		Steps:        rec.Steps,
		DurationSec:  rec.DurationSec,
		DistanceM:    rec.DistanceM,
		Calories:     rec.Calories,
		AverageBPM:   rec.AverageBPM,
		Intensity:    string(rec.Intensity),
	}
}

// ---- 睡眠 ----

type sleepPayload struct {
	Start      time.Time           `json:"start"`
	End        time.Time           `json:"end"`
	TotalSec   int                 `json:"total_sec"`
	AwakeSec   int                 `json:"awake_sec"`
	Stages     []domain.SleepStage `json:"stages"`
	Efficiency float64             `json:"efficiency"`
}

// SaveSleep 保存睡眠记录
func (r *PostgresVitalsRepository) SaveSleep(ctx context.Context, rec *domain.SleepRecord) error {
	return r.saveReading(ctx, rec.RecordMeta, domain.MetricSleep, sleepPayload{
		Start:      rec.Start,
		End:        rec.End,
		TotalSec:   rec.TotalSec,
		AwakeSec:   rec.AwakeSec,
		Stages:     rec.Stages,
		Efficiency: rec.Efficiency,
	})
}

// SaveSleepBatch 批量保存睡眠记录
func (r *PostgresVitalsRepository) SaveSleepBatch(ctx context.Context, recs []*domain.SleepRecord) (int, error) {
	metas := make([]domain.RecordMeta, len(recs))
	payloads := make([]interface{}, len(recs))
	for i, rec := range recs {
		metas[i] = rec.RecordMeta
		payloads[i] = sleepPayload{
			Start:      rec.Start,
			End:        rec.End,
			TotalSec:   rec.TotalSec,
			AwakeSec:   rec.AwakeSec,
			Stages:     rec.Stages,
			Efficiency: rec.Efficiency,
		}
	}
	return r.saveReadingBatch(ctx, domain.MetricSleep, metas, payloads)
}
