package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vitalband/internal/domain"
)

// PostgresCapabilitiesRepository 能力档案Repository实现
// metrics 列为 JSONB（指标 → 采样率/精度）
type PostgresCapabilitiesRepository struct {
	db *sql.DB
}

// NewPostgresCapabilitiesRepository 创建能力档案Repository
func NewPostgresCapabilitiesRepository(db *sql.DB) *PostgresCapabilitiesRepository {
	return &PostgresCapabilitiesRepository{db: db}
}

// 确保实现了接口
var _ CapabilitiesRepository = (*PostgresCapabilitiesRepository)(nil)

// GetCapability 按设备ID获取能力档案
func (r *PostgresCapabilitiesRepository) GetCapability(ctx context.Context, deviceID string) (*domain.DeviceCapability, error) {
	query := `
		SELECT device_id, display_name, model, metrics, battery_level, firmware_version, detected_at, updated_at
		FROM device_capabilities
		WHERE device_id = $1
	`

	var (
		cap         domain.DeviceCapability
		metricsJSON []byte
		battery     sql.NullInt64
		firmware    sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&cap.DeviceID,
		&cap.DisplayName,
		&cap.Model,
		&metricsJSON,
		&battery,
		&firmware,
		&cap.DetectedAt,
		&cap.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query capability: %w", err)
	}

	if err := json.Unmarshal(metricsJSON, &cap.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if battery.Valid {
		v := int(battery.Int64)
		cap.BatteryLevel = &v
	}
	if firmware.Valid {
		v := firmware.String
		cap.FirmwareVersion = &v
	}

	return &cap, nil
}

// SaveCapability 保存/覆盖能力档案（upsert）
func (r *PostgresCapabilitiesRepository) SaveCapability(ctx context.Context, cap *domain.DeviceCapability) error {
	metricsJSON, err := json.Marshal(cap.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	var battery sql.NullInt64
	if cap.BatteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*cap.BatteryLevel), Valid: true}
	}
	var firmware sql.NullString
	if cap.FirmwareVersion != nil {
		firmware = sql.NullString{String: *cap.FirmwareVersion, Valid: true}
	}

	query := `
		INSERT INTO device_capabilities (device_id, display_name, model, metrics, battery_level, firmware_version, detected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			model = EXCLUDED.model,
			metrics = EXCLUDED.metrics,
			battery_level = EXCLUDED.battery_level,
			firmware_version = EXCLUDED.firmware_version,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		cap.DeviceID,
		cap.DisplayName,
		cap.Model,
		metricsJSON,
		battery,
		firmware,
		cap.DetectedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save capability: %w", err)
	}

	return nil
}

// UpdateBatteryLevel 刷新电量
func (r *PostgresCapabilitiesRepository) UpdateBatteryLevel(ctx context.Context, deviceID string, level int) error {
	query := `UPDATE device_capabilities SET battery_level = $1, updated_at = $2 WHERE device_id = $3`

	result, err := r.db.ExecContext(ctx, query, level, time.Now(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to update battery level: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("capability not found for device: %s", deviceID)
	}

	return nil
}

// UpdateFirmwareVersion 刷新固件版本
func (r *PostgresCapabilitiesRepository) UpdateFirmwareVersion(ctx context.Context, deviceID string, version string) error {
	query := `UPDATE device_capabilities SET firmware_version = $1, updated_at = $2 WHERE device_id = $3`

	result, err := r.db.ExecContext(ctx, query, version, time.Now(), deviceID)
	if err != nil {
		return fmt.Errorf("failed to update firmware version: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("capability not found for device: %s", deviceID)
	}

	return nil
}
