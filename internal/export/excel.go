package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"vitalband/internal/domain"
	"vitalband/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// VitalsSource 导出所需的查询接口（由 VitalsRepository 实现）
type VitalsSource interface {
	GetHeartRateRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.HeartRateRecord, error)
	GetHeartRateStats(ctx context.Context, userID string, start, end time.Time) (*repository.HeartRateStats, error)
	GetBloodPressureRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodPressureRecord, error)
	GetBloodOxygenRange(ctx context.Context, userID string, start, end time.Time) ([]*domain.BloodOxygenRecord, error)
}

// 各工作表表头
var (
	heartRateHeader     = []string{"Timestamp", "BPM", "Device", "Activity State", "Validation"}
	bloodPressureHeader = []string{"Timestamp", "Systolic", "Diastolic", "Pulse", "Device", "Validation"}
	bloodOxygenHeader   = []string{"Timestamp", "SpO2 (%)", "Device", "Validation"}
)

const timestampFormat = "2006-01-02 15:04:05"

// VitalsExporter 生命体征历史导出器
// 按时间窗口拉取各指标历史并生成多工作表 Excel 文件
type VitalsExporter struct {
	source VitalsSource
	logger *zap.Logger
}

// NewVitalsExporter 创建导出器
func NewVitalsExporter(source VitalsSource, logger *zap.Logger) *VitalsExporter {
	return &VitalsExporter{
		source: source,
		logger: logger,
	}
}

// ExportVitals 导出时间窗口内的体征历史
// 每个指标一个工作表；心率工作表末尾附区间统计行
func (e *VitalsExporter) ExportVitals(ctx context.Context, userID string, start, end time.Time) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能关闭文件

	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := e.writeHeartRateSheet(ctx, f, headerStyle, userID, start, end); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.writeBloodPressureSheet(ctx, f, headerStyle, userID, start, end); err != nil {
		f.Close()
		return nil, err
	}
	if err := e.writeBloodOxygenSheet(ctx, f, headerStyle, userID, start, end); err != nil {
		f.Close()
		return nil, err
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex("Heart Rate"); err == nil {
		f.SetActiveSheet(index)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	e.logger.Info("Vitals export generated",
		zap.String("user_id", userID),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	return buf.Bytes(), nil
}

// newHeaderStyle 表头样式：加粗、浅蓝底、细边框、居中
func newHeaderStyle(f *excelize.File) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}
	return style, nil
}

// newSheet 创建工作表并写入表头
func newSheet(f *excelize.File, name string, headers []string, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(name, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 时间戳列放宽
	if err := f.SetColWidth(name, "A", "A", 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

// setRow 写入一行单元格
func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		if value == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func (e *VitalsExporter) writeHeartRateSheet(ctx context.Context, f *excelize.File, headerStyle int, userID string, start, end time.Time) error {
	const sheet = "Heart Rate"
	if err := newSheet(f, sheet, heartRateHeader, headerStyle); err != nil {
		return err
	}

	records, err := e.source.GetHeartRateRange(ctx, userID, start, end)
	if err != nil {
		return fmt.Errorf("failed to query heart rate history: %w", err)
	}

	row := 2
	for _, rec := range records {
		values := []interface{}{
			rec.Timestamp.Format(timestampFormat),
			rec.BPM,
			rec.DeviceID,
			string(rec.Context.ActivityState),
			string(rec.Validation),
		}
		if err := setRow(f, sheet, row, values); err != nil {
			return err
		}
		row++
	}

	// 区间统计行
	stats, err := e.source.GetHeartRateStats(ctx, userID, start, end)
	if err != nil {
		return fmt.Errorf("failed to query heart rate stats: %w", err)
	}
	if stats != nil && stats.Count > 0 {
		summary := []interface{}{
			"Summary",
			fmt.Sprintf("avg %.1f / min %d / max %d (%d readings)",
				stats.Average, stats.Min, stats.Max, stats.Count),
		}
		if err := setRow(f, sheet, row+1, summary); err != nil {
			return err
		}
	}

	return nil
}

func (e *VitalsExporter) writeBloodPressureSheet(ctx context.Context, f *excelize.File, headerStyle int, userID string, start, end time.Time) error {
	const sheet = "Blood Pressure"
	if err := newSheet(f, sheet, bloodPressureHeader, headerStyle); err != nil {
		return err
	}

	records, err := e.source.GetBloodPressureRange(ctx, userID, start, end)
	if err != nil {
		return fmt.Errorf("failed to query blood pressure history: %w", err)
	}

	for i, rec := range records {
		var pulse interface{}
		if rec.Pulse != nil {
			pulse = *rec.Pulse
		}
		values := []interface{}{
			rec.Timestamp.Format(timestampFormat),
			rec.Systolic,
			rec.Diastolic,
			pulse,
			rec.DeviceID,
			string(rec.Validation),
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func (e *VitalsExporter) writeBloodOxygenSheet(ctx context.Context, f *excelize.File, headerStyle int, userID string, start, end time.Time) error {
	const sheet = "Blood Oxygen"
	if err := newSheet(f, sheet, bloodOxygenHeader, headerStyle); err != nil {
		return err
	}

	records, err := e.source.GetBloodOxygenRange(ctx, userID, start, end)
	if err != nil {
		return fmt.Errorf("failed to query blood oxygen history: %w", err)
	}

	for i, rec := range records {
		values := []interface{}{
			rec.Timestamp.Format(timestampFormat),
			rec.SpO2,
			rec.DeviceID,
			string(rec.Validation),
		}
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}
