package device

import (
	"context"
	"fmt"
	"time"

	"vitalband/internal/domain"

	"go.uber.org/zap"
)

// SynchronizeData 批量补采同步
// 对设备支持的每个指标独立执行 拉取→映射→批量入库；单指标失败记入结果错误列表，
// 不中断其余指标。进度事件固定按 0/10/.../100 里程碑广播，与实际指标数无关。
// 全部指标完成后按适配器要求清理设备端缓存。
func (s *SessionManager) SynchronizeData(ctx context.Context, deviceID string) (*domain.SyncResult, error) {
	sess, err := s.session(deviceID)
	if err != nil {
		return nil, err
	}

	result := domain.NewSyncResult(deviceID)
	metrics := sess.capability.SupportedMetrics()

	// STEPS 随活动记录同步，设备同时支持两者时避免重复拉取
	if sess.capability.Supports(domain.MetricActivity) {
		filtered := metrics[:0]
		for _, m := range metrics {
			if m != domain.MetricSteps {
				filtered = append(filtered, m)
			}
		}
		metrics = filtered
	}

	s.logger.Info("Starting device data sync",
		zap.String("device_id", deviceID),
		zap.Int("metrics", len(metrics)),
	)

	s.emitSyncProgress(deviceID, 0)
	lastMilestone := 0

	for i, metric := range metrics {
		count, err := s.syncMetric(ctx, sess, metric)
		if err != nil {
			syncErr := &domain.SyncError{Metric: metric, Cause: err}
			result.AddError(syncErr.Error())
			s.logger.Warn("Metric sync failed",
				zap.String("device_id", deviceID),
				zap.String("metric", string(metric)),
				zap.Error(err),
			)
		} else {
			result.AddCount(metric, count)
			if count > 0 {
				s.dataEvents.Publish(domain.DataEvent{
					Type:      domain.EventDataSynced,
					DeviceID:  deviceID,
					Metric:    metric,
					Timestamp: time.Now(),
					Count:     count,
				})
			}
		}

		// 将已完成指标数折算到最近的10%里程碑
		milestone := (i + 1) * 100 / len(metrics) / 10 * 10
		for m := lastMilestone + 10; m <= milestone; m += 10 {
			s.emitSyncProgress(deviceID, m)
		}
		if milestone > lastMilestone {
			lastMilestone = milestone
		}
	}

	for m := lastMilestone + 10; m <= 100; m += 10 {
		s.emitSyncProgress(deviceID, m)
	}

	// 设备要求时清理设备端缓存数据
	if s.adapter.ShouldClearDeviceDataAfterSync(deviceID) {
		sess.opMu.Lock()
		err := s.adapter.ClearDeviceData(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			result.AddError(fmt.Sprintf("failed to clear device data: %v", err))
		}
	}

	result.EndedAt = time.Now()

	s.logger.Info("Device data sync finished",
		zap.String("device_id", deviceID),
		zap.Int("total_records", result.TotalRecords()),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration()),
	)

	return result, nil
}

func (s *SessionManager) emitSyncProgress(deviceID string, progress int) {
	ev := newDeviceEvent(domain.EventSyncProgress, deviceID)
	ev.Progress = progress
	s.deviceEvents.Publish(ev)
}

// syncMetric 单指标批量同步：适配器拉取（会话锁内）→ 映射 → 批量入库
func (s *SessionManager) syncMetric(ctx context.Context, sess *deviceSession, metric domain.Metric) (int, error) {
	deviceID := sess.deviceID

	switch metric {
	case domain.MetricHeartRate:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncHeartRate(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.HeartRateRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapHeartRate(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveHeartRateBatch(ctx, recs)

	case domain.MetricBloodPressure:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncBloodPressure(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.BloodPressureRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapBloodPressure(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveBloodPressureBatch(ctx, recs)

	case domain.MetricBloodOxygen:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncBloodOxygen(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.BloodOxygenRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapBloodOxygen(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveBloodOxygenBatch(ctx, recs)

	case domain.MetricBodyTemperature:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncBodyTemperature(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.BodyTemperatureRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapBodyTemperature(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveBodyTemperatureBatch(ctx, recs)

	case domain.MetricStressLevel:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncStressLevel(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.StressLevelRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapStressLevel(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveStressLevelBatch(ctx, recs)

	case domain.MetricECG:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncEcg(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.EcgRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapEcg(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveEcgBatch(ctx, recs)

	case domain.MetricBloodGlucose:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncBloodGlucose(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.BloodGlucoseRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapBloodGlucose(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveBloodGlucoseBatch(ctx, recs)

	case domain.MetricActivity, domain.MetricSteps:
		// STEPS 数据包含在活动记录中，与 ACTIVITY 共用同一批量通道
		sess.opMu.Lock()
		raws, err := s.adapter.SyncActivity(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.ActivityRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapActivity(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveActivityBatch(ctx, recs)

	case domain.MetricSleep:
		sess.opMu.Lock()
		raws, err := s.adapter.SyncSleep(ctx, deviceID)
		sess.opMu.Unlock()
		if err != nil {
			return 0, err
		}
		recs := make([]*domain.SleepRecord, 0, len(raws))
		for i := range raws {
			recs = append(recs, s.mapper.MapSleep(&raws[i], deviceID))
		}
		return s.vitalsRepo.SaveSleepBatch(ctx, recs)

	default:
		return 0, fmt.Errorf("unsupported metric: %s", metric)
	}
}
