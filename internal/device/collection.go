package device

import (
	"context"
	"fmt"
	"time"

	"vitalband/internal/domain"

	"go.uber.org/zap"
)

// 心电采集循环使用的缺省录制时长
const defaultEcgDurationSec = 30

// 采集循环的最小间隔：设备上报的采样率再高也不至于空转打满链路
const minCollectionInterval = 10 * time.Millisecond

// collectableMetrics 支持连续采集循环的指标（具备单次测量操作）
var collectableMetrics = map[domain.Metric]bool{
	domain.MetricHeartRate:       true,
	domain.MetricBloodPressure:   true,
	domain.MetricBloodOxygen:     true,
	domain.MetricBodyTemperature: true,
	domain.MetricStressLevel:     true,
	domain.MetricECG:             true,
	domain.MetricBloodGlucose:    true,
}

// StartDataCollection 启动指定指标的连续采集循环
// 任一请求指标不受设备支持则整体失败（不启动任何循环），错误标注缺失子集；
// 已在运行的指标循环保持不变
func (s *SessionManager) StartDataCollection(deviceID string, metrics []domain.Metric) error {
	sess, err := s.session(deviceID)
	if err != nil {
		return err
	}

	var unsupported []domain.Metric
	for _, m := range metrics {
		if !sess.capability.Supports(m) || !collectableMetrics[m] {
			unsupported = append(unsupported, m)
		}
	}
	if len(unsupported) > 0 {
		return &domain.DeviceNotSupportedError{DeviceID: deviceID, Metrics: unsupported}
	}

	s.mu.Lock()
	deviceJobs, ok := s.jobs[deviceID]
	if !ok {
		deviceJobs = make(map[domain.Metric]context.CancelFunc)
		s.jobs[deviceID] = deviceJobs
	}

	var started []domain.Metric
	for _, m := range metrics {
		if _, running := deviceJobs[m]; running {
			continue
		}
		loopCtx, cancel := context.WithCancel(s.runCtx)
		deviceJobs[m] = cancel
		started = append(started, m)

		s.wg.Add(1)
		go s.collectionLoop(loopCtx, sess, m)
	}
	s.mu.Unlock()

	if len(started) > 0 {
		s.logger.Info("Data collection started",
			zap.String("device_id", deviceID),
			zap.Any("metrics", started),
		)
	}

	return nil
}

// StopDataCollection 停止指定指标的采集循环，其余循环不受影响
func (s *SessionManager) StopDataCollection(deviceID string, metrics []domain.Metric) error {
	s.mu.Lock()
	deviceJobs, ok := s.jobs[deviceID]
	if ok {
		for _, m := range metrics {
			if cancel, running := deviceJobs[m]; running {
				cancel()
				delete(deviceJobs, m)
			}
		}
		if len(deviceJobs) == 0 {
			delete(s.jobs, deviceID)
		}
	}
	s.mu.Unlock()

	s.logger.Info("Data collection stopped",
		zap.String("device_id", deviceID),
		zap.Any("metrics", metrics),
	)
	return nil
}

// ActiveCollectionJobs 某设备正在运行的采集循环指标集合
func (s *SessionManager) ActiveCollectionJobs(deviceID string) []domain.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Metric
	for _, m := range domain.AllMetrics {
		if _, ok := s.jobs[deviceID][m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// stopAllJobs 停止设备的全部采集循环
func (s *SessionManager) stopAllJobs(deviceID string) {
	s.mu.Lock()
	deviceJobs := s.jobs[deviceID]
	delete(s.jobs, deviceID)
	s.mu.Unlock()

	for _, cancel := range deviceJobs {
		cancel()
	}
}

// collectionInterval 采集间隔：采样率 Hz 换算为周期并设下限，未上报时取指标缺省值
func (s *SessionManager) collectionInterval(sess *deviceSession, metric domain.Metric) time.Duration {
	if spec, ok := sess.capability.Metrics[metric]; ok && spec.SamplingRateHz > 0 {
		interval := time.Second / time.Duration(spec.SamplingRateHz)
		if interval < minCollectionInterval {
			return minCollectionInterval
		}
		return interval
	}

	switch metric {
	case domain.MetricHeartRate:
		return s.collectCfg.HeartRateInterval
	case domain.MetricBloodPressure:
		return s.collectCfg.BloodPressureInterval
	case domain.MetricBloodOxygen:
		return s.collectCfg.BloodOxygenInterval
	case domain.MetricBodyTemperature:
		return s.collectCfg.TemperatureInterval
	case domain.MetricStressLevel:
		return s.collectCfg.StressInterval
	default:
		return 300 * time.Second
	}
}

// collectionLoop 单指标连续采集循环
// 测量 → 入库 → 广播 → 休眠；错误通过 DataError 事件上报但不终止循环
func (s *SessionManager) collectionLoop(ctx context.Context, sess *deviceSession, metric domain.Metric) {
	defer s.wg.Done()

	interval := s.collectionInterval(sess, metric)
	s.logger.Debug("Collection loop started",
		zap.String("device_id", sess.deviceID),
		zap.String("metric", string(metric)),
		zap.Duration("interval", interval),
	)

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.measureAndStore(ctx, sess, metric); err != nil {
			if ctx.Err() != nil {
				return
			}
			ev := domain.DataEvent{
				Type:      domain.EventDataError,
				DeviceID:  sess.deviceID,
				Metric:    metric,
				Timestamp: time.Now(),
				Message:   err.Error(),
			}
			s.dataEvents.Publish(ev)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// measureAndStore 执行单次测量、入库并广播数据事件
// 按指标分发到具体的适配器调用；同一设备的适配器操作由会话锁串行化
func (s *SessionManager) measureAndStore(ctx context.Context, sess *deviceSession, metric domain.Metric) (interface{}, error) {
	var (
		record interface{}
		err    error
	)

	switch metric {
	case domain.MetricHeartRate:
		record, err = s.doMeasureHeartRate(ctx, sess)
	case domain.MetricBloodPressure:
		record, err = s.doMeasureBloodPressure(ctx, sess)
	case domain.MetricBloodOxygen:
		record, err = s.doMeasureBloodOxygen(ctx, sess)
	case domain.MetricBodyTemperature:
		record, err = s.doMeasureBodyTemperature(ctx, sess)
	case domain.MetricStressLevel:
		record, err = s.doMeasureStressLevel(ctx, sess)
	case domain.MetricECG:
		record, err = s.doRecordEcg(ctx, sess, defaultEcgDurationSec)
	case domain.MetricBloodGlucose:
		record, err = s.doMeasureBloodGlucose(ctx, sess)
	default:
		return nil, fmt.Errorf("metric %s does not support one-shot measurement", metric)
	}
	if err != nil {
		return nil, err
	}

	s.dataEvents.Publish(domain.DataEvent{
		Type:      domain.EventDataMeasured,
		DeviceID:  sess.deviceID,
		Metric:    metric,
		Timestamp: time.Now(),
		Record:    record,
	})

	return record, nil
}

// requireMetric 校验设备已连接且支持指标
func (s *SessionManager) requireMetric(deviceID string, metric domain.Metric) (*deviceSession, error) {
	sess, err := s.session(deviceID)
	if err != nil {
		return nil, err
	}
	if !sess.capability.Supports(metric) {
		return nil, &domain.DeviceNotSupportedError{DeviceID: deviceID, Metrics: []domain.Metric{metric}}
	}
	return sess, nil
}

// MeasureHeartRate 单次心率测量
func (s *SessionManager) MeasureHeartRate(ctx context.Context, deviceID string) (*domain.HeartRateRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricHeartRate)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureHeartRate(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricHeartRate, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureHeartRate(ctx context.Context, sess *deviceSession) (*domain.HeartRateRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureHeartRate(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no heart rate data", sess.deviceID)
	}

	rec := s.mapper.MapHeartRate(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveHeartRate(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MeasureBloodPressure 单次血压测量
func (s *SessionManager) MeasureBloodPressure(ctx context.Context, deviceID string) (*domain.BloodPressureRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricBloodPressure)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureBloodPressure(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricBloodPressure, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureBloodPressure(ctx context.Context, sess *deviceSession) (*domain.BloodPressureRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureBloodPressure(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no blood pressure data", sess.deviceID)
	}

	rec := s.mapper.MapBloodPressure(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveBloodPressure(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MeasureBloodOxygen 单次血氧测量
func (s *SessionManager) MeasureBloodOxygen(ctx context.Context, deviceID string) (*domain.BloodOxygenRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricBloodOxygen)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureBloodOxygen(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricBloodOxygen, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureBloodOxygen(ctx context.Context, sess *deviceSession) (*domain.BloodOxygenRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureBloodOxygen(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no blood oxygen data", sess.deviceID)
	}

	rec := s.mapper.MapBloodOxygen(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveBloodOxygen(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MeasureBodyTemperature 单次体温测量
func (s *SessionManager) MeasureBodyTemperature(ctx context.Context, deviceID string) (*domain.BodyTemperatureRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricBodyTemperature)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureBodyTemperature(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricBodyTemperature, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureBodyTemperature(ctx context.Context, sess *deviceSession) (*domain.BodyTemperatureRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureBodyTemperature(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no temperature data", sess.deviceID)
	}

	rec := s.mapper.MapBodyTemperature(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveBodyTemperature(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MeasureStressLevel 单次压力测量
func (s *SessionManager) MeasureStressLevel(ctx context.Context, deviceID string) (*domain.StressLevelRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricStressLevel)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureStressLevel(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricStressLevel, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureStressLevel(ctx context.Context, sess *deviceSession) (*domain.StressLevelRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureStressLevel(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no stress data", sess.deviceID)
	}

	rec := s.mapper.MapStressLevel(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveStressLevel(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordEcg 录制心电（显式指定录制时长，秒）
func (s *SessionManager) RecordEcg(ctx context.Context, deviceID string, durationSec int) (*domain.EcgRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricECG)
	if err != nil {
		return nil, err
	}
	rec, err := s.doRecordEcg(ctx, sess, durationSec)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricECG, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doRecordEcg(ctx context.Context, sess *deviceSession, durationSec int) (*domain.EcgRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.RecordEcg(ctx, sess.deviceID, durationSec)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no ECG data", sess.deviceID)
	}

	rec := s.mapper.MapEcg(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveEcg(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MeasureBloodGlucose 单次血糖测量
func (s *SessionManager) MeasureBloodGlucose(ctx context.Context, deviceID string) (*domain.BloodGlucoseRecord, error) {
	sess, err := s.requireMetric(deviceID, domain.MetricBloodGlucose)
	if err != nil {
		return nil, err
	}
	rec, err := s.doMeasureBloodGlucose(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.dataEvents.Publish(domain.DataEvent{
		Type: domain.EventDataMeasured, DeviceID: deviceID,
		Metric: domain.MetricBloodGlucose, Timestamp: time.Now(), Record: rec,
	})
	return rec, nil
}

func (s *SessionManager) doMeasureBloodGlucose(ctx context.Context, sess *deviceSession) (*domain.BloodGlucoseRecord, error) {
	sess.opMu.Lock()
	raw, err := s.adapter.MeasureBloodGlucose(ctx, sess.deviceID)
	sess.opMu.Unlock()
	if err != nil {
		return nil, &domain.UnknownError{Cause: err}
	}
	if raw == nil {
		return nil, fmt.Errorf("device %s returned no glucose data", sess.deviceID)
	}

	rec := s.mapper.MapBloodGlucose(raw, sess.deviceID)
	if err := s.vitalsRepo.SaveBloodGlucose(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
