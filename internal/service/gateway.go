package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vitalband/internal/domain"
	"vitalband/internal/export"
	"vitalband/internal/platform"
	"vitalband/internal/redisx"
	"vitalband/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DeviceEventSource 设备事件来源（由会话管理器实现）
type DeviceEventSource interface {
	DeviceEvents() (<-chan domain.DeviceEvent, func())
	DataEvents() (<-chan domain.DataEvent, func())
	GetCapability(deviceID string) (*domain.DeviceCapability, error)
}

// PlatformUplink 平台上行通道（由平台管理器实现）
// 提交失败/离线时由实现方入队，不向网关返回失败
type PlatformUplink interface {
	SubmitVitalReading(ctx context.Context, reading platform.VitalReadingDTO) error
	RegisterDevice(ctx context.Context, registration platform.DeviceRegistrationDTO) error
}

// GatewayService 数据网关服务
// 消费会话管理器的数据事件流：刷新最新读数缓存、发布标准化数据到 Redis Stream、
// 转发到远程平台（或其离线队列）；设备连接事件触发平台侧设备注册
type GatewayService struct {
	sessions DeviceEventSource
	uplink   PlatformUplink
	cache    *repository.LatestReadingCache
	redis    *redis.Client
	exporter *export.VitalsExporter
	stream   string
	clientID string
	logger   *zap.Logger

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewGatewayService 创建数据网关服务
func NewGatewayService(
	sessions DeviceEventSource,
	uplink PlatformUplink,
	cache *repository.LatestReadingCache,
	redisClient *redis.Client,
	exporter *export.VitalsExporter,
	stream string,
	clientID string,
	logger *zap.Logger,
) *GatewayService {
	return &GatewayService{
		sessions: sessions,
		uplink:   uplink,
		cache:    cache,
		redis:    redisClient,
		exporter: exporter,
		stream:   stream,
		clientID: clientID,
		logger:   logger,
	}
}

// ExportVitalsReport 导出时间窗口内的体征历史报表（xlsx 字节流）
func (s *GatewayService) ExportVitalsReport(ctx context.Context, userID string, start, end time.Time) ([]byte, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("vitals exporter not configured")
	}
	return s.exporter.ExportVitals(ctx, userID, start, end)
}

// Start 订阅事件流并启动消费循环
func (s *GatewayService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	dataCh, unsubData := s.sessions.DataEvents()
	deviceCh, unsubDevice := s.sessions.DeviceEvents()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubData()
		defer unsubDevice()
		s.consume(runCtx, dataCh, deviceCh)
	}()

	s.logger.Info("Gateway service started", zap.String("stream", s.stream))
	return nil
}

// Stop 停止消费循环
func (s *GatewayService) Stop() {
	if s.runCancel != nil {
		s.runCancel()
	}
	s.wg.Wait()
	s.logger.Info("Gateway service stopped")
}

// consume 事件消费循环
func (s *GatewayService) consume(ctx context.Context, dataCh <-chan domain.DataEvent, deviceCh <-chan domain.DeviceEvent) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-dataCh:
			if !ok {
				return
			}
			s.handleDataEvent(ctx, ev)

		case ev, ok := <-deviceCh:
			if !ok {
				return
			}
			s.handleDeviceEvent(ctx, ev)
		}
	}
}

// handleDataEvent 处理数据事件
// 单次测量：缓存+流发布+平台上报；批量同步完成：仅流发布同步摘要
func (s *GatewayService) handleDataEvent(ctx context.Context, ev domain.DataEvent) {
	switch ev.Type {
	case domain.EventDataMeasured:
		if ev.Record == nil {
			return
		}

		if err := s.cache.SetLatest(ctx, ev.DeviceID, ev.Metric, ev.Record); err != nil {
			s.logger.Warn("Failed to update latest reading cache",
				zap.String("device_id", ev.DeviceID),
				zap.String("metric", string(ev.Metric)),
				zap.Error(err),
			)
		}

		if _, err := redisx.PublishJSONToStream(ctx, s.redis, s.stream, ev); err != nil {
			s.logger.Warn("Failed to publish reading to stream",
				zap.String("metric", string(ev.Metric)), zap.Error(err))
		}

		reading, err := s.readingDTO(ev)
		if err != nil {
			s.logger.Warn("Skipping platform upload for unrecognized record",
				zap.String("metric", string(ev.Metric)), zap.Error(err))
			return
		}
		if err := s.uplink.SubmitVitalReading(ctx, *reading); err != nil {
			s.logger.Warn("Platform submission failed",
				zap.String("metric", string(ev.Metric)), zap.Error(err))
		}

	case domain.EventDataSynced:
		if _, err := redisx.PublishJSONToStream(ctx, s.redis, s.stream, ev); err != nil {
			s.logger.Warn("Failed to publish sync summary to stream", zap.Error(err))
		}

	case domain.EventDataError:
		s.logger.Debug("Data collection error reported",
			zap.String("device_id", ev.DeviceID),
			zap.String("metric", string(ev.Metric)),
			zap.String("message", ev.Message),
		)
	}
}

// handleDeviceEvent 处理设备事件：连接成功时向平台注册设备档案
func (s *GatewayService) handleDeviceEvent(ctx context.Context, ev domain.DeviceEvent) {
	if ev.Type != domain.EventDeviceConnected {
		return
	}

	capability, err := s.sessions.GetCapability(ev.DeviceID)
	if err != nil {
		s.logger.Warn("Connected device has no capability profile",
			zap.String("device_id", ev.DeviceID), zap.Error(err))
		return
	}

	registration := platform.DeviceRegistrationDTO{
		ClientID: s.clientID,
		Device: platform.DeviceDTO{
			DeviceID:        capability.DeviceID,
			DisplayName:     capability.DisplayName,
			Model:           capability.Model,
			BatteryLevel:    capability.BatteryLevel,
			FirmwareVersion: capability.FirmwareVersion,
		},
	}
	if err := s.uplink.RegisterDevice(ctx, registration); err != nil {
		s.logger.Warn("Platform device registration failed",
			zap.String("device_id", ev.DeviceID), zap.Error(err))
	}
}

// readingDTO 领域记录转平台上报 DTO
// 记录整体序列化进 Payload，公共字段从 RecordMeta 提取
func (s *GatewayService) readingDTO(ev domain.DataEvent) (*platform.VitalReadingDTO, error) {
	meta, err := recordMeta(ev.Record)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(ev.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to build record payload: %w", err)
	}

	return &platform.VitalReadingDTO{
		ReadingID:  meta.ID,
		ClientID:   s.clientID,
		DeviceID:   ev.DeviceID,
		Metric:     string(ev.Metric),
		Timestamp:  meta.Timestamp,
		Validation: string(meta.Validation),
		Payload:    payload,
	}, nil
}

// recordMeta 提取记录公共字段
func recordMeta(record interface{}) (*domain.RecordMeta, error) {
	switch rec := record.(type) {
	case *domain.HeartRateRecord:
		return &rec.RecordMeta, nil
	case *domain.BloodPressureRecord:
		return &rec.RecordMeta, nil
	case *domain.BloodOxygenRecord:
		return &rec.RecordMeta, nil
	case *domain.BodyTemperatureRecord:
		return &rec.RecordMeta, nil
	case *domain.StressLevelRecord:
		return &rec.RecordMeta, nil
	case *domain.EcgRecord:
		return &rec.RecordMeta, nil
	case *domain.BloodGlucoseRecord:
		return &rec.RecordMeta, nil
	case *domain.ActivityRecord:
		return &rec.RecordMeta, nil
	case *domain.SleepRecord:
		return &rec.RecordMeta, nil
	default:
		return nil, fmt.Errorf("unrecognized record type %T", record)
	}
}
