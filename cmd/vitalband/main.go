package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vitalband/internal/bandsdk"
	"vitalband/internal/config"
	"vitalband/internal/database"
	"vitalband/internal/device"
	"vitalband/internal/export"
	"vitalband/internal/logger"
	"vitalband/internal/mapper"
	"vitalband/internal/platform"
	"vitalband/internal/redisx"
	"vitalband/internal/repository"
	"vitalband/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitalband")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Starting vitalband gateway",
		zap.String("active_platform", cfg.ActivePlatformConfig().Name),
		zap.String("user_id", cfg.User.ID),
	)

	// 3. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4. 连接 Redis
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	defer redisClient.Close()

	// 5. 存储层
	vitalsRepo := repository.NewPostgresVitalsRepository(db)
	capRepo := repository.NewPostgresCapabilitiesRepository(db)
	latestCache := repository.NewLatestReadingCache(redisClient, 10*time.Minute, log)

	// 6. 设备会话管理器
	// TODO: 厂家 BLE 桥接就绪后替换模拟适配器
	adapter := bandsdk.NewSimAdapter(log.Named("bandsdk"))
	recordMapper := mapper.NewMapper(cfg.User.ID, cfg.User.DeviceType)
	sessions := device.NewSessionManager(adapter, recordMapper, capRepo, vitalsRepo,
		&cfg.Collection, log.Named("device"))

	// 7. 平台集成管理器
	clients := map[string]platform.PlatformAPI{
		"primary":   platform.NewClient(&cfg.PlatformPrimary, log.Named("platform")),
		"secondary": platform.NewClient(&cfg.PlatformSecondary, log.Named("platform")),
	}
	dialer := platform.NewMQTTRealtimeDialer(&cfg.MQTT, cfg.ActivePlatformConfig().Name,
		log.Named("realtime"))
	platforms := platform.NewManager(cfg, clients, dialer, log.Named("platform"))

	// 8. 数据网关
	exporter := export.NewVitalsExporter(vitalsRepo, log.Named("export"))
	gateway := service.NewGatewayService(sessions, platforms, latestCache, redisClient,
		exporter, cfg.Stream.VitalsStream, cfg.ActivePlatformConfig().ClientID, log.Named("gateway"))

	// 9. 启动
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sessions.Start(ctx); err != nil {
		log.Fatal("Failed to start session manager", zap.Error(err))
	}
	if err := platforms.Start(ctx); err != nil {
		log.Fatal("Failed to start platform manager", zap.Error(err))
	}
	if err := gateway.Start(ctx); err != nil {
		log.Fatal("Failed to start gateway service", zap.Error(err))
	}

	log.Info("vitalband gateway started")

	// 10. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// 11. 按依赖反序停止
	gateway.Stop()
	platforms.Stop()
	sessions.Stop()
	cancel()

	log.Info("vitalband gateway stopped")
}
