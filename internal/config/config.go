package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（平台实时通道）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// PlatformConfig 远程平台配置
// 两个互斥的远程护理平台（功能集不同），由 Features 描述差异
type PlatformConfig struct {
	Name     string
	BaseURL  string
	ClientID string
	Features PlatformFeatures
}

// PlatformFeatures 平台功能开关（静态配置，调用方必须先判断再操作）
type PlatformFeatures struct {
	RealtimeMonitoring bool
	BatchSync          bool
	MFARequired        bool
	CarePlans          bool
}

// CollectionConfig 数据采集配置
type CollectionConfig struct {
	// 各指标缺省采集间隔（设备未上报采样率时使用）
	HeartRateInterval     time.Duration
	BloodPressureInterval time.Duration
	BloodOxygenInterval   time.Duration
	TemperatureInterval   time.Duration
	StressInterval        time.Duration
}

// Config vitalband 网关服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 两个互斥的远程平台
	PlatformPrimary   PlatformConfig
	PlatformSecondary PlatformConfig
	ActivePlatform    string // "primary" 或 "secondary"

	Collection CollectionConfig

	// 本机绑定的用户身份（记录归属与平台上报用）
	User struct {
		ID         string
		DeviceType string
	}

	Sync struct {
		VitalsWindowDays  int           // 全量同步的生命体征时间窗口（天）
		QueueDrainTick    time.Duration // 离线队列定时排空间隔
		BatchChunkSize    int           // 批量提交分片大小
		TokenRefreshSlack time.Duration // Token 刷新提前量
	}

	Stream struct {
		VitalsStream string // 标准化数据发布的 Redis Stream
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库（默认值从环境变量覆盖）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitalband")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vitalband-gateway")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 平台 A：全功能（实时监控+批量同步+MFA+护理计划）
	cfg.PlatformPrimary.Name = getEnv("PLATFORM_PRIMARY_NAME", "careconnect")
	cfg.PlatformPrimary.BaseURL = getEnv("PLATFORM_PRIMARY_URL", "https://api.careconnect.example.com")
	cfg.PlatformPrimary.ClientID = getEnv("PLATFORM_PRIMARY_CLIENT_ID", "")
	cfg.PlatformPrimary.Features = PlatformFeatures{
		RealtimeMonitoring: getEnvBool("PLATFORM_PRIMARY_REALTIME", true),
		BatchSync:          getEnvBool("PLATFORM_PRIMARY_BATCH_SYNC", true),
		MFARequired:        getEnvBool("PLATFORM_PRIMARY_MFA", true),
		CarePlans:          getEnvBool("PLATFORM_PRIMARY_CARE_PLANS", true),
	}

	// 平台 B：精简功能（逐条提交，无实时通道）
	cfg.PlatformSecondary.Name = getEnv("PLATFORM_SECONDARY_NAME", "vitalcloud")
	cfg.PlatformSecondary.BaseURL = getEnv("PLATFORM_SECONDARY_URL", "https://api.vitalcloud.example.com")
	cfg.PlatformSecondary.ClientID = getEnv("PLATFORM_SECONDARY_CLIENT_ID", "")
	cfg.PlatformSecondary.Features = PlatformFeatures{
		RealtimeMonitoring: getEnvBool("PLATFORM_SECONDARY_REALTIME", false),
		BatchSync:          getEnvBool("PLATFORM_SECONDARY_BATCH_SYNC", false),
		MFARequired:        getEnvBool("PLATFORM_SECONDARY_MFA", false),
		CarePlans:          getEnvBool("PLATFORM_SECONDARY_CARE_PLANS", false),
	}

	cfg.ActivePlatform = getEnv("ACTIVE_PLATFORM", "primary")

	// 采集缺省间隔（设备未上报采样率时）
	cfg.Collection.HeartRateInterval = getEnvDuration("COLLECT_HR_INTERVAL", 60*time.Second)
	cfg.Collection.BloodPressureInterval = getEnvDuration("COLLECT_BP_INTERVAL", 300*time.Second)
	cfg.Collection.BloodOxygenInterval = getEnvDuration("COLLECT_SPO2_INTERVAL", 300*time.Second)
	cfg.Collection.TemperatureInterval = getEnvDuration("COLLECT_TEMP_INTERVAL", 300*time.Second)
	cfg.Collection.StressInterval = getEnvDuration("COLLECT_STRESS_INTERVAL", 300*time.Second)

	cfg.User.ID = getEnv("USER_ID", "local-user")
	cfg.User.DeviceType = getEnv("DEVICE_TYPE", "VITALBAND")

	cfg.Sync.VitalsWindowDays = getEnvInt("SYNC_VITALS_WINDOW_DAYS", 30)
	cfg.Sync.QueueDrainTick = getEnvDuration("SYNC_QUEUE_DRAIN_TICK", 60*time.Second)
	cfg.Sync.BatchChunkSize = getEnvInt("SYNC_BATCH_CHUNK_SIZE", 50)
	cfg.Sync.TokenRefreshSlack = getEnvDuration("SYNC_TOKEN_REFRESH_SLACK", 5*time.Minute)

	cfg.Stream.VitalsStream = getEnv("VITALS_STREAM", "vitals:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// ActivePlatformConfig 返回当前激活平台的配置
func (c *Config) ActivePlatformConfig() *PlatformConfig {
	if c.ActivePlatform == "secondary" {
		return &c.PlatformSecondary
	}
	return &c.PlatformPrimary
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
