package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Poll     PollConfig     `mapstructure:"poll"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	VideoPrefix     string `mapstructure:"video_prefix"`
	AdPrefix        string `mapstructure:"ad_prefix"`
}

// GatewayConfig 描述引擎访问设备网关（布局/链接存储）的方式。
// 单机部署时 BaseURL 指向本进程的 API 端口。
type GatewayConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	InternalSecret   string `mapstructure:"internal_secret"`
	BatchSyncEnabled bool   `mapstructure:"batch_sync_enabled"`
}

// AuthConfig 指向外部签发系统的 JWT 公钥；私钥仅 admin CLI 签发调试令牌时需要。
type AuthConfig struct {
	PublicKeyFile  string `mapstructure:"public_key_file"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

// PollConfig 控制两个轮询循环的节奏。
// 下载进度对延迟敏感，与慢循环独立，不可合并为同一节奏。
type PollConfig struct {
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	FleetInterval    time.Duration `mapstructure:"fleet_interval"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr 返回 host:port 形式的 Redis 地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "signcast")
	v.SetDefault("database.user", "signcast")
	v.SetDefault("database.password", "signcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "signcast-content")
	v.SetDefault("minio.video_prefix", "videos/")
	v.SetDefault("minio.ad_prefix", "ads/")
	v.SetDefault("gateway.base_url", "http://localhost:8080")
	v.SetDefault("gateway.batch_sync_enabled", true)
	v.SetDefault("poll.progress_interval", 2*time.Second)
	v.SetDefault("poll.fleet_interval", 30*time.Second)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                   "API_PORT",
		"api.allowed_origins":        "API_ALLOWED_ORIGINS",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "POSTGRES_DB",
		"database.user":              "POSTGRES_USER",
		"database.password":          "POSTGRES_PASSWORD",
		"database.sslmode":           "DATABASE_SSLMODE",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"minio.endpoint":             "MINIO_ENDPOINT",
		"minio.access_key_id":        "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":    "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":              "MINIO_USE_SSL",
		"minio.bucket":               "MINIO_BUCKET",
		"minio.video_prefix":         "MINIO_VIDEO_PREFIX",
		"minio.ad_prefix":            "MINIO_AD_PREFIX",
		"gateway.base_url":           "GATEWAY_BASE_URL",
		"gateway.internal_secret":    "GATEWAY_INTERNAL_SECRET",
		"gateway.batch_sync_enabled": "GATEWAY_BATCH_SYNC_ENABLED",
		"auth.public_key_file":       "AUTH_PUBLIC_KEY_FILE",
		"auth.private_key_file":      "AUTH_PRIVATE_KEY_FILE",
		"poll.progress_interval":     "POLL_PROGRESS_INTERVAL",
		"poll.fleet_interval":        "POLL_FLEET_INTERVAL",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway base url is required")
	}
	if cfg.Poll.ProgressInterval <= 0 {
		return errors.New("poll progress interval must be positive")
	}
	if cfg.Poll.FleetInterval <= 0 {
		return errors.New("poll fleet interval must be positive")
	}
	if cfg.Poll.ProgressInterval >= cfg.Poll.FleetInterval {
		return errors.New("poll progress interval must be shorter than fleet interval")
	}
	return nil
}
