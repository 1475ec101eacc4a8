package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	RateLimit RateLimitConfig
	Hub       HubConfig
	Identity  IdentityConfig
	Cache     CacheConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// HubConfig tunes the realtime side.
type HubConfig struct {
	SendQueueSize      int
	InboxSize          int
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	MaxMessageBytes    int64
	InboundRPS         float64
	InboundBurst       int
	AutoCreate         bool
	RosterSyncInterval time.Duration
	EventBufferSize    int
}

// IdentityConfig decides which users carry the admin role.
type IdentityConfig struct {
	AdminUserIDs    []string
	TokenSecret     string
	LegacyAdminName bool
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "pagesync")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "pagesync")
	v.SetDefault("RABBITMQ_EXCHANGE", "pagesync.events")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("HUB_SEND_QUEUE", 64)
	v.SetDefault("HUB_INBOX", 256)
	v.SetDefault("HUB_WRITE_TIMEOUT_SECONDS", 10)
	v.SetDefault("HUB_PING_SECONDS", 20)
	v.SetDefault("HUB_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("HUB_INBOUND_RPS", 20)
	v.SetDefault("HUB_INBOUND_BURST", 40)
	v.SetDefault("HUB_AUTO_CREATE", false)
	v.SetDefault("HUB_ROSTER_SYNC_SECONDS", 5)
	v.SetDefault("HUB_EVENT_BUFFER", 1024)
	v.SetDefault("CACHE_SIZE", 512)
	v.SetDefault("CACHE_TTL_SECONDS", 600)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Hub: HubConfig{
			SendQueueSize:      v.GetInt("HUB_SEND_QUEUE"),
			InboxSize:          v.GetInt("HUB_INBOX"),
			WriteTimeout:       time.Duration(v.GetInt("HUB_WRITE_TIMEOUT_SECONDS")) * time.Second,
			PingInterval:       time.Duration(v.GetInt("HUB_PING_SECONDS")) * time.Second,
			MaxMessageBytes:    v.GetInt64("HUB_MAX_MESSAGE_BYTES"),
			InboundRPS:         v.GetFloat64("HUB_INBOUND_RPS"),
			InboundBurst:       v.GetInt("HUB_INBOUND_BURST"),
			AutoCreate:         v.GetBool("HUB_AUTO_CREATE"),
			RosterSyncInterval: time.Duration(v.GetInt("HUB_ROSTER_SYNC_SECONDS")) * time.Second,
			EventBufferSize:    v.GetInt("HUB_EVENT_BUFFER"),
		},
		Identity: IdentityConfig{
			AdminUserIDs:    splitList(v.GetString("IDENTITY_ADMIN_USER_IDS")),
			TokenSecret:     os.Getenv("IDENTITY_TOKEN_SECRET"),
			LegacyAdminName: v.GetBool("IDENTITY_LEGACY_ADMIN_NAME"),
		},
		Cache: CacheConfig{
			Size: v.GetInt("CACHE_SIZE"),
			TTL:  time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
