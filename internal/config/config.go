package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Tracking       TrackingConfig
	Broker         BrokerConfig
	Warehouse      WarehouseConfig
	Redis          RedisConfig
	Geo            GeoConfig
	Providers      ProvidersConfig
	Sentry         SentryConfig
	Logging        LoggingConfig
	RateLimit      RateLimitConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int    `mapstructure:"port"`
	AccessToken         string `mapstructure:"access_token"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

// TrackingConfig configures the analytics platform (primary sink).
type TrackingConfig struct {
	APIURL       string `mapstructure:"api_url"`
	ProjectToken string `mapstructure:"project_token"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WarehouseConfig struct {
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GeoConfig struct {
	APIURL          string `mapstructure:"api_url"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// ProvidersConfig holds URL templates for the fact providers; `{principal}`
// is replaced with the identity being queried.
type ProvidersConfig struct {
	BTCBalanceURL    string `mapstructure:"btc_balance_url"`
	SatsBalanceURL   string `mapstructure:"sats_balance_url"`
	CreatorStatusURL string `mapstructure:"creator_status_url"`
	TimeoutMs        int    `mapstructure:"timeout_ms"`
}

type SentryConfig struct {
	ClientSecret   string `mapstructure:"client_secret"`
	ChatWebhookURL string `mapstructure:"chat_webhook_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TracingConfig struct {
	Enabled     bool       `mapstructure:"enabled"`
	ServiceName string     `mapstructure:"service_name"`
	OTLP        OTLPConfig `mapstructure:"otlp"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}
