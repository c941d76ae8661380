package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.access_token", "SERVER_ACCESS_TOKEN")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("tracking.api_url", "TRACKING_API_URL")
	viper.BindEnv("tracking.project_token", "TRACKING_PROJECT_TOKEN")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")

	viper.BindEnv("warehouse.mongodb.uri", "WAREHOUSE_MONGODB_URI")
	viper.BindEnv("warehouse.mongodb.database", "WAREHOUSE_MONGODB_DATABASE")
	viper.BindEnv("warehouse.mongodb.collection", "WAREHOUSE_MONGODB_COLLECTION")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("geo.api_url", "GEO_API_URL")
	viper.BindEnv("geo.cache_ttl_seconds", "GEO_CACHE_TTL_SECONDS")

	viper.BindEnv("providers.btc_balance_url", "PROVIDERS_BTC_BALANCE_URL")
	viper.BindEnv("providers.sats_balance_url", "PROVIDERS_SATS_BALANCE_URL")
	viper.BindEnv("providers.creator_status_url", "PROVIDERS_CREATOR_STATUS_URL")
	viper.BindEnv("providers.timeout_ms", "PROVIDERS_TIMEOUT_MS")

	viper.BindEnv("sentry.client_secret", "SENTRY_CLIENT_SECRET")
	viper.BindEnv("sentry.chat_webhook_url", "SENTRY_CHAT_WEBHOOK_URL")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	return nil
}
