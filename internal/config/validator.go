package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func Validate(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateTracking(cfg.Tracking); err != nil {
		errs = append(errs, err)
	}

	if err := validateKafka(cfg.Broker.Kafka); err != nil {
		errs = append(errs, err)
	}

	if err := validateWarehouse(cfg.Warehouse); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.AccessToken == "" {
		return &ValidationError{
			Field:   "server.access_token",
			Message: "access token is required",
		}
	}

	return nil
}

func validateTracking(cfg TrackingConfig) error {
	if cfg.ProjectToken == "" {
		return &ValidationError{
			Field:   "tracking.project_token",
			Message: "tracking project token is required",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one kafka broker is required",
		}
	}

	for _, b := range cfg.Brokers {
		if strings.TrimSpace(b) == "" {
			return &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "kafka topic is required",
		}
	}

	return nil
}

func validateWarehouse(cfg WarehouseConfig) error {
	if cfg.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "warehouse.mongodb.uri",
			Message: "mongodb uri is required",
		}
	}

	if cfg.MongoDB.Database == "" {
		return &ValidationError{
			Field:   "warehouse.mongodb.database",
			Message: "mongodb database is required",
		}
	}

	return nil
}
