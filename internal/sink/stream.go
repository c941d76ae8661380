package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"beacon/internal/config"
	"beacon/internal/constants"
	"beacon/internal/logger"
	"beacon/pkg/tracing"
)

// KafkaStreamSink publishes enriched event envelopes to a Kafka topic. The
// topic is checked/created exactly once at construction, before any
// dispatcher use.
type KafkaStreamSink struct {
	writer *kafka.Writer
	topic  string
	logger logger.Logger
}

func NewKafkaStreamSink(ctx context.Context, cfg config.KafkaConfig, log logger.Logger) (*KafkaStreamSink, error) {
	if err := ensureTopic(ctx, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s: %w", cfg.Topic, err)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}

	return &KafkaStreamSink{
		writer: w,
		topic:  cfg.Topic,
		logger: log,
	}, nil
}

func (s *KafkaStreamSink) Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error) {
	headers := make([]kafka.Header, 0, len(attributes)+2)
	for k, v := range attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = tracing.InjectTraceContext(ctx, headers)

	key := uuid.NewString()

	err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
	})
	if err != nil {
		return "", fmt.Errorf("failed to write kafka message: %w", err)
	}

	return key, nil
}

func (s *KafkaStreamSink) Close() error {
	return s.writer.Close()
}

func ensureTopic(ctx context.Context, cfg config.KafkaConfig, log logger.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	log.WarnwCtx(ctx, "Stream topic does not exist, creating it",
		"topic", cfg.Topic,
	)

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to resolve controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	log.InfowCtx(ctx, "Created stream topic",
		"topic", cfg.Topic,
	)
	return nil
}
