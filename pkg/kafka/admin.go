package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"example.com/payment-gateway/pkg/logger"
)

// TopicSpec — параметры создаваемого топика.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// DefaultTopics — топики платежного шлюза.
func DefaultTopics() []TopicSpec {
	return []TopicSpec{
		{Name: TopicPaymentCommands, Partitions: 3, ReplicationFactor: 1},
		{Name: TopicPaymentReplies, Partitions: 3, ReplicationFactor: 1},
		{Name: TopicPaymentEvents, Partitions: 3, ReplicationFactor: 1},
		{Name: TopicDLQ, Partitions: 1, ReplicationFactor: 1},
	}
}

// EnsureTopics создает недостающие топики через controller кластера.
// Уже существующие топики не считаются ошибкой.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicSpec) error {
	if len(brokers) == 0 {
		return fmt.Errorf("не указаны брокеры Kafka")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("подключение к Kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("поиск controller: %w", err)
	}

	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("подключение к controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
		})
	}

	if err := ctrl.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("создание топиков: %w", err)
	}

	logger.Info().Int("topics", len(configs)).Msg("Топики Kafka проверены")
	return nil
}
