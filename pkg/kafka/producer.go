package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/payment-gateway/pkg/logger"
)

// Producer публикует сообщения в Kafka синхронно.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer создает Producer. Топик задается в каждом сообщении.
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // один ключ (id платежа) — одна партиция
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	logger.Info().Strs("brokers", cfg.Brokers).Msg("Создан Kafka Producer")

	return &Producer{writer: writer}, nil
}

// Send публикует value с ключом key. Заголовки trace_id, correlation_id и timestamp
// берутся из context, extra дополняет или перекрывает их.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte, extra map[string]string) error {
	headers := HeadersFromContext(ctx)
	for k, v := range extra {
		headers[k] = v
	}

	return p.SendMessage(ctx, &Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	})
}

// SendMessage публикует подготовленное сообщение как есть.
func (p *Producer) SendMessage(ctx context.Context, msg *Message) error {
	if err := p.writer.WriteMessages(ctx, msg.toKafkaMessage()); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Msg("Ошибка отправки сообщения в Kafka")
		return fmt.Errorf("ошибка отправки в Kafka: %w", err)
	}

	logger.Ctx(ctx).Debug().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Msg("Сообщение отправлено в Kafka")
	return nil
}

// SendToDLQ перекладывает необработанное сообщение в DLQ с описанием ошибки.
func (p *Producer) SendToDLQ(ctx context.Context, original *Message, processingErr error) error {
	headers := make(map[string]string, len(original.Headers)+3)
	for k, v := range original.Headers {
		headers[k] = v
	}
	headers["dlq_error"] = processingErr.Error()
	headers["dlq_original_topic"] = original.Topic
	headers["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	return p.SendMessage(ctx, &Message{
		Topic:   TopicDLQ,
		Key:     original.Key,
		Value:   original.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

// Close сбрасывает буферы и закрывает writer.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия producer: %w", err)
	}
	logger.Info().Msg("Kafka Producer закрыт")
	return nil
}
