package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/payment-gateway/pkg/logger"
)

// MessageHandler обрабатывает одно сообщение. Context уже содержит trace_id и correlation_id.
type MessageHandler func(ctx context.Context, msg *Message) error

// DLQPublisher — куда отправлять сообщения, исчерпавшие попытки.
type DLQPublisher interface {
	SendToDLQ(ctx context.Context, original *Message, processingErr error) error
}

// Consumer читает топик в составе consumer group и коммитит offset вручную
// после обработки (или отправки в DLQ).
type Consumer struct {
	reader *kafka.Reader
	dlq    DLQPublisher
	topic  string
}

// NewConsumer создает Consumer для topic.
func NewConsumer(cfg Config, topic string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("не указаны брокеры Kafka")
	}
	if topic == "" {
		return nil, fmt.Errorf("не указан топик")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("не указан group ID")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     100 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("group_id", cfg.ConsumerGroup).
		Msg("Создан Kafka Consumer")

	return &Consumer{reader: reader, topic: topic}, nil
}

// SetDLQ включает отправку необработанных сообщений в DLQ.
func (c *Consumer) SetDLQ(p DLQPublisher) {
	c.dlq = p
}

// Consume читает сообщения до отмены ctx.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.Info().Str("topic", c.topic).Msg("Запуск чтения сообщений из Kafka")

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info().Str("topic", c.topic).Msg("Остановка Kafka Consumer")
				return ctx.Err()
			}
			logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка чтения сообщения из Kafka")
			continue
		}

		msg := fromKafkaMessage(km)
		msgCtx := ContextFromHeaders(ctx, msg.Headers)

		if err := handler(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Ошибка обработки сообщения")

			if c.dlq != nil {
				if dlqErr := c.dlq.SendToDLQ(msgCtx, msg, err); dlqErr != nil {
					logger.Error().Err(dlqErr).Msg("Ошибка отправки в DLQ")
				}
			}
		}

		// Коммит независимо от результата: ошибочные сообщения уже в DLQ.
		if err := c.reader.CommitMessages(ctx, km); err != nil {
			logger.Error().Err(err).Str("topic", c.topic).Msg("Ошибка коммита offset")
		}
	}
}

// ConsumeWithRetry повторяет обработку до maxRetries раз с экспоненциальной задержкой
// 100ms, 200ms, 400ms... и только потом отдает сообщение в DLQ.
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxRetries int) error {
	return c.Consume(ctx, WithRetry(handler, maxRetries, 100*time.Millisecond))
}

// WithRetry оборачивает handler повторами.
func WithRetry(handler MessageHandler, maxRetries int, baseDelay time.Duration) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				delay := baseDelay * time.Duration(1<<(attempt-1))
				logger.Ctx(ctx).Warn().
					Int("attempt", attempt).
					Str("key", string(msg.Key)).
					Dur("delay", delay).
					Msg("Повторная попытка обработки сообщения")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if lastErr = handler(ctx, msg); lastErr == nil {
				return nil
			}
		}
		return fmt.Errorf("исчерпаны попытки обработки: %w", lastErr)
	}
}

// Lag — отставание от конца топика.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

// Close закрывает reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия consumer: %w", err)
	}
	logger.Info().Str("topic", c.topic).Msg("Kafka Consumer закрыт")
	return nil
}
