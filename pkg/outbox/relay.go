package outbox

import (
	"context"
	"errors"
	"time"

	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
)

// Publisher — отправка сообщений в Kafka (реализуется kafka.Producer).
type Publisher interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// RelayConfig — настройки Relay.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries — после стольких неудач запись уходит в DLQ.
	MaxRetries int
	// Retention — сколько хранить опубликованные записи.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultRelayConfig возвращает настройки по умолчанию.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:    time.Second,
		BatchSize:       100,
		MaxRetries:      5,
		Retention:       7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Relay публикует записи outbox в Kafka.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
}

// NewRelay создает Relay.
func NewRelay(store Store, publisher Publisher, cfg RelayConfig) *Relay {
	def := DefaultRelayConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &Relay{store: store, publisher: publisher, cfg: cfg}
}

// Run блокирует до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With().Str("component", "outbox_relay").Logger()
	log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("Запуск Outbox Relay")

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Relay")
			return
		case <-poll.C:
			r.PublishPending(ctx)
		case <-cleanup.C:
			r.cleanup(ctx)
		}
	}
}

// PublishPending обрабатывает одну пачку и возвращает число опубликованных записей.
func (r *Relay) PublishPending(ctx context.Context) int {
	log := logger.FromContext(ctx)

	msgs, err := r.store.Pending(ctx, r.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения outbox")
		return 0
	}

	published := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return published
		}

		if msg.DeadLetter(r.cfg.MaxRetries) {
			r.deadLetter(ctx, msg)
			continue
		}

		if err := r.Publish(ctx, msg); err == nil {
			published++
		}
	}
	return published
}

// Publish отправляет одну запись и фиксирует результат в таблице.
func (r *Relay) Publish(ctx context.Context, msg *Message) error {
	log := logger.FromContext(ctx).With().
		Str("outbox_id", msg.ID).
		Str("topic", msg.Topic).
		Str("event_type", msg.EventType).
		Logger()

	err := r.publisher.SendMessage(ctx, toKafka(msg, msg.Topic))
	metrics.RecordOutboxPublish(msg.Topic, err)
	if err != nil {
		log.Warn().Err(err).Int("retry_count", msg.RetryCount).Msg("Не удалось опубликовать запись outbox")
		if markErr := r.store.MarkFailed(ctx, msg.ID, err); markErr != nil {
			log.Error().Err(markErr).Msg("Ошибка пометки outbox как failed")
		}
		return err
	}

	if err := r.store.MarkProcessed(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("Ошибка пометки outbox как обработанной")
		return err
	}

	log.Debug().Msg("Запись outbox опубликована")
	return nil
}

// deadLetter перекладывает запись в DLQ и выводит ее из очереди.
func (r *Relay) deadLetter(ctx context.Context, msg *Message) {
	log := logger.FromContext(ctx).With().
		Str("outbox_id", msg.ID).
		Str("aggregate_id", msg.AggregateID).
		Int("retry_count", msg.RetryCount).
		Logger()

	dlq := toKafka(msg, kafka.TopicDLQ)
	dlq.Headers["dlq_original_topic"] = msg.Topic
	if msg.LastError != nil {
		dlq.Headers["dlq_error"] = *msg.LastError
	}

	err := r.publisher.SendMessage(ctx, dlq)
	metrics.RecordOutboxPublish(kafka.TopicDLQ, err)
	if err != nil {
		log.Error().Err(err).Msg("Не удалось отправить запись outbox в DLQ")
		return
	}

	log.Warn().Msg("Dead letter: лимит попыток исчерпан, запись отправлена в DLQ")
	if err := r.store.MarkProcessed(ctx, msg.ID); err != nil && !errors.Is(err, ErrMessageNotFound) {
		log.Error().Err(err).Msg("Ошибка пометки dead letter")
	}
}

func (r *Relay) cleanup(ctx context.Context) {
	deleted, err := r.store.DeleteProcessedBefore(ctx, time.Now().UTC().Add(-r.cfg.Retention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		logger.Ctx(ctx).Info().Int64("deleted", deleted).Msg("Очистка опубликованных записей outbox")
	}
}

func toKafka(msg *Message, topic string) *kafka.Message {
	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[kafka.HeaderEventType] = msg.EventType

	return &kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: headers,
		Time:    time.Now(),
	}
}
