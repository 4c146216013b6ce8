// Package kafka — обертки над segmentio/kafka-go для асинхронной интеграции платежного шлюза:
// прием команд на оплату/возврат, публикация ответов и доменных событий, DLQ.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/payment-gateway/pkg/logger"
)

// Топики.
const (
	// TopicPaymentCommands — входящие команды (PROCESS_PAYMENT, REFUND_PAYMENT).
	TopicPaymentCommands = "payment.commands"

	// TopicPaymentReplies — ответы на команды, ключ = correlation id команды.
	TopicPaymentReplies = "payment.replies"

	// TopicPaymentEvents — доменные события жизненного цикла платежа.
	TopicPaymentEvents = "payment.events"

	// TopicDLQ — сообщения, которые не удалось обработать после всех попыток.
	TopicDLQ = "dlq.payment"
)

// Заголовки сообщений.
const (
	HeaderTraceID       = "trace_id"
	HeaderCorrelationID = "correlation_id"
	HeaderTimestamp     = "timestamp"
	HeaderEventType     = "event_type"
)

// Config — параметры подключения.
type Config struct {
	Brokers       []string
	ConsumerGroup string
}

// Message — сообщение Kafka в удобном для обработчиков виде.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Headers   map[string]string
	Time      time.Time
}

func fromKafkaMessage(m kafka.Message) *Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Headers:   headers,
		Time:      m.Time,
	}
}

func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Topic:   m.Topic,
		Headers: headers,
		Time:    m.Time,
	}
}

// ContextFromHeaders переносит trace_id и correlation_id из заголовков в context.
func ContextFromHeaders(ctx context.Context, headers map[string]string) context.Context {
	return logger.NewContextWithIDs(ctx, headers[HeaderTraceID], headers[HeaderCorrelationID])
}

// HeadersFromContext собирает стандартные заголовки из context.
func HeadersFromContext(ctx context.Context) map[string]string {
	h := map[string]string{
		HeaderTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		h[HeaderTraceID] = traceID
	}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		h[HeaderCorrelationID] = correlationID
	}
	return h
}
