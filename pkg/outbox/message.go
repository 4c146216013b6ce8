// Package outbox — transactional outbox платежного шлюза.
//
// Изменение платежа и сообщение о нем (доменное событие или ответ на команду)
// записываются в одной транзакции MySQL. Relay читает таблицу и публикует
// сообщения в Kafka с гарантией at-least-once.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AggregatePayment — тип агрегата для всех сообщений шлюза.
const AggregatePayment = "payment"

// Message — запись outbox, ожидающая публикации.
type Message struct {
	ID            string
	AggregateType string
	AggregateID   string // id платежа
	EventType     string // payment.completed, payment.reply ...
	Topic         string
	Key           string // ключ партиционирования
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     *string
}

// NewMessage сериализует payload в JSON и готовит запись для вставки.
func NewMessage(aggregateID, eventType, topic, key string, payload any, headers map[string]string) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация payload %s: %w", eventType, err)
	}

	return &Message{
		ID:            uuid.NewString(),
		AggregateType: AggregatePayment,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		Key:           key,
		Payload:       data,
		Headers:       headers,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DeadLetter сообщает, исчерпаны ли попытки публикации.
func (m *Message) DeadLetter(maxRetries int) bool {
	return m.RetryCount >= maxRetries
}
