package outbox

import (
	"encoding/json"
	"time"
)

// Model — строка таблицы payment_outbox.
type Model struct {
	ID            string     `gorm:"column:id;type:varchar(36);primaryKey"`
	AggregateType string     `gorm:"column:aggregate_type;type:varchar(50);not null;index:idx_outbox_pending,priority:1"`
	AggregateID   string     `gorm:"column:aggregate_id;type:varchar(36);not null"`
	EventType     string     `gorm:"column:event_type;type:varchar(100);not null"`
	Topic         string     `gorm:"column:topic;type:varchar(100);not null"`
	MessageKey    string     `gorm:"column:message_key;type:varchar(100);not null"`
	Payload       []byte     `gorm:"column:payload;type:json;not null"`
	Headers       []byte     `gorm:"column:headers;type:json"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	ProcessedAt   *time.Time `gorm:"column:processed_at;index:idx_outbox_pending,priority:2"`
	RetryCount    int        `gorm:"column:retry_count;not null;default:0"`
	LastError     *string    `gorm:"column:last_error;type:text"`
}

// TableName задает имя таблицы.
func (Model) TableName() string {
	return "payment_outbox"
}

func (m *Model) toMessage() *Message {
	msg := &Message{
		ID:            m.ID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Topic:         m.Topic,
		Key:           m.MessageKey,
		Payload:       m.Payload,
		CreatedAt:     m.CreatedAt,
		ProcessedAt:   m.ProcessedAt,
		RetryCount:    m.RetryCount,
		LastError:     m.LastError,
	}
	if len(m.Headers) > 0 {
		// битые заголовки не мешают публикации тела
		_ = json.Unmarshal(m.Headers, &msg.Headers)
	}
	return msg
}

func modelFromMessage(msg *Message) (*Model, error) {
	m := &Model{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Topic:         msg.Topic,
		MessageKey:    msg.Key,
		Payload:       msg.Payload,
		CreatedAt:     msg.CreatedAt,
		ProcessedAt:   msg.ProcessedAt,
		RetryCount:    msg.RetryCount,
		LastError:     msg.LastError,
	}
	if m.AggregateType == "" {
		m.AggregateType = AggregatePayment
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if len(msg.Headers) > 0 {
		data, err := json.Marshal(msg.Headers)
		if err != nil {
			return nil, err
		}
		m.Headers = data
	}
	return m, nil
}
