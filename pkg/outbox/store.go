package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrMessageNotFound — запись outbox не найдена.
var ErrMessageNotFound = errors.New("запись outbox не найдена")

// Store — операции relay над таблицей outbox.
type Store interface {
	Pending(ctx context.Context, limit int) ([]*Message, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, err error) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// GormStore — MySQL реализация Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore создает хранилище outbox.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert добавляет сообщения в рамках переданной транзакции.
// Вызывается репозиторием платежей вместе с сохранением агрегата.
func Insert(tx *gorm.DB, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	models := make([]*Model, 0, len(msgs))
	for _, msg := range msgs {
		m, err := modelFromMessage(msg)
		if err != nil {
			return fmt.Errorf("outbox %s: %w", msg.EventType, err)
		}
		models = append(models, m)
	}

	if err := tx.Create(models).Error; err != nil {
		return fmt.Errorf("вставка в outbox: %w", err)
	}
	return nil
}

// Create добавляет одно сообщение вне транзакции агрегата.
func (s *GormStore) Create(ctx context.Context, msg *Message) error {
	return Insert(s.db.WithContext(ctx), msg)
}

// Pending возвращает неопубликованные записи. Записи с большим retry_count идут последними.
func (s *GormStore) Pending(ctx context.Context, limit int) ([]*Message, error) {
	var models []Model
	err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND processed_at IS NULL", AggregatePayment).
		Order("retry_count ASC, created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	msgs := make([]*Message, len(models))
	for i := range models {
		msgs[i] = models[i].toMessage()
	}
	return msgs, nil
}

// MarkProcessed проставляет processed_at.
func (s *GormStore) MarkProcessed(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Update("processed_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkFailed увеличивает retry_count и сохраняет текст ошибки.
func (s *GormStore) MarkFailed(ctx context.Context, id string, cause error) error {
	res := s.db.WithContext(ctx).Model(&Model{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  cause.Error(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteProcessedBefore удаляет опубликованные записи пачками по 1000.
func (s *GormStore) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND processed_at IS NOT NULL AND processed_at < ?", AggregatePayment, before).
		Limit(1000).
		Delete(&Model{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
