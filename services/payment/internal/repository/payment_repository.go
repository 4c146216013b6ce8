// Package repository содержит реализацию доступа к данным для платежного шлюза.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/services/payment/internal/domain"
)

// PaymentRepository определяет интерфейс для работы с платежами в БД.
//
// Поиск одного платежа возвращает (nil, nil), если записи нет; поиск списка —
// пустой срез.
type PaymentRepository interface {
	// Save создает или обновляет платеж и в той же транзакции пишет события outbox.
	// Обновление проходит, только если версия в БД равна прочитанной.
	Save(ctx context.Context, payment *domain.Payment, events ...*outbox.Message) error

	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	FindByReference(ctx context.Context, paymentReference string) (*domain.Payment, error)
	FindByGatewayTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)

	FindByCustomerID(ctx context.Context, customerID string) ([]*domain.Payment, error)
	FindByMerchantID(ctx context.Context, merchantID string) ([]*domain.Payment, error)
	FindByStatus(ctx context.Context, status domain.PaymentStatus) ([]*domain.Payment, error)
	FindByGatewayProvider(ctx context.Context, provider string) ([]*domain.Payment, error)

	// List — платежи мерчанта с необязательными фильтрами, новые первыми.
	List(ctx context.Context, filter Filter) ([]*domain.Payment, error)

	// FindStuckProcessing возвращает платежи PROCESSING, не менявшиеся с before.
	FindStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error)

	ExistsByReference(ctx context.Context, paymentReference string) (bool, error)
	CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error)

	// Delete удаляет платеж; отсутствие записи не ошибка.
	Delete(ctx context.Context, id string) error
}

// Filter — параметры List.
type Filter struct {
	MerchantID string
	CustomerID string
	Status     domain.PaymentStatus
	Limit      int
	Offset     int
}

// =============================================================================
// GORM модель
// =============================================================================

// PaymentModel — GORM модель для таблицы payments.
type PaymentModel struct {
	ID                   string          `gorm:"column:id;type:varchar(36);primaryKey"`
	PaymentReference     string          `gorm:"column:payment_reference;type:varchar(100);not null;uniqueIndex"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Currency             string          `gorm:"column:currency;type:varchar(3);not null"`
	PaymentMethod        string          `gorm:"column:payment_method;type:varchar(30);not null"`
	GatewayProvider      string          `gorm:"column:gateway_provider;type:varchar(30);not null;index"`
	GatewayTransactionID *string         `gorm:"column:gateway_transaction_id;type:varchar(100);index"`
	ProviderReference    *string         `gorm:"column:provider_reference;type:varchar(100)"`
	RefundTransactionID  *string         `gorm:"column:refund_transaction_id;type:varchar(100)"`
	CustomerID           string          `gorm:"column:customer_id;type:varchar(100);not null;index"`
	MerchantID           string          `gorm:"column:merchant_id;type:varchar(100);not null;index:idx_payments_merchant_created,priority:1"`
	Description          string          `gorm:"column:description;type:varchar(500)"`
	FailureReason        *string         `gorm:"column:failure_reason;type:text"`
	Status               string          `gorm:"column:status;type:varchar(20);not null;index:idx_payments_status_updated,priority:1"`
	CreatedAt            time.Time       `gorm:"column:created_at;not null;index:idx_payments_merchant_created,priority:2"`
	UpdatedAt            *time.Time      `gorm:"column:updated_at;autoUpdateTime:false;index:idx_payments_status_updated,priority:2"`
	CompletedAt          *time.Time      `gorm:"column:completed_at"`
	Version              int64           `gorm:"column:version;not null;default:0"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentModel) TableName() string {
	return "payments"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PaymentModel) toDomain() *domain.Payment {
	return domain.Restore(domain.Snapshot{
		ID:                   m.ID,
		PaymentReference:     m.PaymentReference,
		Amount:               m.Amount,
		Currency:             m.Currency,
		PaymentMethod:        domain.PaymentMethod(m.PaymentMethod),
		GatewayProvider:      m.GatewayProvider,
		GatewayTransactionID: m.GatewayTransactionID,
		ProviderReference:    m.ProviderReference,
		RefundTransactionID:  m.RefundTransactionID,
		CustomerID:           m.CustomerID,
		MerchantID:           m.MerchantID,
		Description:          m.Description,
		FailureReason:        m.FailureReason,
		Status:               domain.PaymentStatus(m.Status),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		CompletedAt:          m.CompletedAt,
		Version:              m.Version,
	})
}

// paymentModelFromDomain конвертирует доменную сущность в GORM модель.
func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	s := p.Snapshot()
	return &PaymentModel{
		ID:                   s.ID,
		PaymentReference:     s.PaymentReference,
		Amount:               s.Amount,
		Currency:             s.Currency,
		PaymentMethod:        string(s.PaymentMethod),
		GatewayProvider:      s.GatewayProvider,
		GatewayTransactionID: s.GatewayTransactionID,
		ProviderReference:    s.ProviderReference,
		RefundTransactionID:  s.RefundTransactionID,
		CustomerID:           s.CustomerID,
		MerchantID:           s.MerchantID,
		Description:          s.Description,
		FailureReason:        s.FailureReason,
		Status:               string(s.Status),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
		CompletedAt:          s.CompletedAt,
		Version:              s.Version,
	}
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// paymentRepository — GORM реализация PaymentRepository.
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создает новый репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Save сохраняет агрегат и события одной транзакцией.
func (r *paymentRepository) Save(ctx context.Context, payment *domain.Payment, events ...*outbox.Message) error {
	model := paymentModelFromDomain(payment)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if payment.IsNew() {
			if err := tx.Create(model).Error; err != nil {
				if isDuplicateKeyError(err) {
					return domain.ErrDuplicateReference
				}
				return err
			}
		} else {
			result := tx.Model(&PaymentModel{}).
				Where("id = ? AND version = ?", model.ID, payment.PersistedVersion()).
				Updates(map[string]any{
					"status":                 model.Status,
					"gateway_transaction_id": model.GatewayTransactionID,
					"provider_reference":     model.ProviderReference,
					"refund_transaction_id":  model.RefundTransactionID,
					"failure_reason":         model.FailureReason,
					"updated_at":             model.UpdatedAt,
					"completed_at":           model.CompletedAt,
					"version":                model.Version,
				})
			if result.Error != nil {
				return result.Error
			}
			// Запись удалена или изменена конкурентно.
			if result.RowsAffected == 0 {
				return domain.ErrVersionConflict
			}
		}

		return outbox.Insert(tx, events...)
	})
	if err != nil {
		return err
	}

	payment.MarkPersisted()
	return nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *paymentRepository) FindByReference(ctx context.Context, paymentReference string) (*domain.Payment, error) {
	return r.findOne(ctx, "payment_reference = ?", paymentReference)
}

func (r *paymentRepository) FindByGatewayTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.findOne(ctx, "gateway_transaction_id = ?", transactionID)
}

func (r *paymentRepository) FindByCustomerID(ctx context.Context, customerID string) ([]*domain.Payment, error) {
	return r.findMany(r.db.WithContext(ctx).Where("customer_id = ?", customerID))
}

func (r *paymentRepository) FindByMerchantID(ctx context.Context, merchantID string) ([]*domain.Payment, error) {
	return r.findMany(r.db.WithContext(ctx).Where("merchant_id = ?", merchantID))
}

func (r *paymentRepository) FindByStatus(ctx context.Context, status domain.PaymentStatus) ([]*domain.Payment, error) {
	return r.findMany(r.db.WithContext(ctx).Where("status = ?", string(status)))
}

func (r *paymentRepository) FindByGatewayProvider(ctx context.Context, provider string) ([]*domain.Payment, error) {
	return r.findMany(r.db.WithContext(ctx).Where("gateway_provider = ?", provider))
}

func (r *paymentRepository) List(ctx context.Context, filter Filter) ([]*domain.Payment, error) {
	q := r.db.WithContext(ctx).Where("merchant_id = ?", filter.MerchantID)
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	return r.findMany(q)
}

func (r *paymentRepository) FindStuckProcessing(ctx context.Context, before time.Time, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel

	if err := r.db.WithContext(ctx).
		Where("status = ? AND COALESCE(updated_at, created_at) < ?", string(domain.StatusProcessing), before).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainList(models), nil
}

func (r *paymentRepository) ExistsByReference(ctx context.Context, paymentReference string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("payment_reference = ?", paymentReference).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *paymentRepository) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *paymentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&PaymentModel{}).Error
}

func (r *paymentRepository) findOne(ctx context.Context, query string, arg any) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return model.toDomain(), nil
}

func (r *paymentRepository) findMany(q *gorm.DB) ([]*domain.Payment, error) {
	var models []PaymentModel
	if err := q.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

func toDomainList(models []PaymentModel) []*domain.Payment {
	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		payments = append(payments, models[i].toDomain())
	}
	return payments
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
