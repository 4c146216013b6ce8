package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment — агрегат платежа. Поля меняются только методами переходов.
//
//	PENDING ──▶ PROCESSING ──▶ COMPLETED ──▶ REFUNDED
//	   │             │
//	   └──▶ FAILED / CANCELLED ◀──┘
type Payment struct {
	id                   string
	paymentReference     string
	amount               decimal.Decimal
	currency             string
	paymentMethod        PaymentMethod
	gatewayProvider      string
	gatewayTransactionID *string
	providerReference    *string
	refundTransactionID  *string
	customerID           string
	merchantID           string
	description          string
	failureReason        *string
	status               PaymentStatus
	createdAt            time.Time
	updatedAt            *time.Time
	completedAt          *time.Time
	version              int64

	// версия, с которой агрегат был прочитан из хранилища
	persistedVersion int64
	persisted        bool
}

// NewPayment создает платеж в статусе PENDING.
func NewPayment(
	paymentReference string,
	amount decimal.Decimal,
	currency string,
	method PaymentMethod,
	gatewayProvider string,
	customerID string,
	merchantID string,
	description string,
) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, NewPaymentError("Payment amount must be positive")
	}
	if isBlank(currency) {
		return nil, NewPaymentError("Currency is required")
	}
	if isBlank(string(method)) {
		return nil, NewPaymentError("Payment method is required")
	}
	if isBlank(gatewayProvider) {
		return nil, NewPaymentError("Gateway provider is required")
	}
	if isBlank(customerID) {
		return nil, NewPaymentError("Customer ID is required")
	}
	if isBlank(merchantID) {
		return nil, NewPaymentError("Merchant ID is required")
	}

	return &Payment{
		id:               uuid.NewString(),
		paymentReference: paymentReference,
		amount:           amount,
		currency:         currency,
		paymentMethod:    method,
		gatewayProvider:  gatewayProvider,
		customerID:       customerID,
		merchantID:       merchantID,
		description:      description,
		status:           StatusPending,
		createdAt:        now(),
	}, nil
}

// MarkAsProcessing: PENDING → PROCESSING.
func (p *Payment) MarkAsProcessing() error {
	if p.status != StatusPending {
		return NewPaymentError("Payment can only be marked as processing from pending status")
	}
	p.status = StatusProcessing
	p.touch()
	return nil
}

// MarkAsCompleted: PROCESSING → COMPLETED, фиксирует транзакцию провайдера.
func (p *Payment) MarkAsCompleted(gatewayTransactionID string) error {
	if p.status != StatusProcessing {
		return NewPaymentError("Payment can only be completed from processing status")
	}
	t := now()
	p.status = StatusCompleted
	p.gatewayTransactionID = &gatewayTransactionID
	p.completedAt = &t
	p.touch()
	return nil
}

// RecordProviderReference запоминает id операции у провайдера, пока платеж
// в PROCESSING и провайдер не дал окончательного ответа.
func (p *Payment) RecordProviderReference(reference string) error {
	if p.status != StatusProcessing {
		return NewPaymentError("Provider reference can only be recorded while processing")
	}
	if isBlank(reference) {
		return NewPaymentError("Provider reference is required")
	}
	p.providerReference = &reference
	p.touch()
	return nil
}

// MarkAsFailed переводит в FAILED из любого статуса, кроме COMPLETED.
func (p *Payment) MarkAsFailed(reason string) error {
	if p.status == StatusCompleted {
		return NewPaymentError("Cannot fail a completed payment")
	}
	p.status = StatusFailed
	p.failureReason = &reason
	p.touch()
	return nil
}

// Cancel переводит в CANCELLED из любого статуса, кроме COMPLETED.
func (p *Payment) Cancel() error {
	if p.status == StatusCompleted {
		return NewPaymentError("Cannot cancel a completed payment")
	}
	p.status = StatusCancelled
	p.touch()
	return nil
}

// MarkAsRefunded: COMPLETED → REFUNDED. Вызывается только после
// подтверждения возврата провайдером.
func (p *Payment) MarkAsRefunded(refundTransactionID string) error {
	if p.status != StatusCompleted {
		return NewPaymentError("Payment can only be refunded from completed status")
	}
	p.status = StatusRefunded
	p.refundTransactionID = &refundTransactionID
	p.touch()
	return nil
}

func (p *Payment) touch() {
	t := now()
	p.updatedAt = &t
	p.version++
}

func (p *Payment) IsCompleted() bool { return p.status == StatusCompleted }
func (p *Payment) IsPending() bool   { return p.status == StatusPending }
func (p *Payment) IsFailed() bool    { return p.status == StatusFailed }

// ProviderTransactionID — id для запросов к провайдеру: транзакция или
// сохраненная ссылка незавершенной операции.
func (p *Payment) ProviderTransactionID() string {
	if p.gatewayTransactionID != nil {
		return *p.gatewayTransactionID
	}
	if p.providerReference != nil {
		return *p.providerReference
	}
	return ""
}

func (p *Payment) ID() string                    { return p.id }
func (p *Payment) PaymentReference() string      { return p.paymentReference }
func (p *Payment) Amount() decimal.Decimal       { return p.amount }
func (p *Payment) Currency() string              { return p.currency }
func (p *Payment) PaymentMethod() PaymentMethod  { return p.paymentMethod }
func (p *Payment) GatewayProvider() string       { return p.gatewayProvider }
func (p *Payment) GatewayTransactionID() *string { return p.gatewayTransactionID }
func (p *Payment) RefundTransactionID() *string  { return p.refundTransactionID }
func (p *Payment) ProviderReference() *string    { return p.providerReference }
func (p *Payment) CustomerID() string            { return p.customerID }
func (p *Payment) MerchantID() string            { return p.merchantID }
func (p *Payment) Description() string           { return p.description }
func (p *Payment) FailureReason() *string        { return p.failureReason }
func (p *Payment) Status() PaymentStatus         { return p.status }
func (p *Payment) CreatedAt() time.Time          { return p.createdAt }
func (p *Payment) UpdatedAt() *time.Time         { return p.updatedAt }
func (p *Payment) CompletedAt() *time.Time       { return p.completedAt }
func (p *Payment) Version() int64                { return p.version }

// IsNew — агрегат еще ни разу не сохранялся.
func (p *Payment) IsNew() bool { return !p.persisted }

// PersistedVersion — версия в хранилище, ожидаемая при следующем UPDATE.
func (p *Payment) PersistedVersion() int64 { return p.persistedVersion }

// MarkPersisted вызывается репозиторием после успешной записи.
func (p *Payment) MarkPersisted() {
	p.persisted = true
	p.persistedVersion = p.version
}

// Snapshot — плоское представление агрегата для слоя хранения.
type Snapshot struct {
	ID                   string
	PaymentReference     string
	Amount               decimal.Decimal
	Currency             string
	PaymentMethod        PaymentMethod
	GatewayProvider      string
	GatewayTransactionID *string
	ProviderReference    *string
	RefundTransactionID  *string
	CustomerID           string
	MerchantID           string
	Description          string
	FailureReason        *string
	Status               PaymentStatus
	CreatedAt            time.Time
	UpdatedAt            *time.Time
	CompletedAt          *time.Time
	Version              int64
}

// Snapshot возвращает копию состояния.
func (p *Payment) Snapshot() Snapshot {
	return Snapshot{
		ID:                   p.id,
		PaymentReference:     p.paymentReference,
		Amount:               p.amount,
		Currency:             p.currency,
		PaymentMethod:        p.paymentMethod,
		GatewayProvider:      p.gatewayProvider,
		GatewayTransactionID: p.gatewayTransactionID,
		ProviderReference:    p.providerReference,
		RefundTransactionID:  p.refundTransactionID,
		CustomerID:           p.customerID,
		MerchantID:           p.merchantID,
		Description:          p.description,
		FailureReason:        p.failureReason,
		Status:               p.status,
		CreatedAt:            p.createdAt,
		UpdatedAt:            p.updatedAt,
		CompletedAt:          p.completedAt,
		Version:              p.version,
	}
}

// Restore восстанавливает агрегат, прочитанный из хранилища. Инварианты создания
// не перепроверяются.
func Restore(s Snapshot) *Payment {
	return &Payment{
		id:                   s.ID,
		paymentReference:     s.PaymentReference,
		amount:               s.Amount,
		currency:             s.Currency,
		paymentMethod:        s.PaymentMethod,
		gatewayProvider:      s.GatewayProvider,
		gatewayTransactionID: s.GatewayTransactionID,
		providerReference:    s.ProviderReference,
		refundTransactionID:  s.RefundTransactionID,
		customerID:           s.CustomerID,
		merchantID:           s.MerchantID,
		description:          s.Description,
		failureReason:        s.FailureReason,
		status:               s.Status,
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
		completedAt:          s.CompletedAt,
		version:              s.Version,
		persistedVersion:     s.Version,
		persisted:            true,
	}
}

var now = func() time.Time { return time.Now().UTC() }

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
