package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/services/payment/internal/domain"
)

// Типы доменных событий в топике payment.events.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventPaymentRefunded  = "payment.refunded"
)

// PaymentEvent — тело доменного события.
type PaymentEvent struct {
	EventType            string          `json:"eventType"`
	PaymentID            string          `json:"paymentId"`
	PaymentReference     string          `json:"paymentReference"`
	Status               string          `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	PaymentMethod        string          `json:"paymentMethod"`
	GatewayProvider      string          `json:"gatewayProvider"`
	GatewayTransactionID *string         `json:"gatewayTransactionId,omitempty"`
	RefundTransactionID  *string         `json:"refundTransactionId,omitempty"`
	CustomerID           string          `json:"customerId"`
	MerchantID           string          `json:"merchantId"`
	FailureReason        *string         `json:"failureReason,omitempty"`
	Version              int64           `json:"version"`
	OccurredAt           time.Time       `json:"occurredAt"`
}

// newPaymentEvent готовит запись outbox; ключ сообщения — id платежа.
func newPaymentEvent(ctx context.Context, eventType string, p *domain.Payment) (*outbox.Message, error) {
	evt := PaymentEvent{
		EventType:            eventType,
		PaymentID:            p.ID(),
		PaymentReference:     p.PaymentReference(),
		Status:               string(p.Status()),
		Amount:               p.Amount(),
		Currency:             p.Currency(),
		PaymentMethod:        string(p.PaymentMethod()),
		GatewayProvider:      p.GatewayProvider(),
		GatewayTransactionID: p.GatewayTransactionID(),
		RefundTransactionID:  p.RefundTransactionID(),
		CustomerID:           p.CustomerID(),
		MerchantID:           p.MerchantID(),
		FailureReason:        p.FailureReason(),
		Version:              p.Version(),
		OccurredAt:           time.Now().UTC(),
	}
	return outbox.NewMessage(p.ID(), eventType, kafka.TopicPaymentEvents, p.ID(), evt, kafka.HeadersFromContext(ctx))
}

// eventForStatus — событие перехода в status или пустая строка.
func eventForStatus(status domain.PaymentStatus) string {
	switch status {
	case domain.StatusCompleted:
		return EventPaymentCompleted
	case domain.StatusFailed:
		return EventPaymentFailed
	case domain.StatusCancelled:
		return EventPaymentCancelled
	case domain.StatusRefunded:
		return EventPaymentRefunded
	}
	return ""
}
