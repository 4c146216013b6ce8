// Package saga — контракт асинхронного взаимодействия с платежным шлюзом.
//
// Внешние оркестраторы (заказы, подписки) шлют команды в payment.commands
// и получают ответы в payment.replies по correlation id.
package saga

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommandType — тип команды.
type CommandType string

const (
	CommandProcessPayment CommandType = "PROCESS_PAYMENT"
	CommandRefundPayment  CommandType = "REFUND_PAYMENT"
)

// ErrUnknownCommand — тип команды не поддерживается.
var ErrUnknownCommand = errors.New("неизвестный тип команды")

// CardPayload — реквизиты карты в команде.
type CardPayload struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CVV            string `json:"cvv"`
	CardHolderName string `json:"cardHolderName"`
}

// PayPalPayload — реквизиты PayPal в команде.
type PayPalPayload struct {
	Email     string `json:"email"`
	ReturnURL string `json:"returnUrl"`
	CancelURL string `json:"cancelUrl"`
}

// ProcessPaymentPayload — данные PROCESS_PAYMENT.
type ProcessPaymentPayload struct {
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	CustomerID       string          `json:"customerId"`
	MerchantID       string          `json:"merchantId"`
	Description      string          `json:"description,omitempty"`
	GatewayProvider  string          `json:"gatewayProvider,omitempty"`
	Card             *CardPayload    `json:"card,omitempty"`
	PayPal           *PayPalPayload  `json:"paypal,omitempty"`
}

// RefundPaymentPayload — данные REFUND_PAYMENT.
type RefundPaymentPayload struct {
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason"`
}

// Command — входящая команда.
type Command struct {
	CommandID     string                 `json:"commandId"`
	CorrelationID string                 `json:"correlationId"`
	Type          CommandType            `json:"type"`
	Process       *ProcessPaymentPayload `json:"process,omitempty"`
	Refund        *RefundPaymentPayload  `json:"refund,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// CommandFromJSON разбирает команду и проверяет, что payload соответствует типу.
func CommandFromJSON(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("некорректный JSON команды: %w", err)
	}
	if cmd.CommandID == "" {
		return nil, errors.New("commandId обязателен")
	}

	switch cmd.Type {
	case CommandProcessPayment:
		if cmd.Process == nil {
			return nil, errors.New("process обязателен для PROCESS_PAYMENT")
		}
	case CommandRefundPayment:
		if cmd.Refund == nil || cmd.Refund.PaymentID == "" {
			return nil, errors.New("refund.paymentId обязателен для REFUND_PAYMENT")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return &cmd, nil
}

// ReplyStatus — результат обработки команды.
type ReplyStatus string

const (
	ReplySuccess ReplyStatus = "SUCCESS"
	ReplyFailed  ReplyStatus = "FAILED"
	// ReplyPending — провайдер еще не дал окончательного ответа; итог придет
	// событием в payment.events после сверки.
	ReplyPending ReplyStatus = "PENDING"
)

// Reply — ответ на команду.
type Reply struct {
	CommandID     string      `json:"commandId"`
	CorrelationID string      `json:"correlationId"`
	Type          CommandType `json:"type"`
	Status        ReplyStatus `json:"status"`
	PaymentID     string      `json:"paymentId,omitempty"`
	PaymentStatus string      `json:"paymentStatus,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	ErrorCode     string      `json:"errorCode,omitempty"`
	Error         string      `json:"error,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// NewReply создает ответ на cmd.
func NewReply(cmd *Command, status ReplyStatus) *Reply {
	return &Reply{
		CommandID:     cmd.CommandID,
		CorrelationID: cmd.CorrelationID,
		Type:          cmd.Type,
		Status:        status,
		Timestamp:     time.Now().UTC(),
	}
}

// Key — ключ партиционирования ответа.
func (r *Reply) Key() string {
	if r.CorrelationID != "" {
		return r.CorrelationID
	}
	return r.CommandID
}

// IsSuccess сообщает об успехе.
func (r *Reply) IsSuccess() bool {
	return r.Status == ReplySuccess
}
