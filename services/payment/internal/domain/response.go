package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Сообщение успешного ответа провайдера.
const MessagePaymentProcessed = "Payment processed successful"

// GatewaySpecificData — метаданные провайдера.
type GatewaySpecificData struct {
	ProviderID     string `json:"providerId"`
	RawResponse    string `json:"rawResponse,omitempty"`
	Fees           string `json:"fees,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// PaymentResponse — результат вызова провайдера.
type PaymentResponse struct {
	Success              bool
	GatewayTransactionID *string
	PaymentReference     string
	Amount               *decimal.Decimal
	Currency             string
	Status               PaymentStatus
	Message              string
	ErrorCode            string
	ProcessedAt          time.Time
	GatewayData          *GatewaySpecificData
}

// Success — успешный ответ, статус всегда COMPLETED.
func Success(transactionID, paymentReference string, amount *decimal.Decimal, currency string, data *GatewaySpecificData) *PaymentResponse {
	return &PaymentResponse{
		Success:              true,
		GatewayTransactionID: &transactionID,
		PaymentReference:     paymentReference,
		Amount:               amount,
		Currency:             currency,
		Status:               StatusCompleted,
		Message:              MessagePaymentProcessed,
		ProcessedAt:          now(),
		GatewayData:          data,
	}
}

// Failure — неуспешный ответ: статус FAILED, без транзакции, суммы и метаданных.
func Failure(paymentReference, message, errorCode string) *PaymentResponse {
	return &PaymentResponse{
		Success:          false,
		PaymentReference: paymentReference,
		Status:           StatusFailed,
		Message:          message,
		ErrorCode:        errorCode,
		ProcessedAt:      now(),
	}
}

// StatusReport — ответ на запрос статуса или отмену: статус задает провайдер,
// Success равен true только для COMPLETED и подтвержденной отмены.
func StatusReport(transactionID string, status PaymentStatus, success bool, message, errorCode string, data *GatewaySpecificData) *PaymentResponse {
	return &PaymentResponse{
		Success:              success,
		GatewayTransactionID: &transactionID,
		Status:               status,
		Message:              message,
		ErrorCode:            errorCode,
		ProcessedAt:          now(),
		GatewayData:          data,
	}
}

// TransactionID возвращает id транзакции или пустую строку.
func (r *PaymentResponse) TransactionID() string {
	if r.GatewayTransactionID == nil {
		return ""
	}
	return *r.GatewayTransactionID
}

// InFlight — провайдер еще не принял окончательного решения.
func (r *PaymentResponse) InFlight() bool {
	return !r.Success && (r.Status == StatusProcessing || r.Status == StatusPending)
}
