// Package gateway — контракт платежных провайдеров, общие проверки и выбор провайдера.
package gateway

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"example.com/payment-gateway/services/payment/internal/domain"
)

// Идентификаторы провайдеров.
const (
	ProviderStripe = "STRIPE"
	ProviderPayPal = "PAYPAL"
)

// Коды ошибок выбора провайдера.
const (
	CodeUnsupportedGateway = "UNSUPPORTED_GATEWAY"
	CodeNoGateway          = "NO_GATEWAY_AVAILABLE"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeConnectionError    = "CONNECTION_ERROR"
)

// Strategy — адаптер платежного провайдера.
//
// ProcessPayment, CancelPayment и RefundPayment не возвращают ошибок: сбои
// провайдера превращаются в domain.Failure с кодом провайдера. Ошибка
// CheckPaymentStatus означает, что провайдер недоступен.
type Strategy interface {
	ProcessPayment(ctx context.Context, req *domain.PaymentRequest) *domain.PaymentResponse
	CheckPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentResponse, error)
	CancelPayment(ctx context.Context, transactionID string) *domain.PaymentResponse
	RefundPayment(ctx context.Context, transactionID, reason string) *domain.PaymentResponse
	SupportsPaymentMethod(method domain.PaymentMethod) bool
	ProviderIdentifier() string
}

// Limits — ограничения провайдера для предварительной проверки.
type Limits struct {
	Provider   string
	Min        decimal.Decimal
	Max        decimal.Decimal
	Currencies []string
	Methods    []domain.PaymentMethod
}

// Supports — метод оплаты входит в список провайдера.
func (l Limits) Supports(method domain.PaymentMethod) bool {
	return slices.Contains(l.Methods, method)
}

// ValidateRequest проверяет метод, сумму, валюту и затем реквизиты через validateDetails.
func ValidateRequest(l Limits, req *domain.PaymentRequest, validateDetails func(domain.PaymentDetails) error) error {
	if !l.Supports(req.PaymentMethod()) {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Payment method %s is not supported by %s", req.PaymentMethod(), l.Provider))
	}

	amount := req.Amount()
	if amount.LessThan(l.Min) {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Amount %s is below the minimum %s for %s", amount.String(), l.Min.StringFixed(2), l.Provider))
	}
	if amount.GreaterThan(l.Max) {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Amount %s exceeds the maximum %s for %s", amount.String(), l.Max.StringFixed(2), l.Provider))
	}

	if !slices.Contains(l.Currencies, strings.ToUpper(req.Currency())) {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Currency %s is not supported by %s", req.Currency(), l.Provider))
	}

	if validateDetails == nil {
		return nil
	}
	return validateDetails(req.Details())
}

// HandleGatewayError превращает сбой провайдера в domain.Failure с кодом от classify.
func HandleGatewayError(err error, paymentReference string, classify func(error) string) *domain.PaymentResponse {
	code := "UNKNOWN_ERROR"
	if classify != nil {
		code = classify(err)
	}
	return domain.Failure(paymentReference, "Payment processing failed: "+err.Error(), code)
}

// GenerateTransactionReference — внутренняя ссылка транзакции:
// stripe_1718000000000_1a2b3c4d.
func GenerateTransactionReference(provider string) string {
	return strings.ToLower(provider) + "_" +
		strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" +
		uuid.NewString()[:8]
}

var (
	feeRate  = decimal.RequireFromString("0.029")
	feeFixed = decimal.RequireFromString("0.30")
)

// CalculateFee — комиссия 2.9% + 0.30.
func CalculateFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(feeRate).Add(feeFixed)
}

// IsOutage — ответ говорит о недоступности провайдера, а не об отказе в оплате.
func IsOutage(resp *domain.PaymentResponse) bool {
	if resp == nil || resp.Success {
		return false
	}
	switch resp.ErrorCode {
	case CodeConnectionError, CodeGatewayUnavailable:
		return true
	}
	return false
}
