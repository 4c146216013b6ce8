package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/gateway"
)

// API — операции Stripe, которые использует адаптер (реализуется *Client).
type API interface {
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error)
}

// Limits — ограничения Stripe.
var Limits = gateway.Limits{
	Provider:   gateway.ProviderStripe,
	Min:        decimal.RequireFromString("0.50"),
	Max:        decimal.RequireFromString("999999.99"),
	Currencies: []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "SEK", "NOK", "DKK"},
	Methods: []domain.PaymentMethod{
		domain.MethodCreditCard,
		domain.MethodDebitCard,
		domain.MethodApplePay,
		domain.MethodGooglePay,
	},
}

// Gateway — стратегия Stripe.
type Gateway struct {
	api API
}

var _ gateway.Strategy = (*Gateway)(nil)

// New создает стратегию поверх клиента API.
func New(api API) *Gateway {
	return &Gateway{api: api}
}

func (g *Gateway) ProviderIdentifier() string { return gateway.ProviderStripe }

func (g *Gateway) SupportsPaymentMethod(method domain.PaymentMethod) bool {
	return Limits.Supports(method)
}

// ProcessPayment создает PaymentIntent с подтверждением.
func (g *Gateway) ProcessPayment(ctx context.Context, req *domain.PaymentRequest) *domain.PaymentResponse {
	log := logger.Ctx(ctx).With().Str("provider", gateway.ProviderStripe).Logger()

	if err := gateway.ValidateRequest(Limits, req, validateDetails); err != nil {
		log.Warn().Err(err).Msg("Запрос отклонен проверкой Stripe")
		return gateway.HandleGatewayError(err, req.PaymentReference(), classify)
	}

	txnRef := gateway.GenerateTransactionReference(gateway.ProviderStripe)
	log = log.With().Str("transaction_reference", txnRef).Logger()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("gateway.transaction_reference", txnRef))

	params := PaymentIntentParams{
		Amount:         toMinorUnits(req.Amount(), req.Currency()),
		Currency:       req.Currency(),
		Description:    req.Description(),
		IdempotencyKey: txnRef,
		Metadata: map[string]string{
			"payment_reference":     req.PaymentReference(),
			"transaction_reference": txnRef,
		},
	}
	if card, ok := req.CardDetails(); ok {
		params.Card = &CardParams{
			Number:   domain.StripCardNumber(card.CardNumber()),
			ExpMonth: card.ExpiryMonth(),
			ExpYear:  card.ExpiryYear(),
			CVC:      card.CVV(),
		}
	}

	intent, err := g.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка создания PaymentIntent")
		return gateway.HandleGatewayError(err, req.PaymentReference(), classify)
	}
	log.Info().Str("intent_id", intent.ID).Str("intent_status", intent.Status).Msg("Stripe PaymentIntent получен")

	return mapIntent(intent, req.PaymentReference())
}

// CheckPaymentStatus запрашивает PaymentIntent. Ошибка означает сбой запроса.
func (g *Gateway) CheckPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentResponse, error) {
	intent, err := g.api.RetrievePaymentIntent(ctx, transactionID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка запроса статуса в Stripe")
		return nil, &domain.PaymentError{
			Code:    ErrorCode(err),
			Message: "Failed to retrieve payment status",
			Err:     err,
		}
	}
	return mapIntent(intent, ""), nil
}

// CancelPayment отменяет PaymentIntent.
func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) *domain.PaymentResponse {
	intent, err := g.api.CancelPaymentIntent(ctx, transactionID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка отмены в Stripe")
		return domain.Failure("", "Failed to cancel payment", "CANCEL_FAILED")
	}
	return mapIntent(intent, "")
}

// RefundPayment возвращает платеж полностью.
func (g *Gateway) RefundPayment(ctx context.Context, transactionID, reason string) *domain.PaymentResponse {
	refund, err := g.api.CreateRefund(ctx, transactionID, reason)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка возврата в Stripe")
		return domain.Failure("", "Refund processing failed", "REFUND_FAILED")
	}

	amount := fromMinorUnits(refund.Amount, refund.Currency)
	return domain.Success(refund.ID, "", &amount, strings.ToUpper(refund.Currency),
		&domain.GatewaySpecificData{
			ProviderID:     "stripe",
			RawResponse:    rawJSON(refund),
			AdditionalInfo: "Refund processed",
		})
}

// MapStatus переводит статус PaymentIntent в статус платежа.
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case IntentSucceeded:
		return domain.StatusCompleted
	case IntentProcessing:
		return domain.StatusProcessing
	case IntentCanceled:
		return domain.StatusCancelled
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction, IntentRequiresCapture:
		return domain.StatusPending
	}
	return domain.StatusFailed
}

func codeFromStatus(status string) string {
	switch status {
	case IntentCanceled:
		return "PAYMENT_CANCELED"
	case IntentRequiresPaymentMethod:
		return "INVALID_PAYMENT_METHOD"
	case IntentRequiresAction:
		return "ACTION_REQUIRED"
	}
	return "PAYMENT_FAILED"
}

func mapIntent(intent *PaymentIntent, paymentReference string) *domain.PaymentResponse {
	status := MapStatus(intent.Status)
	amount := fromMinorUnits(intent.Amount, intent.Currency)
	data := &domain.GatewaySpecificData{
		ProviderID:     "stripe",
		RawResponse:    rawJSON(intent),
		Fees:           gateway.CalculateFee(amount).StringFixed(2),
		AdditionalInfo: "Stripe payment: " + intent.Status,
	}

	switch status {
	case domain.StatusCompleted:
		return domain.Success(intent.ID, paymentReference, &amount, strings.ToUpper(intent.Currency), data)
	case domain.StatusCancelled:
		// Подтвержденная отмена — успех операции отмены.
		resp := domain.StatusReport(intent.ID, status, true, "Payment "+intent.Status, "", data)
		resp.PaymentReference = paymentReference
		return resp
	case domain.StatusProcessing, domain.StatusPending:
		resp := domain.StatusReport(intent.ID, status, false, "Payment "+intent.Status, codeFromStatus(intent.Status), data)
		resp.PaymentReference = paymentReference
		return resp
	}

	msg := "Payment " + intent.Status
	if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		msg = fmt.Sprintf("Payment %s: %s", intent.Status, intent.LastPaymentError.Message)
	}
	return domain.Failure(paymentReference, msg, codeFromStatus(intent.Status))
}

func validateDetails(details domain.PaymentDetails) error {
	card, ok := details.(*domain.CreditCardDetails)
	if !ok || card == nil {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError, "Unsupported payment details type for Stripe")
	}
	if strings.TrimSpace(card.CardNumber()) == "" {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError, "Credit card number is required")
	}
	if strings.TrimSpace(card.CVV()) == "" {
		return domain.NewPaymentErrorWithCode(domain.CodeValidationError, "CVV is required")
	}
	return nil
}

func classify(err error) string {
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrorCode(err)
}

func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(domain.CurrencyScale(currency)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -domain.CurrencyScale(currency))
}

func rawJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
