package paypal

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/gateway"
)

// Limits — ограничения PayPal.
var Limits = gateway.Limits{
	Provider:   gateway.ProviderPayPal,
	Min:        decimal.RequireFromString("1.00"),
	Max:        decimal.RequireFromString("10000.00"),
	Currencies: []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY"},
	Methods: []domain.PaymentMethod{
		domain.MethodPayPal,
		domain.MethodCreditCard,
		domain.MethodDebitCard,
	},
}

// Gateway — стратегия PayPal.
type Gateway struct {
	client Client
}

var _ gateway.Strategy = (*Gateway)(nil)

// New создает стратегию поверх клиента.
func New(client Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) ProviderIdentifier() string { return gateway.ProviderPayPal }

func (g *Gateway) SupportsPaymentMethod(method domain.PaymentMethod) bool {
	return Limits.Supports(method)
}

func (g *Gateway) ProcessPayment(ctx context.Context, req *domain.PaymentRequest) *domain.PaymentResponse {
	log := logger.Ctx(ctx).With().Str("provider", gateway.ProviderPayPal).Logger()

	if err := gateway.ValidateRequest(Limits, req, validateDetails); err != nil {
		log.Warn().Err(err).Msg("Запрос отклонен проверкой PayPal")
		return gateway.HandleGatewayError(err, req.PaymentReference(), ErrorCode)
	}

	txnRef := gateway.GenerateTransactionReference(gateway.ProviderPayPal)
	log = log.With().Str("transaction_reference", txnRef).Logger()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("gateway.transaction_reference", txnRef))

	params := OrderParams{
		RequestID: txnRef,
		Reference: req.PaymentReference(),
		Amount:    req.Amount(),
		Currency:  req.Currency(),
	}
	if pp, ok := req.Details().(*domain.PayPalDetails); ok {
		params.Email = pp.Email()
		params.ReturnURL = pp.ReturnURL()
		params.CancelURL = pp.CancelURL()
	}

	txn, err := g.client.CaptureOrder(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка оплаты PayPal")
		return gateway.HandleGatewayError(err, req.PaymentReference(), ErrorCode)
	}
	log.Info().Str("transaction_id", txn).Msg("Оплата PayPal проведена")

	amount := req.Amount()
	return domain.Success(txn, req.PaymentReference(), &amount, req.Currency(), &domain.GatewaySpecificData{
		ProviderID:     "paypal",
		RawResponse:    `{"status":"COMPLETED"}`,
		Fees:           gateway.CalculateFee(amount).StringFixed(2),
		AdditionalInfo: "PayPal payment processed successfully",
	})
}

func (g *Gateway) CheckPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentResponse, error) {
	status, err := g.client.OrderStatus(ctx, transactionID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка запроса статуса в PayPal")
		return nil, &domain.PaymentError{
			Code:    ErrorCode(err),
			Message: "Failed to retrieve PayPal payment status",
			Err:     err,
		}
	}

	return domain.StatusReport(transactionID, status, status == domain.StatusCompleted,
		"Payment status retrieved", "", &domain.GatewaySpecificData{
			ProviderID:     "paypal",
			RawResponse:    `{"status": "` + string(status) + `"}`,
			AdditionalInfo: "Status retrieved from PayPal",
		}), nil
}

func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) *domain.PaymentResponse {
	cancelled, err := g.client.CancelOrder(ctx, transactionID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка отмены в PayPal")
		return domain.Failure("", "PayPal cancellation failed", "CANCEL_ERROR")
	}
	if !cancelled {
		return domain.Failure("", "Failed to cancel PayPal payment", "CANCEL_FAILED")
	}
	return domain.StatusReport(transactionID, domain.StatusCancelled, true, "Payment cancelled successfully", "", nil)
}

func (g *Gateway) RefundPayment(ctx context.Context, transactionID, reason string) *domain.PaymentResponse {
	refundID, err := g.client.Refund(ctx, transactionID, reason)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("transaction_id", transactionID).Msg("Ошибка возврата в PayPal")
		return domain.Failure("", "PayPal refund failed", "REFUND_FAILED")
	}

	return domain.Success(refundID, "", nil, "", &domain.GatewaySpecificData{
		ProviderID:     "paypal",
		RawResponse:    `{"refund_id": "` + refundID + `"}`,
		AdditionalInfo: "PayPal refund processed successfully: " + reason,
	})
}

// ErrorCode определяет код ошибки по тексту сообщения.
func ErrorCode(err error) string {
	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return "INSUFFICIENT_FUNDS"
	case strings.Contains(msg, "invalid account"):
		return "INVALID_ACCOUNT"
	case strings.Contains(msg, "authentication"):
		return "AUTHENTICATION_ERROR"
	case strings.Contains(msg, "connection"):
		return "CONNECTION_ERROR"
	}
	return "PAYPAL_ERROR"
}

func validateDetails(details domain.PaymentDetails) error {
	switch d := details.(type) {
	case *domain.PayPalDetails:
		if d == nil || !strings.Contains(d.Email(), "@") {
			return invalid("PayPal email is required")
		}
		if strings.TrimSpace(d.ReturnURL()) == "" {
			return invalid("PayPal return URL is required")
		}
		if strings.TrimSpace(d.CancelURL()) == "" {
			return invalid("PayPal cancel URL is required")
		}
	case *domain.CreditCardDetails:
		if d == nil || strings.TrimSpace(d.CardNumber()) == "" {
			return invalid("Credit card number is required")
		}
		if strings.TrimSpace(d.CVV()) == "" {
			return invalid("CVV is required")
		}
	default:
		return invalid("Unsupported payment details type for PayPal")
	}
	return nil
}

func invalid(msg string) error {
	return domain.NewPaymentErrorWithCode(domain.CodeValidationError, msg)
}
