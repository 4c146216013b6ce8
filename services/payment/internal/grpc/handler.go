package grpc

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"example.com/payment-gateway/pkg/circuitbreaker"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/service"
)

// Handler реализует PaymentGatewayServer.
type Handler struct {
	payments service.PaymentService
	cards    *service.CardService
}

var _ PaymentGatewayServer = (*Handler)(nil)

// NewHandler создает gRPC обработчик.
func NewHandler(payments service.PaymentService, cards *service.CardService) *Handler {
	return &Handler{payments: payments, cards: cards}
}

// ProcessPayment проводит платеж. Поле idempotencyKey заменяет HTTP заголовок Idempotency-Key.
func (h *Handler) ProcessPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()

	amount, err := parseAmount(f["amount"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "amount must be a decimal number")
	}
	currency := stringField(f, "currency")
	if !domain.IsSupportedCurrency(currency) {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported currency: %s", currency)
	}
	if stringField(f, "paymentReference") == "" {
		return nil, status.Error(codes.InvalidArgument, "paymentReference is required")
	}
	method, ok := domain.ParsePaymentMethod(stringField(f, "paymentMethod"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "Invalid value for field 'paymentMethod': %s", stringField(f, "paymentMethod"))
	}

	details, err := parseDetails(f["paymentDetails"].GetStructValue())
	if err != nil {
		return nil, h.mapError(ctx, err, "ProcessPayment")
	}

	payReq, err := domain.NewPaymentRequest(
		stringField(f, "paymentReference"), amount, currency, method,
		stringField(f, "customerId"), stringField(f, "merchantId"), stringField(f, "description"), details,
	)
	if err != nil {
		return nil, h.mapError(ctx, err, "ProcessPayment")
	}

	var opts []service.ProcessOption
	if key := stringField(f, "idempotencyKey"); key != "" {
		opts = append(opts, service.WithIdempotencyKey(key))
	}
	if provider := stringField(f, "gatewayProvider"); provider != "" {
		opts = append(opts, service.WithGatewayProvider(provider))
	}

	payment, err := h.payments.ProcessPayment(ctx, payReq, opts...)
	if err != nil {
		return nil, h.mapError(ctx, err, "ProcessPayment")
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", payment.ID()).
		Str("status", string(payment.Status())).
		Msg("gRPC: платеж обработан")

	return paymentToStruct(payment)
}

// GetPayment ищет платеж по id или paymentReference. Если передан merchantId,
// платеж другого мерчанта возвращается как NotFound.
func (h *Handler) GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	id := stringField(f, "id")
	reference := stringField(f, "paymentReference")

	var (
		payment *domain.Payment
		err     error
	)
	switch {
	case id != "":
		payment, err = h.payments.GetPaymentByID(ctx, id)
	case reference != "":
		payment, err = h.payments.GetPaymentByReference(ctx, reference)
	default:
		return nil, status.Error(codes.InvalidArgument, "id or paymentReference is required")
	}
	if err != nil {
		return nil, h.mapError(ctx, err, "GetPayment")
	}

	if merchantID := stringField(f, "merchantId"); merchantID != "" && merchantID != payment.MerchantID() {
		return nil, status.Error(codes.NotFound, "Payment not found")
	}

	return paymentToStruct(payment)
}

// ValidateCreditCard проверяет карту. Невалидная карта — не ошибка RPC.
func (h *Handler) ValidateCreditCard(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()

	result := h.cards.ValidateCardInput(
		stringField(f, "cardNumber"),
		stringField(f, "expiryMonth"),
		stringField(f, "expiryYear"),
		stringField(f, "cvv"),
		stringField(f, "cardHolderName"),
	)

	return structpb.NewStruct(map[string]any{
		"isValid":          result.IsValid,
		"cardType":         result.CardType,
		"maskedCardNumber": result.MaskedCardNumber,
		"message":          result.Message,
		"isExpired":        result.IsExpired,
		"daysUntilExpiry":  result.DaysUntilExpiry,
	})
}

// GetCardType возвращает бренд карты.
func (h *Handler) GetCardType(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	number := stringField(req.GetFields(), "cardNumber")
	if number == "" {
		return nil, status.Error(codes.InvalidArgument, "cardNumber is required")
	}
	return structpb.NewStruct(map[string]any{"cardType": h.cards.DetermineCardType(number)})
}

// mapError преобразует ошибки сервиса в gRPC статусы.
func (h *Handler) mapError(ctx context.Context, err error, method string) error {
	var pe *domain.PaymentError

	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, domain.ErrDuplicateReference):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, domain.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())

	case errors.Is(err, circuitbreaker.ErrOpen):
		return status.Error(codes.Unavailable, "Payment gateway is temporarily unavailable")

	case errors.As(err, &pe):
		switch pe.Code {
		case service.CodeIdempotencyInProgress:
			return status.Error(codes.Aborted, pe.Message)
		case domain.CodeValidationError, domain.CodeCardExpired:
			return status.Error(codes.InvalidArgument, pe.Message)
		}
		return status.Error(codes.FailedPrecondition, pe.Message)

	default:
		logger.Ctx(ctx).Error().
			Err(err).
			Str("method", method).
			Msg("gRPC: внутренняя ошибка")
		return status.Error(codes.Internal, "An unexpected error occurred")
	}
}

func parseDetails(s *structpb.Struct) (domain.PaymentDetails, error) {
	if s == nil {
		return nil, nil
	}
	f := s.GetFields()

	switch stringField(f, "type") {
	case domain.DetailsTypeCreditCard:
		return domain.NewCreditCardDetails(
			stringField(f, "cardNumber"),
			stringField(f, "expiryMonth"),
			stringField(f, "expiryYear"),
			stringField(f, "cvv"),
			stringField(f, "cardHolderName"),
		)
	case domain.DetailsTypePayPal:
		return domain.NewPayPalDetails(stringField(f, "email"), stringField(f, "returnUrl"), stringField(f, "cancelUrl"))
	}
	return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError, "Invalid input for field 'paymentDetails'")
}

// parseAmount принимает строку ("100.50") или число. Строка точнее: число
// в Struct передается как double.
func parseAmount(v *structpb.Value) (decimal.Decimal, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return decimal.NewFromString(k.StringValue)
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	}
	return decimal.Zero, errors.New("amount is required")
}

func stringField(f map[string]*structpb.Value, name string) string {
	return f[name].GetStringValue()
}

func paymentToStruct(p *domain.Payment) (*structpb.Struct, error) {
	m := map[string]any{
		"id":                   p.ID(),
		"paymentReference":     p.PaymentReference(),
		"amount":               p.Amount().String(),
		"currency":             p.Currency(),
		"status":               string(p.Status()),
		"paymentMethod":        string(p.PaymentMethod()),
		"gatewayProvider":      p.GatewayProvider(),
		"gatewayTransactionId": optional(p.GatewayTransactionID()),
		"customerId":           p.CustomerID(),
		"merchantId":           p.MerchantID(),
		"description":          p.Description(),
		"failureReason":        optional(p.FailureReason()),
		"createdAt":            p.CreatedAt().UTC().Format(time.RFC3339Nano),
		"version":              strconv.FormatInt(p.Version(), 10),
		"completed":            p.IsCompleted(),
		"failed":               p.IsFailed(),
		"pending":              p.IsPending(),
	}
	if t := p.CompletedAt(); t != nil {
		m["completedAt"] = t.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
