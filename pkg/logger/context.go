package logger

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	correlationIDKey
	paymentReferenceKey
	merchantIDKey
	loggerKey
)

// WithTraceID кладет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext возвращает trace_id или пустую строку.
func TraceIDFromContext(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithCorrelationID кладет correlation_id в контекст.
// Для саги это id команды, для HTTP — заголовок X-Correlation-ID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext возвращает correlation_id или пустую строку.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

// WithPaymentReference привязывает бизнес-ключ платежа ко всем логам ниже по стеку.
func WithPaymentReference(ctx context.Context, reference string) context.Context {
	return context.WithValue(ctx, paymentReferenceKey, reference)
}

// PaymentReferenceFromContext возвращает payment_reference или пустую строку.
func PaymentReferenceFromContext(ctx context.Context) string {
	return stringValue(ctx, paymentReferenceKey)
}

// WithMerchantID кладет id мерчанта (из JWT или запроса).
func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, merchantIDKey, merchantID)
}

// MerchantIDFromContext возвращает merchant_id или пустую строку.
func MerchantIDFromContext(ctx context.Context) string {
	return stringValue(ctx, merchantIDKey)
}

// WithLogger сохраняет заранее настроенный логгер в контексте.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext возвращает логгер из контекста (или глобальный), обогащенный
// всеми известными идентификаторами запроса.
func FromContext(ctx context.Context) zerolog.Logger {
	l, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		l = log
	}

	lctx := l.With()
	for _, f := range contextFields {
		if v := stringValue(ctx, f.key); v != "" {
			lctx = lctx.Str(f.name, v)
		}
	}
	return lctx.Logger()
}

var contextFields = []struct {
	name string
	key  ctxKey
}{
	{"trace_id", traceIDKey},
	{"correlation_id", correlationIDKey},
	{"payment_reference", paymentReferenceKey},
	{"merchant_id", merchantIDKey},
}

// Ctx — указатель на логгер из контекста, по аналогии с zerolog.Ctx.
//
//	logger.Ctx(ctx).Info().Str("payment_id", id).Msg("Платеж создан")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}

// NewContextWithIDs добавляет непустые trace_id и correlation_id.
func NewContextWithIDs(ctx context.Context, traceID, correlationID string) context.Context {
	if traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	if correlationID != "" {
		ctx = WithCorrelationID(ctx, correlationID)
	}
	return ctx
}

func stringValue(ctx context.Context, key ctxKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
