package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"example.com/payment-gateway/pkg/circuitbreaker"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
	"example.com/payment-gateway/pkg/tracing"
	"example.com/payment-gateway/services/payment/internal/domain"
)

// errOutage — ответ провайдера засчитывается breaker'у как сбой.
var errOutage = errors.New("gateway outage")

// Resilient оборачивает стратегию: таймаут, circuit breaker, span и метрики.
type Resilient struct {
	next    Strategy
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

var _ Strategy = (*Resilient)(nil)

// NewResilient создает обертку. timeout <= 0 — без ограничения.
func NewResilient(next Strategy, breaker *circuitbreaker.Breaker, timeout time.Duration) *Resilient {
	if breaker == nil {
		breaker = circuitbreaker.New(next.ProviderIdentifier())
	}
	return &Resilient{next: next, breaker: breaker, timeout: timeout}
}

func (r *Resilient) ProviderIdentifier() string { return r.next.ProviderIdentifier() }

func (r *Resilient) SupportsPaymentMethod(method domain.PaymentMethod) bool {
	return r.next.SupportsPaymentMethod(method)
}

// Unwrap возвращает исходную стратегию.
func (r *Resilient) Unwrap() Strategy { return r.next }

func (r *Resilient) ProcessPayment(ctx context.Context, req *domain.PaymentRequest) *domain.PaymentResponse {
	resp, err := r.call(ctx, "process", func(ctx context.Context) (*domain.PaymentResponse, error) {
		return r.next.ProcessPayment(ctx, req), nil
	})
	if err != nil {
		return r.unavailable(req.PaymentReference(), err)
	}
	return resp
}

func (r *Resilient) CheckPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentResponse, error) {
	return r.call(ctx, "status", func(ctx context.Context) (*domain.PaymentResponse, error) {
		return r.next.CheckPaymentStatus(ctx, transactionID)
	})
}

func (r *Resilient) CancelPayment(ctx context.Context, transactionID string) *domain.PaymentResponse {
	resp, err := r.call(ctx, "cancel", func(ctx context.Context) (*domain.PaymentResponse, error) {
		return r.next.CancelPayment(ctx, transactionID), nil
	})
	if err != nil {
		return r.unavailable("", err)
	}
	return resp
}

func (r *Resilient) RefundPayment(ctx context.Context, transactionID, reason string) *domain.PaymentResponse {
	resp, err := r.call(ctx, "refund", func(ctx context.Context) (*domain.PaymentResponse, error) {
		return r.next.RefundPayment(ctx, transactionID, reason), nil
	})
	if err != nil {
		return r.unavailable("", err)
	}
	return resp
}

// call возвращает ошибку только при отказе breaker'а или ошибке самой операции.
func (r *Resilient) call(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) (*domain.PaymentResponse, error),
) (*domain.PaymentResponse, error) {
	provider := r.next.ProviderIdentifier()

	ctx, span := tracing.Start(ctx, "gateway."+operation,
		attribute.String("gateway.provider", provider),
		attribute.String("gateway.operation", operation),
	)
	defer span.End()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()

	var out *domain.PaymentResponse
	_, err := circuitbreaker.Do(ctx, r.breaker, func(ctx context.Context) (struct{}, error) {
		resp, err := fn(ctx)
		out = resp
		if err != nil {
			return struct{}{}, err
		}
		if IsOutage(resp) {
			return struct{}{}, errOutage
		}
		return struct{}{}, nil
	})

	outcome := outcomeOf(out, err)
	metrics.RecordGatewayCall(provider, operation, outcome, time.Since(start))
	span.SetAttributes(attribute.String("gateway.outcome", outcome))

	switch {
	case errors.Is(err, errOutage):
		// Ответ провайдера уже описывает сбой.
		return out, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		logger.Ctx(ctx).Warn().Str("provider", provider).Str("operation", operation).Msg("Вызов отклонен circuit breaker")
		tracing.RecordError(span, err)
		return nil, err
	case err != nil:
		tracing.RecordError(span, err)
		return nil, err
	}
	return out, nil
}

func (r *Resilient) unavailable(paymentReference string, err error) *domain.PaymentResponse {
	return domain.Failure(paymentReference,
		fmt.Sprintf("Payment gateway %s is temporarily unavailable: %v", r.next.ProviderIdentifier(), err),
		CodeGatewayUnavailable)
}

func outcomeOf(resp *domain.PaymentResponse, err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "rejected"
	case errors.Is(err, errOutage), err != nil:
		return "error"
	case resp != nil && resp.Success:
		return "success"
	}
	return "declined"
}
