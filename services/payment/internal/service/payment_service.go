// Package service содержит бизнес-логику платежного шлюза.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/pkg/tracing"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/gateway"
	"example.com/payment-gateway/services/payment/internal/repository"
)

// Коды ошибок сервиса.
const (
	CodePaymentNotFound       = "PAYMENT_NOT_FOUND"
	CodeDuplicateReference    = "DUPLICATE_REFERENCE"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeNoTransaction         = "NO_GATEWAY_TRANSACTION"
)

// =============================================================================
// Интерфейс сервиса
// =============================================================================

// ProcessOption настраивает ProcessPayment.
type ProcessOption func(*processOptions)

type processOptions struct {
	idempotencyKey  string
	gatewayProvider string
}

// WithIdempotencyKey — повторный вызов с тем же ключом вернет уже созданный платеж.
func WithIdempotencyKey(key string) ProcessOption {
	return func(o *processOptions) { o.idempotencyKey = key }
}

// WithGatewayProvider — явный выбор провайдера вместо выбора по методу оплаты.
func WithGatewayProvider(provider string) ProcessOption {
	return func(o *processOptions) { o.gatewayProvider = provider }
}

// PaymentService — интерфейс бизнес-логики платежей.
type PaymentService interface {
	// ProcessPayment проводит платеж через провайдера. Отказ провайдера не ошибка:
	// платеж возвращается в статусе FAILED.
	ProcessPayment(ctx context.Context, req *domain.PaymentRequest, opts ...ProcessOption) (*domain.Payment, error)

	CancelPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	RefundPayment(ctx context.Context, paymentID, reason string) (*domain.Payment, error)
	CheckPaymentStatus(ctx context.Context, paymentID string) (*domain.PaymentResponse, error)

	GetPaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetPaymentByReference(ctx context.Context, paymentReference string) (*domain.Payment, error)
	GetPaymentsByCustomer(ctx context.Context, customerID string) ([]*domain.Payment, error)
	GetPaymentsByMerchant(ctx context.Context, merchantID string) ([]*domain.Payment, error)
	GetPaymentsByStatus(ctx context.Context, status domain.PaymentStatus) ([]*domain.Payment, error)
	ListPayments(ctx context.Context, filter repository.Filter) ([]*domain.Payment, error)
	CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error)

	// ReconcileStuck сверяет с провайдером платежи, зависшие в PROCESSING дольше olderThan.
	ReconcileStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// =============================================================================
// Реализация сервиса
// =============================================================================

// paymentService — реализация PaymentService.
type paymentService struct {
	repo        repository.PaymentRepository
	selector    *gateway.Selector
	cards       *CardService
	idempotency IdempotencyStore
}

// NewPaymentService создает сервис платежей. idempotency может быть nil.
func NewPaymentService(
	repo repository.PaymentRepository,
	selector *gateway.Selector,
	cards *CardService,
	idempotency IdempotencyStore,
) PaymentService {
	if cards == nil {
		cards = NewCardService(nil)
	}
	return &paymentService{
		repo:        repo,
		selector:    selector,
		cards:       cards,
		idempotency: idempotency,
	}
}

// ProcessPayment: идемпотентность → проверка reference → выбор провайдера →
// проверка карты → PENDING → PROCESSING → вызов провайдера → итоговый статус.
func (s *paymentService) ProcessPayment(ctx context.Context, req *domain.PaymentRequest, opts ...ProcessOption) (*domain.Payment, error) {
	var o processOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx = logger.WithPaymentReference(ctx, req.PaymentReference())
	ctx = logger.WithMerchantID(ctx, req.MerchantID())
	ctx, span := tracing.Start(ctx, "PaymentService.ProcessPayment",
		attribute.String("payment.reference", req.PaymentReference()),
		attribute.String("payment.method", string(req.PaymentMethod())),
		attribute.String("payment.currency", req.Currency()),
	)
	defer span.End()

	log := logger.Ctx(ctx)

	// 1. Идемпотентность
	idemKey := ""
	if o.idempotencyKey != "" && s.idempotency != nil {
		idemKey = req.MerchantID() + ":" + o.idempotencyKey
		existing, acquired, err := s.idempotency.Acquire(ctx, idemKey)
		switch {
		case err != nil:
			// При ошибке Redis продолжаем — уникальный reference защитит от дубликатов.
			log.Error().Err(err).Msg("Ошибка Redis при проверке идемпотентности")
			idemKey = ""
		case !acquired && existing == idempotencyInProgress:
			return nil, domain.NewPaymentErrorWithCode(CodeIdempotencyInProgress,
				"Payment with this idempotency key is already being processed")
		case !acquired:
			log.Info().Str("payment_id", existing).Msg("Платеж уже существует (идемпотентность)")
			return s.GetPaymentByID(ctx, existing)
		}
	}

	payment, err := s.process(ctx, req, o.gatewayProvider)
	if err != nil {
		tracing.RecordError(span, err)
		if idemKey != "" {
			if relErr := s.idempotency.Release(ctx, idemKey); relErr != nil {
				log.Warn().Err(relErr).Msg("Ошибка освобождения ключа идемпотентности")
			}
		}
		return nil, err
	}

	if idemKey != "" {
		if err := s.idempotency.Complete(ctx, idemKey, payment.ID()); err != nil {
			log.Warn().Err(err).Msg("Ошибка обновления ключа идемпотентности в Redis")
		}
	}

	span.SetAttributes(
		attribute.String("payment.id", payment.ID()),
		attribute.String("payment.status", string(payment.Status())),
	)
	return payment, nil
}

func (s *paymentService) process(ctx context.Context, req *domain.PaymentRequest, provider string) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	// 2. Уникальность reference
	exists, err := s.repo.ExistsByReference(ctx, req.PaymentReference())
	if err != nil {
		return nil, fmt.Errorf("проверка reference: %w", err)
	}
	if exists {
		return nil, duplicateReference(req.PaymentReference())
	}

	// 3. Провайдер
	gw, err := s.selectGateway(req.PaymentMethod(), provider)
	if err != nil {
		log.Warn().Err(err).Msg("Провайдер не выбран")
		return nil, err
	}

	// 4. Карта
	if card, ok := req.CardDetails(); ok {
		result := s.cards.ValidateCreditCard(card)
		if !result.IsValid {
			log.Warn().
				Str("card", result.MaskedCardNumber).
				Str("reason", result.Message).
				Msg("Карта не прошла проверку")
			return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError, result.Message)
		}
	}

	// 5. PENDING → PROCESSING
	payment, err := domain.NewPayment(req.PaymentReference(), req.Amount(), req.Currency(), req.PaymentMethod(),
		gw.ProviderIdentifier(), req.CustomerID(), req.MerchantID(), req.Description())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			return nil, duplicateReference(req.PaymentReference())
		}
		return nil, fmt.Errorf("ошибка создания платежа: %w", err)
	}
	metrics.RecordPayment(payment.GatewayProvider(), string(payment.PaymentMethod()), string(payment.Status()))

	if err := payment.MarkAsProcessing(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("ошибка перехода в PROCESSING: %w", err)
	}

	log.Info().
		Str("payment_id", payment.ID()).
		Str("provider", payment.GatewayProvider()).
		Str("amount", payment.Amount().String()).
		Msg("Платеж создан, отправляем провайдеру")

	// 6. Провайдер
	resp := gw.ProcessPayment(ctx, req)

	if err := s.applyResponse(ctx, payment, resp); err != nil {
		return nil, err
	}

	log.Info().
		Str("payment_id", payment.ID()).
		Str("status", string(payment.Status())).
		Str("error_code", resp.ErrorCode).
		Msg("Платеж обработан")

	return payment, nil
}

// applyResponse переводит платеж по ответу провайдера и сохраняет вместе с событием.
func (s *paymentService) applyResponse(ctx context.Context, payment *domain.Payment, resp *domain.PaymentResponse) error {
	var err error
	switch {
	case resp.Success:
		err = payment.MarkAsCompleted(resp.TransactionID())
	case resp.InFlight() && resp.TransactionID() != "":
		// Окончательный статус установит сверка.
		err = payment.RecordProviderReference(resp.TransactionID())
	default:
		err = payment.MarkAsFailed(resp.Message)
	}
	if err != nil {
		return err
	}

	return s.save(ctx, payment)
}

// save сохраняет платеж и, если статус терминальный, событие о нем.
func (s *paymentService) save(ctx context.Context, payment *domain.Payment) error {
	var events []*outbox.Message
	if eventType := eventForStatus(payment.Status()); eventType != "" {
		evt, err := newPaymentEvent(ctx, eventType, payment)
		if err != nil {
			return fmt.Errorf("событие %s: %w", eventType, err)
		}
		events = append(events, evt)
	}

	if err := s.repo.Save(ctx, payment, events...); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", payment.ID()).Msg("Ошибка сохранения платежа")
		return fmt.Errorf("ошибка сохранения платежа: %w", err)
	}

	metrics.RecordPayment(payment.GatewayProvider(), string(payment.PaymentMethod()), string(payment.Status()))
	return nil
}

func (s *paymentService) selectGateway(method domain.PaymentMethod, provider string) (gateway.Strategy, error) {
	if provider == "" {
		return s.selector.GetBestGatewayForMethod(method)
	}

	gw, err := s.selector.GetGateway(provider)
	if err != nil {
		return nil, err
	}
	if !gw.SupportsPaymentMethod(method) {
		return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Payment method %s is not supported by %s", method, gw.ProviderIdentifier()))
	}
	return gw, nil
}

// CancelPayment отменяет платеж у провайдера (если есть транзакция) и локально.
func (s *paymentService) CancelPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := tracing.Start(ctx, "PaymentService.CancelPayment", attribute.String("payment.id", paymentID))
	defer span.End()

	payment, err := s.GetPaymentByID(ctx, paymentID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if payment.IsCompleted() {
		// Переход отклонит агрегат; провайдера не трогаем.
		return nil, payment.Cancel()
	}

	if txn := payment.ProviderTransactionID(); txn != "" {
		gw, err := s.selector.GetGateway(payment.GatewayProvider())
		if err != nil {
			return nil, err
		}
		resp := gw.CancelPayment(ctx, txn)
		if !resp.Success {
			logger.Ctx(ctx).Warn().Str("payment_id", paymentID).Str("error_code", resp.ErrorCode).Msg("Провайдер отклонил отмену")
			return nil, domain.NewPaymentErrorWithCode(resp.ErrorCode, resp.Message)
		}
	}

	if err := payment.Cancel(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, payment); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("payment_id", paymentID).Msg("Платеж отменен")
	return payment, nil
}

// RefundPayment возвращает завершенный платеж. REFUNDED ставится только после
// подтверждения провайдером.
func (s *paymentService) RefundPayment(ctx context.Context, paymentID, reason string) (*domain.Payment, error) {
	ctx, span := tracing.Start(ctx, "PaymentService.RefundPayment", attribute.String("payment.id", paymentID))
	defer span.End()

	payment, err := s.GetPaymentByID(ctx, paymentID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if !payment.IsCompleted() {
		return nil, domain.NewPaymentError("Payment can only be refunded from completed status")
	}

	gw, err := s.selector.GetGateway(payment.GatewayProvider())
	if err != nil {
		return nil, err
	}

	resp := gw.RefundPayment(ctx, payment.ProviderTransactionID(), reason)
	if !resp.Success {
		logger.Ctx(ctx).Warn().
			Str("payment_id", paymentID).
			Str("error_code", resp.ErrorCode).
			Msg("Провайдер отклонил возврат")
		return nil, domain.NewPaymentErrorWithCode(resp.ErrorCode, resp.Message)
	}

	if err := payment.MarkAsRefunded(resp.TransactionID()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, payment); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", paymentID).
		Str("refund_id", resp.TransactionID()).
		Msg("Возврат платежа выполнен")
	return payment, nil
}

// CheckPaymentStatus запрашивает статус у провайдера. Ошибки провайдера возвращаются как есть.
func (s *paymentService) CheckPaymentStatus(ctx context.Context, paymentID string) (*domain.PaymentResponse, error) {
	payment, err := s.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	txn := payment.ProviderTransactionID()
	if txn == "" {
		return nil, domain.NewPaymentErrorWithCode(CodeNoTransaction,
			fmt.Sprintf("Payment %s has no gateway transaction", paymentID))
	}

	gw, err := s.selector.GetGateway(payment.GatewayProvider())
	if err != nil {
		return nil, err
	}
	return gw.CheckPaymentStatus(ctx, txn)
}

// =============================================================================
// Запросы
// =============================================================================

// GetPaymentByID возвращает платеж или PaymentError с ErrPaymentNotFound.
func (s *paymentService) GetPaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("Payment not found: " + paymentID)
	}
	return payment, nil
}

func (s *paymentService) GetPaymentByReference(ctx context.Context, paymentReference string) (*domain.Payment, error) {
	payment, err := s.repo.FindByReference(ctx, paymentReference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, notFound("Payment not found with reference: " + paymentReference)
	}
	return payment, nil
}

func (s *paymentService) GetPaymentsByCustomer(ctx context.Context, customerID string) ([]*domain.Payment, error) {
	return s.repo.FindByCustomerID(ctx, customerID)
}

func (s *paymentService) GetPaymentsByMerchant(ctx context.Context, merchantID string) ([]*domain.Payment, error) {
	return s.repo.FindByMerchantID(ctx, merchantID)
}

func (s *paymentService) GetPaymentsByStatus(ctx context.Context, status domain.PaymentStatus) ([]*domain.Payment, error) {
	return s.repo.FindByStatus(ctx, status)
}

func (s *paymentService) ListPayments(ctx context.Context, filter repository.Filter) ([]*domain.Payment, error) {
	return s.repo.List(ctx, filter)
}

func (s *paymentService) CountByStatus(ctx context.Context, status domain.PaymentStatus) (int64, error) {
	return s.repo.CountByStatus(ctx, status)
}

// =============================================================================
// Сверка
// =============================================================================

// ReconcileStuck: COMPLETED → MarkAsCompleted, FAILED → MarkAsFailed,
// CANCELLED → Cancel, иначе платеж остается в PROCESSING. Платеж без ссылки
// на провайдера помечается FAILED.
func (s *paymentService) ReconcileStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	log := logger.Ctx(ctx)

	stuck, err := s.repo.FindStuckProcessing(ctx, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения зависших платежей: %w", err)
	}

	reconciled := 0
	for _, payment := range stuck {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.reconcileOne(ctx, payment)
		if err != nil {
			log.Warn().Err(err).Str("payment_id", payment.ID()).Msg("Не удалось сверить платеж")
			continue
		}
		if changed {
			reconciled++
		}
	}

	if reconciled > 0 {
		log.Info().Int("count", reconciled).Msg("Сверено зависших платежей")
	}
	return reconciled, nil
}

func (s *paymentService) reconcileOne(ctx context.Context, payment *domain.Payment) (bool, error) {
	txn := payment.ProviderTransactionID()
	if txn == "" {
		if err := payment.MarkAsFailed("Payment processing timed out"); err != nil {
			return false, err
		}
		return true, s.save(ctx, payment)
	}

	gw, err := s.selector.GetGateway(payment.GatewayProvider())
	if err != nil {
		return false, err
	}
	resp, err := gw.CheckPaymentStatus(ctx, txn)
	if err != nil {
		return false, err
	}

	switch resp.Status {
	case domain.StatusCompleted:
		err = payment.MarkAsCompleted(txn)
	case domain.StatusFailed:
		err = payment.MarkAsFailed(resp.Message)
	case domain.StatusCancelled:
		err = payment.Cancel()
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", payment.ID()).
		Str("status", string(payment.Status())).
		Msg("Зависший платеж сверен с провайдером")
	return true, s.save(ctx, payment)
}

func notFound(message string) error {
	return &domain.PaymentError{Code: CodePaymentNotFound, Message: message, Err: domain.ErrPaymentNotFound}
}

func duplicateReference(reference string) error {
	return &domain.PaymentError{
		Code:    CodeDuplicateReference,
		Message: "Payment with reference " + reference + " already exists",
		Err:     domain.ErrDuplicateReference,
	}
}
