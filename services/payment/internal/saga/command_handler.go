// Package saga обрабатывает команды из payment.commands.
// Ответ на команду пишется в outbox, Relay публикует его в payment.replies
// с гарантией at-least-once.
package saga

import (
	"context"
	"errors"
	"fmt"

	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/pkg/saga"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/service"
)

// EventPaymentReply — тип записи outbox с ответом на команду.
const EventPaymentReply = "payment.reply"

// defaultMaxRetries — повторы обработки сообщения до отправки в DLQ.
const defaultMaxRetries = 3

// ReplyWriter сохраняет ответ в outbox (реализуется outbox.GormStore).
type ReplyWriter interface {
	Create(ctx context.Context, msg *outbox.Message) error
}

// CommandHandler обрабатывает команды оплаты и возврата.
//
// Бизнес-отказ (невалидная карта, отказ провайдера) — это ответ FAILED, а не
// ошибка обработки. Ошибка возвращается только для инфраструктурных сбоев:
// сообщение повторяется и после исчерпания попыток уходит в DLQ.
type CommandHandler struct {
	consumer   *kafka.Consumer
	replies    ReplyWriter
	payments   service.PaymentService
	maxRetries int
}

// NewCommandHandler создает обработчик. consumer может быть nil, если
// сообщения подаются через HandleMessage напрямую.
func NewCommandHandler(consumer *kafka.Consumer, replies ReplyWriter, payments service.PaymentService) *CommandHandler {
	return &CommandHandler{
		consumer:   consumer,
		replies:    replies,
		payments:   payments,
		maxRetries: defaultMaxRetries,
	}
}

// Run читает команды до отмены ctx.
func (h *CommandHandler) Run(ctx context.Context) error {
	logger.Info().Str("topic", kafka.TopicPaymentCommands).Msg("Запуск обработчика команд платежей")
	return h.consumer.ConsumeWithRetry(ctx, h.HandleMessage, h.maxRetries)
}

// Close закрывает consumer.
func (h *CommandHandler) Close() error {
	if h.consumer == nil {
		return nil
	}
	return h.consumer.Close()
}

// HandleMessage обрабатывает одно сообщение.
func (h *CommandHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	cmd, err := saga.CommandFromJSON(msg.Value)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("Некорректная команда")
		return fmt.Errorf("разбор команды: %w", err)
	}

	if cmd.CorrelationID != "" && logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.NewContextWithIDs(ctx, logger.TraceIDFromContext(ctx), cmd.CorrelationID)
	}
	log := logger.Ctx(ctx).With().
		Str("command_id", cmd.CommandID).
		Str("command_type", string(cmd.Type)).
		Logger()
	log.Info().Msg("Получена команда")

	var (
		reply     *saga.Reply
		handleErr error
	)
	switch cmd.Type {
	case saga.CommandProcessPayment:
		reply, handleErr = h.handleProcessPayment(ctx, cmd)
	case saga.CommandRefundPayment:
		reply, handleErr = h.handleRefundPayment(ctx, cmd)
	}
	if handleErr != nil {
		log.Error().Err(handleErr).Msg("Ошибка обработки команды")
		return handleErr
	}

	if err := h.saveReply(ctx, reply); err != nil {
		log.Error().Err(err).Msg("Ошибка сохранения ответа в outbox")
		return err
	}

	log.Info().
		Str("reply_status", string(reply.Status)).
		Str("payment_id", reply.PaymentID).
		Msg("Ответ на команду сохранен")
	return nil
}

func (h *CommandHandler) handleProcessPayment(ctx context.Context, cmd *saga.Command) (*saga.Reply, error) {
	req, err := toPaymentRequest(cmd.Process)
	if err != nil {
		return failedReply(cmd, err)
	}

	opts := []service.ProcessOption{service.WithIdempotencyKey(cmd.CommandID)}
	if cmd.Process.GatewayProvider != "" {
		opts = append(opts, service.WithGatewayProvider(cmd.Process.GatewayProvider))
	}

	payment, err := h.payments.ProcessPayment(ctx, req, opts...)
	if errors.Is(err, domain.ErrDuplicateReference) {
		// Повторная доставка после потери ответа: отвечаем текущим состоянием платежа.
		payment, err = h.payments.GetPaymentByReference(ctx, cmd.Process.PaymentReference)
		if err != nil {
			return nil, err
		}
		if payment.MerchantID() != cmd.Process.MerchantID {
			return failedReply(cmd, &domain.PaymentError{
				Code:    service.CodeDuplicateReference,
				Message: "Payment reference already exists: " + cmd.Process.PaymentReference,
				Err:     domain.ErrDuplicateReference,
			})
		}
	}
	if err != nil {
		return failedReply(cmd, err)
	}

	return paymentReply(cmd, payment), nil
}

func (h *CommandHandler) handleRefundPayment(ctx context.Context, cmd *saga.Command) (*saga.Reply, error) {
	id := cmd.Refund.PaymentID

	current, err := h.payments.GetPaymentByID(ctx, id)
	if err != nil {
		return failedReply(cmd, err)
	}
	if current.Status() == domain.StatusRefunded {
		return paymentReply(cmd, current), nil
	}

	reason := cmd.Refund.Reason
	if reason == "" {
		reason = "Refund requested via payment command"
	}

	payment, err := h.payments.RefundPayment(ctx, id, reason)
	if err != nil {
		return failedReply(cmd, err)
	}
	return paymentReply(cmd, payment), nil
}

func (h *CommandHandler) saveReply(ctx context.Context, reply *saga.Reply) error {
	aggregateID := reply.PaymentID
	if aggregateID == "" {
		aggregateID = reply.CommandID
	}

	msg, err := outbox.NewMessage(aggregateID, EventPaymentReply, kafka.TopicPaymentReplies, reply.Key(), reply, kafka.HeadersFromContext(ctx))
	if err != nil {
		return err
	}
	return h.replies.Create(ctx, msg)
}

// failedReply превращает доменную ошибку в ответ FAILED. Прочие ошибки
// возвращаются как есть, чтобы сообщение было повторено.
func failedReply(cmd *saga.Command, err error) (*saga.Reply, error) {
	var pe *domain.PaymentError
	if !errors.As(err, &pe) || pe.Code == service.CodeIdempotencyInProgress {
		return nil, err
	}

	reply := saga.NewReply(cmd, saga.ReplyFailed)
	reply.ErrorCode = pe.Code
	reply.Error = pe.Message
	return reply, nil
}

func paymentReply(cmd *saga.Command, p *domain.Payment) *saga.Reply {
	status := saga.ReplySuccess
	switch p.Status() {
	case domain.StatusPending, domain.StatusProcessing:
		status = saga.ReplyPending
	case domain.StatusFailed, domain.StatusCancelled:
		status = saga.ReplyFailed
	}

	reply := saga.NewReply(cmd, status)
	reply.PaymentID = p.ID()
	reply.PaymentStatus = string(p.Status())
	if txn := p.GatewayTransactionID(); txn != nil {
		reply.TransactionID = *txn
	}
	if p.Status() == domain.StatusRefunded && p.RefundTransactionID() != nil {
		reply.TransactionID = *p.RefundTransactionID()
	}
	if reason := p.FailureReason(); reason != nil && status == saga.ReplyFailed {
		reply.Error = *reason
	}
	return reply
}

func toPaymentRequest(p *saga.ProcessPaymentPayload) (*domain.PaymentRequest, error) {
	method, ok := domain.ParsePaymentMethod(p.PaymentMethod)
	if !ok {
		return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError,
			fmt.Sprintf("Invalid value for field 'paymentMethod': %s", p.PaymentMethod))
	}
	if !domain.IsSupportedCurrency(p.Currency) {
		return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError, "Unsupported currency: "+p.Currency)
	}

	var (
		details domain.PaymentDetails
		err     error
	)
	switch {
	case p.Card != nil:
		details, err = domain.NewCreditCardDetails(p.Card.CardNumber, p.Card.ExpiryMonth, p.Card.ExpiryYear, p.Card.CVV, p.Card.CardHolderName)
	case p.PayPal != nil:
		details, err = domain.NewPayPalDetails(p.PayPal.Email, p.PayPal.ReturnURL, p.PayPal.CancelURL)
	}
	if err != nil {
		return nil, err
	}

	return domain.NewPaymentRequest(p.PaymentReference, p.Amount, p.Currency, method,
		p.CustomerID, p.MerchantID, p.Description, details)
}
