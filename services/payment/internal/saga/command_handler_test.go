package saga

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/pkg/saga"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/service"
)

// =============================================================================
// Моки
// =============================================================================

// mockReplyWriter — outbox в памяти.
type mockReplyWriter struct {
	mu        sync.Mutex
	messages  []*outbox.Message
	createErr error
}

func (m *mockReplyWriter) Create(_ context.Context, msg *outbox.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockReplyWriter) lastReply(t *testing.T) (*outbox.Message, *saga.Reply) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages, "ответ должен быть записан в outbox")

	msg := m.messages[len(m.messages)-1]
	var reply saga.Reply
	require.NoError(t, json.Unmarshal(msg.Payload, &reply))
	return msg, &reply
}

// mockPaymentService — сервис платежей с подменяемыми методами.
type mockPaymentService struct {
	service.PaymentService

	processFn   func(ctx context.Context, req *domain.PaymentRequest, opts ...service.ProcessOption) (*domain.Payment, error)
	refundFn    func(ctx context.Context, id, reason string) (*domain.Payment, error)
	byIDFn      func(ctx context.Context, id string) (*domain.Payment, error)
	byRefFn     func(ctx context.Context, ref string) (*domain.Payment, error)
	processOpts int
}

func (m *mockPaymentService) ProcessPayment(ctx context.Context, req *domain.PaymentRequest, opts ...service.ProcessOption) (*domain.Payment, error) {
	m.processOpts = len(opts)
	return m.processFn(ctx, req, opts...)
}

func (m *mockPaymentService) RefundPayment(ctx context.Context, id, reason string) (*domain.Payment, error) {
	return m.refundFn(ctx, id, reason)
}

func (m *mockPaymentService) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	return m.byIDFn(ctx, id)
}

func (m *mockPaymentService) GetPaymentByReference(ctx context.Context, ref string) (*domain.Payment, error) {
	return m.byRefFn(ctx, ref)
}

// =============================================================================
// Хелперы
// =============================================================================

func newPayment(t *testing.T, merchantID string, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment("order-1001", decimal.RequireFromString("49.99"), "EUR",
		domain.MethodCreditCard, "STRIPE", "cust-1", merchantID, "Order 1001")
	require.NoError(t, err)

	switch status {
	case domain.StatusPending:
	case domain.StatusFailed:
		require.NoError(t, p.MarkAsFailed("Your card was declined."))
	case domain.StatusProcessing:
		require.NoError(t, p.MarkAsProcessing())
		require.NoError(t, p.RecordProviderReference("pi_pending"))
	default:
		require.NoError(t, p.MarkAsProcessing())
		require.NoError(t, p.MarkAsCompleted("pi_123"))
		if status == domain.StatusRefunded {
			require.NoError(t, p.MarkAsRefunded("re_456"))
		}
	}
	return p
}

func processCommand(t *testing.T, mutate func(*saga.Command)) *kafka.Message {
	t.Helper()
	cmd := &saga.Command{
		CommandID:     "cmd-1",
		CorrelationID: "order-saga-1",
		Type:          saga.CommandProcessPayment,
		Process: &saga.ProcessPaymentPayload{
			PaymentReference: "order-1001",
			Amount:           decimal.RequireFromString("49.99"),
			Currency:         "EUR",
			PaymentMethod:    "CREDIT_CARD",
			CustomerID:       "cust-1",
			MerchantID:       "merch-1",
			Card: &saga.CardPayload{
				CardNumber:     "4242424242424242",
				ExpiryMonth:    "12",
				ExpiryYear:     "2035",
				CVV:            "123",
				CardHolderName: "Jane Roe",
			},
		},
		Timestamp: time.Now().UTC(),
	}
	if mutate != nil {
		mutate(cmd)
	}
	return encode(t, cmd)
}

func refundCommand(t *testing.T, paymentID string) *kafka.Message {
	t.Helper()
	return encode(t, &saga.Command{
		CommandID:     "cmd-2",
		CorrelationID: "order-saga-1",
		Type:          saga.CommandRefundPayment,
		Refund:        &saga.RefundPaymentPayload{PaymentID: paymentID, Reason: "order cancelled"},
		Timestamp:     time.Now().UTC(),
	})
}

func encode(t *testing.T, cmd *saga.Command) *kafka.Message {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &kafka.Message{Topic: kafka.TopicPaymentCommands, Key: []byte(cmd.CorrelationID), Value: data}
}

func notFound(id string) error {
	return &domain.PaymentError{Code: service.CodePaymentNotFound, Message: "Payment not found: " + id, Err: domain.ErrPaymentNotFound}
}

// =============================================================================
// PROCESS_PAYMENT
// =============================================================================

func TestHandleMessage_ProcessPayment(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*saga.Command)
		process       func(t *testing.T) (*domain.Payment, error)
		byRef         func(t *testing.T) (*domain.Payment, error)
		wantStatus    saga.ReplyStatus
		wantErrorCode string
		wantError     string
		wantOpts      int
	}{
		{
			name: "успешная оплата",
			process: func(t *testing.T) (*domain.Payment, error) {
				return newPayment(t, "merch-1", domain.StatusCompleted), nil
			},
			wantStatus: saga.ReplySuccess,
			wantOpts:   1,
		},
		{
			name:   "явный провайдер",
			mutate: func(c *saga.Command) { c.Process.GatewayProvider = "STRIPE" },
			process: func(t *testing.T) (*domain.Payment, error) {
				return newPayment(t, "merch-1", domain.StatusCompleted), nil
			},
			wantStatus: saga.ReplySuccess,
			wantOpts:   2,
		},
		{
			name:       "отказ провайдера",
			process:    func(t *testing.T) (*domain.Payment, error) { return newPayment(t, "merch-1", domain.StatusFailed), nil },
			wantStatus: saga.ReplyFailed,
			wantError:  "Your card was declined.",
			wantOpts:   1,
		},
		{
			name: "провайдер еще обрабатывает",
			process: func(t *testing.T) (*domain.Payment, error) {
				return newPayment(t, "merch-1", domain.StatusProcessing), nil
			},
			wantStatus: saga.ReplyPending,
			wantOpts:   1,
		},
		{
			name: "невалидная карта",
			process: func(*testing.T) (*domain.Payment, error) {
				return nil, domain.NewPaymentErrorWithCode(domain.CodeValidationError, "Numero de tarjeta invalido")
			},
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "Numero de tarjeta invalido",
			wantOpts:      1,
		},
		{
			name:          "неизвестный метод оплаты",
			mutate:        func(c *saga.Command) { c.Process.PaymentMethod = "CASH" },
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "Invalid value for field 'paymentMethod': CASH",
		},
		{
			name:          "неподдерживаемая валюта",
			mutate:        func(c *saga.Command) { c.Process.Currency = "RUB" },
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "Unsupported currency: RUB",
		},
		{
			name:          "пустой CVV",
			mutate:        func(c *saga.Command) { c.Process.Card.CVV = "" },
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "CVV cannot be null or empty",
		},
		{
			name:          "пустой референс",
			mutate:        func(c *saga.Command) { c.Process.PaymentReference = "  " },
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "Payment reference is required",
		},
		{
			name:          "лишние знаки в сумме",
			mutate:        func(c *saga.Command) { c.Process.Amount = decimal.RequireFromString("49.999") },
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: domain.CodeValidationError,
			wantError:     "Amount 49.999 has more than 2 decimal places for EUR",
		},
		{
			name: "повторная доставка: платеж уже проведен",
			process: func(*testing.T) (*domain.Payment, error) {
				return nil, &domain.PaymentError{Code: service.CodeDuplicateReference, Message: "dup", Err: domain.ErrDuplicateReference}
			},
			byRef: func(t *testing.T) (*domain.Payment, error) {
				return newPayment(t, "merch-1", domain.StatusCompleted), nil
			},
			wantStatus: saga.ReplySuccess,
			wantOpts:   1,
		},
		{
			name: "референс занят другим мерчантом",
			process: func(*testing.T) (*domain.Payment, error) {
				return nil, &domain.PaymentError{Code: service.CodeDuplicateReference, Message: "dup", Err: domain.ErrDuplicateReference}
			},
			byRef: func(t *testing.T) (*domain.Payment, error) {
				return newPayment(t, "merch-2", domain.StatusCompleted), nil
			},
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: service.CodeDuplicateReference,
			wantError:     "Payment reference already exists: order-1001",
			wantOpts:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := &mockReplyWriter{}
			svc := &mockPaymentService{
				processFn: func(context.Context, *domain.PaymentRequest, ...service.ProcessOption) (*domain.Payment, error) {
					require.NotNil(t, tt.process, "сервис не должен вызываться")
					return tt.process(t)
				},
				byRefFn: func(_ context.Context, ref string) (*domain.Payment, error) {
					assert.Equal(t, "order-1001", ref)
					return tt.byRef(t)
				},
			}
			h := NewCommandHandler(nil, replies, svc)

			err := h.HandleMessage(context.Background(), processCommand(t, tt.mutate))
			require.NoError(t, err)

			msg, reply := replies.lastReply(t)
			assert.Equal(t, kafka.TopicPaymentReplies, msg.Topic)
			assert.Equal(t, EventPaymentReply, msg.EventType)
			assert.Equal(t, "order-saga-1", msg.Key, "ключ — correlation id")

			assert.Equal(t, "cmd-1", reply.CommandID)
			assert.Equal(t, saga.CommandProcessPayment, reply.Type)
			assert.Equal(t, tt.wantStatus, reply.Status)
			assert.Equal(t, tt.wantErrorCode, reply.ErrorCode)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, reply.Error)
			}
			assert.Equal(t, tt.wantOpts, svc.processOpts)
		})
	}
}

func TestHandleMessage_ProcessPayment_Success_Fields(t *testing.T) {
	replies := &mockReplyWriter{}
	payment := newPayment(t, "merch-1", domain.StatusCompleted)

	var captured *domain.PaymentRequest
	svc := &mockPaymentService{
		processFn: func(_ context.Context, req *domain.PaymentRequest, _ ...service.ProcessOption) (*domain.Payment, error) {
			captured = req
			return payment, nil
		},
	}
	h := NewCommandHandler(nil, replies, svc)

	require.NoError(t, h.HandleMessage(context.Background(), processCommand(t, nil)))

	require.NotNil(t, captured)
	assert.True(t, captured.Amount().Equal(decimal.RequireFromString("49.99")))
	card, ok := captured.CardDetails()
	require.True(t, ok)
	assert.Equal(t, "4242424242424242", card.CardNumber())

	msg, reply := replies.lastReply(t)
	assert.Equal(t, payment.ID(), msg.AggregateID)
	assert.Equal(t, payment.ID(), reply.PaymentID)
	assert.Equal(t, "COMPLETED", reply.PaymentStatus)
	assert.Equal(t, "pi_123", reply.TransactionID)
}

func TestHandleMessage_RetryableErrors(t *testing.T) {
	tests := []struct {
		name       string
		processErr error
		createErr  error
	}{
		{
			name:       "ошибка базы данных",
			processErr: errors.New("connection refused"),
		},
		{
			name:       "ключ идемпотентности занят",
			processErr: domain.NewPaymentErrorWithCode(service.CodeIdempotencyInProgress, "in progress"),
		},
		{
			name:      "ошибка записи в outbox",
			createErr: errors.New("deadlock"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := &mockReplyWriter{createErr: tt.createErr}
			svc := &mockPaymentService{
				processFn: func(context.Context, *domain.PaymentRequest, ...service.ProcessOption) (*domain.Payment, error) {
					if tt.processErr != nil {
						return nil, tt.processErr
					}
					return newPayment(t, "merch-1", domain.StatusCompleted), nil
				},
			}
			h := NewCommandHandler(nil, replies, svc)

			err := h.HandleMessage(context.Background(), processCommand(t, nil))

			require.Error(t, err, "сообщение должно быть повторено")
			assert.Empty(t, replies.messages)
		})
	}
}

func TestHandleMessage_InvalidMessages(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"битый JSON", `{"commandId":`},
		{"нет commandId", `{"type":"PROCESS_PAYMENT","process":{}}`},
		{"неизвестный тип", `{"commandId":"c","type":"CAPTURE"}`},
		{"REFUND без paymentId", `{"commandId":"c","type":"REFUND_PAYMENT","refund":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := &mockReplyWriter{}
			h := NewCommandHandler(nil, replies, &mockPaymentService{})

			err := h.HandleMessage(context.Background(), &kafka.Message{Value: []byte(tt.value)})

			assert.Error(t, err)
			assert.Empty(t, replies.messages)
		})
	}
}

// =============================================================================
// REFUND_PAYMENT
// =============================================================================

func TestHandleMessage_RefundPayment(t *testing.T) {
	completed := newPayment(t, "merch-1", domain.StatusCompleted)
	refunded := newPayment(t, "merch-1", domain.StatusRefunded)

	tests := []struct {
		name          string
		current       *domain.Payment
		refundErr     error
		wantStatus    saga.ReplyStatus
		wantErrorCode string
		wantRefund    bool
	}{
		{
			name:       "успешный возврат",
			current:    completed,
			wantStatus: saga.ReplySuccess,
			wantRefund: true,
		},
		{
			name:       "повторная команда: уже возвращен",
			current:    refunded,
			wantStatus: saga.ReplySuccess,
		},
		{
			name:          "платеж не найден",
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: service.CodePaymentNotFound,
		},
		{
			name:          "провайдер отказал",
			current:       completed,
			refundErr:     domain.NewPaymentErrorWithCode("charge_already_refunded", "Charge has already been refunded."),
			wantStatus:    saga.ReplyFailed,
			wantErrorCode: "charge_already_refunded",
			wantRefund:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := &mockReplyWriter{}
			refundCalled := false

			svc := &mockPaymentService{
				byIDFn: func(_ context.Context, id string) (*domain.Payment, error) {
					if tt.current == nil {
						return nil, notFound(id)
					}
					return tt.current, nil
				},
				refundFn: func(_ context.Context, _ string, reason string) (*domain.Payment, error) {
					refundCalled = true
					assert.Equal(t, "order cancelled", reason)
					if tt.refundErr != nil {
						return nil, tt.refundErr
					}
					return refunded, nil
				},
			}
			h := NewCommandHandler(nil, replies, svc)

			id := "missing"
			if tt.current != nil {
				id = tt.current.ID()
			}
			require.NoError(t, h.HandleMessage(context.Background(), refundCommand(t, id)))

			_, reply := replies.lastReply(t)
			assert.Equal(t, saga.CommandRefundPayment, reply.Type)
			assert.Equal(t, tt.wantStatus, reply.Status)
			assert.Equal(t, tt.wantErrorCode, reply.ErrorCode)
			assert.Equal(t, tt.wantRefund, refundCalled)
			if tt.wantStatus == saga.ReplySuccess {
				assert.Equal(t, "re_456", reply.TransactionID)
				assert.Equal(t, "REFUNDED", reply.PaymentStatus)
			}
		})
	}
}

// Повторы из kafka.WithRetry: временный сбой outbox не теряет ответ.
func TestHandleMessage_WithRetry(t *testing.T) {
	replies := &flakyReplyWriter{failures: 2}
	svc := &mockPaymentService{
		processFn: func(context.Context, *domain.PaymentRequest, ...service.ProcessOption) (*domain.Payment, error) {
			return newPayment(t, "merch-1", domain.StatusCompleted), nil
		},
	}
	h := NewCommandHandler(nil, replies, svc)

	handler := kafka.WithRetry(h.HandleMessage, 3, time.Millisecond)
	require.NoError(t, handler(context.Background(), processCommand(t, nil)))

	assert.Equal(t, 3, replies.calls)
	assert.Len(t, replies.messages, 1)
}

type flakyReplyWriter struct {
	failures int
	calls    int
	messages []*outbox.Message
}

func (f *flakyReplyWriter) Create(_ context.Context, msg *outbox.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("lock wait timeout")
	}
	f.messages = append(f.messages, msg)
	return nil
}
