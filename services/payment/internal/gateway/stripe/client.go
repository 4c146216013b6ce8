// Package stripe — адаптер Stripe: клиент Payment Intents API на stripe-go и стратегия шлюза.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"example.com/payment-gateway/pkg/logger"
)

// Типы ошибок Stripe API.
const (
	ErrTypeCard           = "card_error"
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypeAPIConnection  = "api_connection_error"
	ErrTypeAPI            = "api_error"
)

// Статусы PaymentIntent.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentCanceled              = "canceled"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
	IntentRequiresCapture       = "requires_capture"
)

// Error — ошибка, которую вернул Stripe API.
type Error struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	StatusCode  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe %s: %s", e.Type, e.Message)
}

// ConnectionError — запрос не дошел до Stripe или ответ не прочитан.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("stripe connection error (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PaymentIntent — нужная часть объекта payment_intent.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	LastPaymentError *Error            `json:"last_payment_error,omitempty"`
	Metadata         map[string]string `json:"metadata"`
	Created          int64             `json:"created"`
}

// Refund — нужная часть объекта refund.
type Refund struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
}

// CardParams — реквизиты карты для payment_method_data.
type CardParams struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVC      string
}

// PaymentIntentParams — параметры создания PaymentIntent.
type PaymentIntentParams struct {
	Amount      int64
	Currency    string
	Description string
	// IdempotencyKey уходит в заголовок Idempotency-Key.
	IdempotencyKey string
	Metadata       map[string]string
	Card           *CardParams
}

// Config — настройки клиента.
type Config struct {
	SecretKey string
	// BaseURL — адрес API без версии; пусто — боевой адрес Stripe.
	BaseURL string
	Timeout time.Duration
}

// Client — клиент Stripe API поверх stripe-go.
type Client struct {
	api *client.API
}

// NewClient создает клиент с инструментированным транспортом otelhttp.
// Повторы stripe-go отключены: сбои учитывает circuit breaker шлюза.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	backendCfg := &stripego.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	}
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		backendCfg.URL = stripego.String(baseURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendCfg),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendCfg),
	})

	return &Client{api: api}
}

// CreatePaymentIntent создает и сразу подтверждает PaymentIntent.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	p := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(params.Amount),
		Currency:           stripego.String(strings.ToLower(params.Currency)),
		Confirm:            stripego.Bool(true),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
	}
	p.Context = ctx
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}
	if params.Description != "" {
		p.Description = stripego.String(params.Description)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if card := params.Card; card != nil {
		p.AddExtra("payment_method_data[type]", "card")
		p.AddExtra("payment_method_data[card][number]", card.Number)
		p.AddExtra("payment_method_data[card][exp_month]", card.ExpMonth)
		p.AddExtra("payment_method_data[card][exp_year]", card.ExpYear)
		p.AddExtra("payment_method_data[card][cvc]", card.CVC)
	}

	pi, err := c.api.PaymentIntents.New(p)
	if err != nil {
		return nil, convertError("create payment_intent", err)
	}

	intent := fromStripeIntent(pi)
	logger.Ctx(ctx).Debug().
		Str("intent_id", intent.ID).
		Str("intent_status", intent.Status).
		Msg("Stripe PaymentIntent создан")
	return intent, nil
}

// RetrievePaymentIntent возвращает PaymentIntent по id.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	p := &stripego.PaymentIntentParams{}
	p.Context = ctx

	pi, err := c.api.PaymentIntents.Get(id, p)
	if err != nil {
		return nil, convertError("retrieve payment_intent", err)
	}
	return fromStripeIntent(pi), nil
}

// CancelPaymentIntent отменяет PaymentIntent.
func (c *Client) CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	p := &stripego.PaymentIntentCancelParams{}
	p.Context = ctx

	pi, err := c.api.PaymentIntents.Cancel(id, p)
	if err != nil {
		return nil, convertError("cancel payment_intent", err)
	}
	return fromStripeIntent(pi), nil
}

// CreateRefund возвращает средства по PaymentIntent полностью.
func (c *Client) CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error) {
	p := &stripego.RefundParams{PaymentIntent: stripego.String(paymentIntentID)}
	p.Context = ctx
	if reason != "" {
		p.AddMetadata("reason", reason)
	}

	r, err := c.api.Refunds.New(p)
	if err != nil {
		return nil, convertError("create refund", err)
	}

	refund := &Refund{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: string(r.Currency),
		Status:   string(r.Status),
	}
	if r.PaymentIntent != nil {
		refund.PaymentIntent = r.PaymentIntent.ID
	}
	return refund, nil
}

func fromStripeIntent(pi *stripego.PaymentIntent) *PaymentIntent {
	intent := &PaymentIntent{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
		Created:  pi.Created,
	}
	if pi.LastPaymentError != nil {
		intent.LastPaymentError = fromStripeError(pi.LastPaymentError)
	}
	return intent
}

func fromStripeError(e *stripego.Error) *Error {
	return &Error{
		Type:        string(e.Type),
		Code:        string(e.Code),
		DeclineCode: string(e.DeclineCode),
		Message:     e.Msg,
		StatusCode:  e.HTTPStatusCode,
	}
}

// convertError: ответ API с ошибкой — *Error, все остальное — *ConnectionError.
func convertError(op string, err error) error {
	var apiErr *stripego.Error
	if errors.As(err, &apiErr) {
		return fromStripeError(apiErr)
	}
	return &ConnectionError{Op: op, Err: err}
}

// ErrorCode переводит ошибку клиента в код ошибки шлюза.
func ErrorCode(err error) string {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return "CONNECTION_ERROR"
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return "UNKNOWN_ERROR"
	}
	switch apiErr.Type {
	case ErrTypeCard:
		return "CARD_ERROR"
	case ErrTypeInvalidRequest:
		return "INVALID_REQUEST"
	case ErrTypeAuthentication:
		return "AUTHENTICATION_ERROR"
	case ErrTypeAPIConnection:
		return "CONNECTION_ERROR"
	}
	return "UNKNOWN_ERROR"
}
