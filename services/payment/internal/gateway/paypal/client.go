// Package paypal — адаптер PayPal. Клиент API за интерфейсом Client,
// в комплекте sandbox-реализация без сетевых вызовов.
package paypal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"example.com/payment-gateway/services/payment/internal/domain"
)

// Окружения PayPal.
const (
	EnvSandbox = "sandbox"
	EnvLive    = "live"
)

// OrderParams — параметры оплаты.
type OrderParams struct {
	// RequestID — ключ идемпотентности (PayPal-Request-Id).
	RequestID string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Email     string
	ReturnURL string
	CancelURL string
}

// Client — операции PayPal, которые использует адаптер.
type Client interface {
	CaptureOrder(ctx context.Context, params OrderParams) (string, error)
	OrderStatus(ctx context.Context, transactionID string) (domain.PaymentStatus, error)
	CancelOrder(ctx context.Context, transactionID string) (bool, error)
	Refund(ctx context.Context, transactionID, reason string) (string, error)
}

// SandboxClient имитирует PayPal: оплата проходит сразу, статусы хранятся в памяти.
type SandboxClient struct {
	mu       sync.Mutex
	statuses map[string]domain.PaymentStatus
	// captured — RequestID -> транзакция; повтор с тем же RequestID не списывает повторно.
	captured map[string]string
	now      func() time.Time
}

var _ Client = (*SandboxClient)(nil)

// NewSandboxClient создает sandbox-клиент.
func NewSandboxClient() *SandboxClient {
	return &SandboxClient{
		statuses: make(map[string]domain.PaymentStatus),
		captured: make(map[string]string),
		now:      time.Now,
	}
}

func (c *SandboxClient) CaptureOrder(ctx context.Context, params OrderParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("connection aborted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if txn, ok := c.captured[params.RequestID]; ok && params.RequestID != "" {
		return txn, nil
	}

	txn := c.nextID("PAYPAL_TXN_")
	c.statuses[txn] = domain.StatusCompleted
	if params.RequestID != "" {
		c.captured[params.RequestID] = txn
	}
	return txn, nil
}

// OrderStatus возвращает сохраненный статус; о чужих транзакциях sandbox
// отвечает COMPLETED.
func (c *SandboxClient) OrderStatus(ctx context.Context, transactionID string) (domain.PaymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("connection aborted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if status, ok := c.statuses[transactionID]; ok {
		return status, nil
	}
	return domain.StatusCompleted, nil
}

func (c *SandboxClient) CancelOrder(ctx context.Context, transactionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("connection aborted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.statuses[transactionID] = domain.StatusCancelled
	return true, nil
}

func (c *SandboxClient) Refund(ctx context.Context, transactionID, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("connection aborted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.statuses[transactionID] = domain.StatusRefunded
	return c.nextID("PAYPAL_REFUND_"), nil
}

// nextID — префикс + миллисекунды; при коллизии в одну миллисекунду добавляется счетчик.
func (c *SandboxClient) nextID(prefix string) string {
	id := prefix + strconv.FormatInt(c.now().UnixMilli(), 10)
	if _, taken := c.statuses[id]; !taken {
		return id
	}
	for i := 1; ; i++ {
		candidate := id + "_" + strconv.Itoa(i)
		if _, taken := c.statuses[candidate]; !taken {
			return candidate
		}
	}
}
