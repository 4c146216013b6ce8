package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/payment-gateway/pkg/jwt"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/middleware"
	"example.com/payment-gateway/services/payment/internal/repository"
	"example.com/payment-gateway/services/payment/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockPaymentService — мок для service.PaymentService.
type MockPaymentService struct {
	ProcessPaymentFunc        func(ctx context.Context, req *domain.PaymentRequest, opts ...service.ProcessOption) (*domain.Payment, error)
	CancelPaymentFunc         func(ctx context.Context, id string) (*domain.Payment, error)
	RefundPaymentFunc         func(ctx context.Context, id, reason string) (*domain.Payment, error)
	CheckPaymentStatusFunc    func(ctx context.Context, id string) (*domain.PaymentResponse, error)
	GetPaymentByIDFunc        func(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentByReferenceFunc func(ctx context.Context, ref string) (*domain.Payment, error)
	ListPaymentsFunc          func(ctx context.Context, filter repository.Filter) ([]*domain.Payment, error)
}

var _ service.PaymentService = (*MockPaymentService)(nil)

func (m *MockPaymentService) ProcessPayment(ctx context.Context, req *domain.PaymentRequest, opts ...service.ProcessOption) (*domain.Payment, error) {
	return m.ProcessPaymentFunc(ctx, req, opts...)
}

func (m *MockPaymentService) CancelPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return m.CancelPaymentFunc(ctx, id)
}

func (m *MockPaymentService) RefundPayment(ctx context.Context, id, reason string) (*domain.Payment, error) {
	return m.RefundPaymentFunc(ctx, id, reason)
}

func (m *MockPaymentService) CheckPaymentStatus(ctx context.Context, id string) (*domain.PaymentResponse, error) {
	return m.CheckPaymentStatusFunc(ctx, id)
}

func (m *MockPaymentService) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	return m.GetPaymentByIDFunc(ctx, id)
}

func (m *MockPaymentService) GetPaymentByReference(ctx context.Context, ref string) (*domain.Payment, error) {
	return m.GetPaymentByReferenceFunc(ctx, ref)
}

func (m *MockPaymentService) GetPaymentsByCustomer(context.Context, string) ([]*domain.Payment, error) {
	return nil, nil
}

func (m *MockPaymentService) GetPaymentsByMerchant(context.Context, string) ([]*domain.Payment, error) {
	return nil, nil
}

func (m *MockPaymentService) GetPaymentsByStatus(context.Context, domain.PaymentStatus) ([]*domain.Payment, error) {
	return nil, nil
}

func (m *MockPaymentService) ListPayments(ctx context.Context, filter repository.Filter) ([]*domain.Payment, error) {
	return m.ListPaymentsFunc(ctx, filter)
}

func (m *MockPaymentService) CountByStatus(context.Context, domain.PaymentStatus) (int64, error) {
	return 0, nil
}

func (m *MockPaymentService) ReconcileStuck(context.Context, time.Duration, int) (int, error) {
	return 0, nil
}

// testPayment — платеж мерчанта merch-456 в статусе status.
func testPayment(t *testing.T, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment("test-ref-123", decimal.RequireFromString("100.50"), "USD",
		domain.MethodCreditCard, "STRIPE", "cust-123", "merch-456", "Test Payment")
	require.NoError(t, err)

	switch status {
	case domain.StatusPending:
	case domain.StatusFailed:
		require.NoError(t, p.MarkAsFailed("Payment processing failed: declined"))
	default:
		require.NoError(t, p.MarkAsProcessing())
		if status != domain.StatusProcessing {
			require.NoError(t, p.MarkAsCompleted("txn_123456789"))
		}
		if status == domain.StatusRefunded {
			require.NoError(t, p.MarkAsRefunded("re_1"))
		}
	}
	return p
}

// tokenIssuer выпускает токены мерчантов для защищенных маршрутов.
type tokenIssuer struct {
	manager *jwt.Manager
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &tokenIssuer{manager: jwt.NewManagerWithKeys(&key.PublicKey, key, "merchant-portal", time.Hour)}
}

func (i *tokenIssuer) token(t *testing.T, merchantID string, scopes ...string) string {
	t.Helper()
	token, _, err := i.manager.Issue(merchantID, scopes...)
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestRouter(svc service.PaymentService, issuer *tokenIssuer, revoker TokenRevoker) *gin.Engine {
	cfg := RouterConfig{
		Payments:  svc,
		Cards:     service.NewCardService(nil),
		Revoker:   revoker,
		RevokeTTL: time.Hour,
	}
	if issuer != nil {
		cfg.AuthMW = middleware.NewAuthMiddleware(issuer.manager)
	}
	r := NewRouter(cfg).Engine()
	gin.SetMode(gin.TestMode)
	return r
}
