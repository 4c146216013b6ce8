package gateway

import (
	"context"
	"sync"

	"example.com/payment-gateway/services/payment/internal/domain"
)

// fakeStrategy — управляемая стратегия для тестов.
type fakeStrategy struct {
	mu      sync.Mutex
	id      string
	methods []domain.PaymentMethod
	resp    *domain.PaymentResponse
	err     error
	block   bool
	calls   int
}

func newFake(id string, methods ...domain.PaymentMethod) *fakeStrategy {
	return &fakeStrategy{id: id, methods: methods}
}

func (f *fakeStrategy) respond(ctx context.Context) (*domain.PaymentResponse, error) {
	f.mu.Lock()
	f.calls++
	resp, err, block := f.resp, f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.Failure("", "Payment processing failed: "+ctx.Err().Error(), CodeConnectionError), nil
	}
	if resp == nil && err == nil {
		resp = domain.Success("txn-"+f.id, "", nil, "", nil)
	}
	return resp, err
}

func (f *fakeStrategy) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStrategy) ProcessPayment(ctx context.Context, _ *domain.PaymentRequest) *domain.PaymentResponse {
	resp, _ := f.respond(ctx)
	return resp
}

func (f *fakeStrategy) CheckPaymentStatus(ctx context.Context, _ string) (*domain.PaymentResponse, error) {
	return f.respond(ctx)
}

func (f *fakeStrategy) CancelPayment(ctx context.Context, _ string) *domain.PaymentResponse {
	resp, _ := f.respond(ctx)
	return resp
}

func (f *fakeStrategy) RefundPayment(ctx context.Context, _, _ string) *domain.PaymentResponse {
	resp, _ := f.respond(ctx)
	return resp
}

func (f *fakeStrategy) SupportsPaymentMethod(method domain.PaymentMethod) bool {
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (f *fakeStrategy) ProviderIdentifier() string { return f.id }
