package gateway

import (
	"fmt"
	"strings"

	"example.com/payment-gateway/services/payment/internal/domain"
)

// Preferences — порядок предпочтения провайдеров для метода оплаты.
type Preferences map[domain.PaymentMethod][]string

// DefaultPreferences: карточные методы идут в Stripe, PAYPAL — в PayPal.
func DefaultPreferences() Preferences {
	return Preferences{
		domain.MethodCreditCard: {ProviderStripe},
		domain.MethodDebitCard:  {ProviderStripe},
		domain.MethodApplePay:   {ProviderStripe},
		domain.MethodGooglePay:  {ProviderStripe},
		domain.MethodPayPal:     {ProviderPayPal},
	}
}

// Selector хранит провайдеров в порядке регистрации.
type Selector struct {
	gateways    []Strategy
	preferences Preferences
}

// NewSelector создает Selector. prefs == nil — DefaultPreferences.
func NewSelector(prefs Preferences, gateways ...Strategy) *Selector {
	if prefs == nil {
		prefs = DefaultPreferences()
	}
	return &Selector{
		gateways:    append([]Strategy(nil), gateways...),
		preferences: prefs,
	}
}

// GetGateway ищет провайдера по идентификатору без учета регистра.
func (s *Selector) GetGateway(providerID string) (Strategy, error) {
	for _, g := range s.gateways {
		if strings.EqualFold(g.ProviderIdentifier(), providerID) {
			return g, nil
		}
	}
	return nil, domain.NewPaymentErrorWithCode(CodeUnsupportedGateway,
		fmt.Sprintf("Unsupported payment gateway: %s", providerID))
}

// GetBestGatewayForMethod выбирает провайдера для метода.
//
// Из совместимых провайдеров берется первый по таблице предпочтений,
// иначе первый совместимый в порядке регистрации.
func (s *Selector) GetBestGatewayForMethod(method domain.PaymentMethod) (Strategy, error) {
	var candidates []Strategy
	for _, g := range s.gateways {
		if g.SupportsPaymentMethod(method) {
			candidates = append(candidates, g)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, domain.NewPaymentErrorWithCode(CodeNoGateway,
			fmt.Sprintf("No compatible payment gateway found for payment method: %s", method))
	case 1:
		return candidates[0], nil
	}

	for _, preferred := range s.preferences[method] {
		for _, c := range candidates {
			if strings.EqualFold(c.ProviderIdentifier(), preferred) {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}

// GetAllGateways возвращает копию списка в порядке регистрации.
func (s *Selector) GetAllGateways() []Strategy {
	return append([]Strategy(nil), s.gateways...)
}
