package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentRequest — проверенный запрос на оплату.
type PaymentRequest struct {
	paymentReference string
	amount           decimal.Decimal
	currency         string
	paymentMethod    PaymentMethod
	customerID       string
	merchantID       string
	description      string
	details          PaymentDetails
}

// NewPaymentRequest проверяет поля; details может быть nil.
func NewPaymentRequest(
	paymentReference string,
	amount decimal.Decimal,
	currency string,
	method PaymentMethod,
	customerID string,
	merchantID string,
	description string,
	details PaymentDetails,
) (*PaymentRequest, error) {
	if isBlank(paymentReference) {
		return nil, validationError("Payment reference is required")
	}
	if !amount.IsPositive() {
		return nil, validationError("Amount must be positive")
	}
	if isBlank(currency) {
		return nil, validationError("Currency is required")
	}
	if !FitsCurrencyScale(amount, currency) {
		return nil, validationError(fmt.Sprintf("Amount %s has more than %d decimal places for %s",
			amount.String(), CurrencyScale(currency), strings.ToUpper(strings.TrimSpace(currency))))
	}
	if isBlank(string(method)) {
		return nil, validationError("Payment method is required")
	}
	if isBlank(customerID) {
		return nil, validationError("Customer ID is required")
	}
	if isBlank(merchantID) {
		return nil, validationError("Merchant ID is required")
	}

	return &PaymentRequest{
		paymentReference: paymentReference,
		amount:           amount,
		currency:         strings.ToUpper(strings.TrimSpace(currency)),
		paymentMethod:    method,
		customerID:       customerID,
		merchantID:       merchantID,
		description:      description,
		details:          details,
	}, nil
}

func (r *PaymentRequest) PaymentReference() string     { return r.paymentReference }
func (r *PaymentRequest) Amount() decimal.Decimal      { return r.amount }
func (r *PaymentRequest) Currency() string             { return r.currency }
func (r *PaymentRequest) PaymentMethod() PaymentMethod { return r.paymentMethod }
func (r *PaymentRequest) CustomerID() string           { return r.customerID }
func (r *PaymentRequest) MerchantID() string           { return r.merchantID }
func (r *PaymentRequest) Description() string          { return r.description }
func (r *PaymentRequest) Details() PaymentDetails      { return r.details }

// CardDetails возвращает реквизиты карты, если они переданы.
func (r *PaymentRequest) CardDetails() (*CreditCardDetails, bool) {
	d, ok := r.details.(*CreditCardDetails)
	return d, ok && d != nil
}
