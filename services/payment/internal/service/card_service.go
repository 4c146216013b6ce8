package service

import (
	"errors"

	"example.com/payment-gateway/pkg/metrics"
	"example.com/payment-gateway/services/payment/internal/cardvalidation"
	"example.com/payment-gateway/services/payment/internal/domain"
)

// CardService — проверка карт для REST, gRPC и потока оплаты.
type CardService struct {
	validator *cardvalidation.Validator
}

// NewCardService создает сервис. validator == nil — валидатор с системными часами.
func NewCardService(validator *cardvalidation.Validator) *CardService {
	if validator == nil {
		validator = cardvalidation.New()
	}
	return &CardService{validator: validator}
}

// ValidateCreditCard проверяет уже собранные реквизиты.
func (s *CardService) ValidateCreditCard(details *domain.CreditCardDetails) domain.CreditCardValidationResult {
	return record(s.validator.Validate(details))
}

// ValidateCardInput собирает реквизиты из сырых полей и проверяет их.
// Ошибка конструктора превращается в Invalid с ее текстом, просроченная карта —
// в Expired с брендом и маской.
func (s *CardService) ValidateCardInput(number, expiryMonth, expiryYear, cvv, holder string) domain.CreditCardValidationResult {
	details, err := domain.NewCreditCardDetails(number, expiryMonth, expiryYear, cvv, holder)
	switch {
	case errors.Is(err, domain.ErrCardExpired):
		return record(s.validator.ValidateFields(number, expiryMonth, expiryYear))
	case err != nil:
		return record(domain.InvalidCard(err.Error()))
	}
	return s.ValidateCreditCard(details)
}

// DetermineCardType возвращает бренд карты.
func (s *CardService) DetermineCardType(number string) string {
	return cardvalidation.DetermineCardType(number)
}

func record(result domain.CreditCardValidationResult) domain.CreditCardValidationResult {
	outcome := "invalid"
	switch {
	case result.IsValid:
		outcome = "valid"
	case result.IsExpired:
		outcome = "expired"
	}
	metrics.RecordCardValidation(result.CardType, outcome)
	return result
}
