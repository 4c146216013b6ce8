package domain

// Сообщения результата проверки карты.
const (
	MessageCardValid   = "Tarjeta valida"
	MessageCardExpired = "Tarjeta expirada"
	CardTypeUnknown    = "UNKNOWN"
)

// CreditCardValidationResult — результат проверки карты.
type CreditCardValidationResult struct {
	IsValid          bool   `json:"isValid"`
	CardType         string `json:"cardType"`
	MaskedCardNumber string `json:"maskedCardNumber"`
	Message          string `json:"message"`
	IsExpired        bool   `json:"isExpired"`
	DaysUntilExpiry  int64  `json:"daysUntilExpiry"`
}

// ValidCard — карта прошла все проверки.
func ValidCard(cardType, masked string, daysUntilExpiry int64) CreditCardValidationResult {
	return CreditCardValidationResult{
		IsValid:          true,
		CardType:         cardType,
		MaskedCardNumber: masked,
		Message:          MessageCardValid,
		DaysUntilExpiry:  daysUntilExpiry,
	}
}

// InvalidCard — карта отклонена с причиной reason.
func InvalidCard(reason string) CreditCardValidationResult {
	return CreditCardValidationResult{
		CardType:         CardTypeUnknown,
		MaskedCardNumber: MaskedUnknown,
		Message:          reason,
	}
}

// ExpiredCard — срок действия карты истек.
func ExpiredCard(cardType, masked string) CreditCardValidationResult {
	return CreditCardValidationResult{
		CardType:         cardType,
		MaskedCardNumber: masked,
		Message:          MessageCardExpired,
		IsExpired:        true,
	}
}
