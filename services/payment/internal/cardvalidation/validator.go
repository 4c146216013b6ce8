// Package cardvalidation проверяет карты: бренд, контрольная сумма Луна, срок действия.
package cardvalidation

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"example.com/payment-gateway/services/payment/internal/domain"
)

// Бренды карт.
const (
	CardVisa       = "VISA"
	CardMastercard = "MASTERCARD"
	CardAmex       = "AMEX"
	CardDiscover   = "DISCOVER"
	CardUnknown    = domain.CardTypeUnknown
)

// MessageInvalidNumber — номер не прошел проверку Луна.
const MessageInvalidNumber = "Numero de tarjeta invalido"

// Порядок проверки важен: выигрывает первое совпадение.
var brands = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{CardVisa, regexp.MustCompile(`^4[0-9]{12}(?:[0-9]{3})?$`)},
	{CardMastercard, regexp.MustCompile(`^5[1-5][0-9]{14}$`)},
	{CardAmex, regexp.MustCompile(`^3[47][0-9]{13}$`)},
	{CardDiscover, regexp.MustCompile(`^6(?:011|5[0-9]{2})[0-9]{12}$`)},
}

// Validator проверяет карты относительно текущей даты.
type Validator struct {
	now func() time.Time
}

// Option настраивает Validator.
type Option func(*Validator)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New создает Validator.
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate проверяет реквизиты карты. Ошибки не возвращаются: любой сбой
// превращается в InvalidCard.
func (v *Validator) Validate(details *domain.CreditCardDetails) domain.CreditCardValidationResult {
	if details == nil {
		return domain.InvalidCard("Error al validar la tarjeta: no card details")
	}
	return v.ValidateFields(details.CardNumber(), details.ExpiryMonth(), details.ExpiryYear())
}

// ValidateFields проверяет сырые поля без конструктора реквизитов.
// Используется, когда конструктор отклонил истекшую карту, а клиенту нужен
// результат с брендом и маской.
func (v *Validator) ValidateFields(cardNumber, expiryMonth, expiryYear string) (result domain.CreditCardValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.InvalidCard(fmt.Sprintf("Error al validar la tarjeta: %v", r))
		}
	}()

	clean := domain.StripCardNumber(cardNumber)
	brand := DetermineCardType(clean)
	masked := domain.MaskCardNumber(clean)

	year, month, ok := parseExpiry(expiryMonth, expiryYear)
	today := v.now()
	if !ok || domain.ExpiredAt(year, month, today) {
		return domain.ExpiredCard(brand, masked)
	}

	if !Luhn(clean) {
		return domain.InvalidCard(MessageInvalidNumber)
	}

	return domain.ValidCard(brand, masked, DaysUntilExpiry(year, month, today))
}

// DetermineCardType определяет бренд по номеру.
func DetermineCardType(cardNumber string) string {
	clean := domain.StripCardNumber(cardNumber)
	for _, b := range brands {
		if b.pattern.MatchString(clean) {
			return b.name
		}
	}
	return CardUnknown
}

// Luhn проверяет контрольную сумму. Пустая строка и нецифровые символы — false.
func Luhn(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// DaysUntilExpiry — число календарных дней от today до последнего дня месяца истечения.
func DaysUntilExpiry(year int, month time.Month, today time.Time) int64 {
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// нулевой день следующего месяца = последний день month
	end := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	// time.Duration ограничен ~292 годами, поэтому считаем по Unix-секундам
	return (end.Unix() - start.Unix()) / 86400
}

func parseExpiry(monthStr, yearStr string) (int, time.Month, bool) {
	m, err := strconv.Atoi(monthStr)
	if err != nil || m < 1 || m > 12 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, 0, false
	}
	return y, time.Month(m), true
}
