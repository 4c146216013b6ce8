package cardvalidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/payment-gateway/services/payment/internal/domain"
)

var today = time.Date(2026, time.June, 15, 9, 30, 0, 0, time.UTC)

func newValidator() *Validator {
	return New(WithClock(func() time.Time { return today }))
}

func cardDetails(t *testing.T, number, month, year string) *domain.CreditCardDetails {
	t.Helper()
	d, err := domain.NewCreditCardDetailsAt(number, month, year, "123", "Juan Perez", today)
	require.NoError(t, err)
	return d
}

func TestDetermineCardType(t *testing.T) {
	tests := []struct {
		number string
		want   string
	}{
		{"4242424242424242", CardVisa},
		{"4222222222222", CardVisa},
		{"5555555555554444", CardMastercard},
		{"378282246310005", CardAmex},
		{"371449635398431", CardAmex},
		{"6011111111111117", CardDiscover},
		{"6500000000000002", CardDiscover},
		{"1234567890123456", CardUnknown},
		{"4242-4242-4242-4242", CardVisa},
		{"5555 5555 5555 4444", CardMastercard},
		{"5655555555554444", CardUnknown},
		{"", CardUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineCardType(tt.number))
		})
	}
}

func TestLuhn(t *testing.T) {
	tests := []struct {
		number string
		valid  bool
	}{
		{"4242424242424242", true},
		{"5555555555554444", true},
		{"378282246310005", true},
		{"6011111111111117", true},
		{"79927398713", true},
		{"4242424242424241", false},
		{"1234567890123456", false},
		{"4242x42424242424", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			assert.Equal(t, tt.valid, Luhn(tt.number))
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name       string
		number     string
		month      string
		year       string
		wantValid  bool
		wantType   string
		wantMasked string
		wantMsg    string
	}{
		{"валидная VISA", "4242424242424242", "12", "2028", true, CardVisa, "****-****-****-4242", "Tarjeta valida"},
		{"валидная AMEX", "378282246310005", "01", "2030", true, CardAmex, "****-****-****-0005", "Tarjeta valida"},
		{"валидная с дефисами", "5555-5555-5555-4444", "07", "2026", true, CardMastercard, "****-****-****-4444", "Tarjeta valida"},
		{"ошибка Луна", "4242424242424241", "12", "2028", false, CardUnknown, "****-****-****-****", MessageInvalidNumber},
		{"неизвестный бренд, Луна верна", "79927398713", "12", "2028", true, CardUnknown, "****-****-****-8713", "Tarjeta valida"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(cardDetails(t, tt.number, tt.month, tt.year))

			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Equal(t, tt.wantType, res.CardType)
			assert.Equal(t, tt.wantMasked, res.MaskedCardNumber)
			assert.Equal(t, tt.wantMsg, res.Message)
			assert.False(t, res.IsExpired)
		})
	}
}

func TestValidator_ExpiryTakesPrecedence(t *testing.T) {
	v := newValidator()

	t.Run("истекшая карта с верным номером", func(t *testing.T) {
		res := v.ValidateFields("4242424242424242", "05", "2026")

		assert.False(t, res.IsValid)
		assert.True(t, res.IsExpired)
		assert.Equal(t, CardVisa, res.CardType)
		assert.Equal(t, "****-****-****-4242", res.MaskedCardNumber)
		assert.Equal(t, "Tarjeta expirada", res.Message)
		assert.Zero(t, res.DaysUntilExpiry)
	})

	t.Run("истекшая карта с неверным номером", func(t *testing.T) {
		res := v.ValidateFields("4242424242424241", "01", "2020")
		assert.True(t, res.IsExpired, "срок проверяется до Луна")
	})

	t.Run("нечитаемый срок считается истекшим", func(t *testing.T) {
		res := v.ValidateFields("4242424242424242", "xx", "2028")
		assert.True(t, res.IsExpired)
	})
}

func TestValidator_ValidatePropertyMaskEndsWithLastFour(t *testing.T) {
	v := newValidator()
	for _, number := range []string{"4242424242424242", "5555555555554444", "378282246310005", "6011111111111117"} {
		res := v.ValidateFields(number, "12", "2030")
		require.True(t, res.IsValid, number)
		assert.Equal(t, "****-****-****-"+number[len(number)-4:], res.MaskedCardNumber)
		assert.Equal(t, DetermineCardType(number), res.CardType)
	}
}

func TestValidator_NilDetails(t *testing.T) {
	res := newValidator().Validate(nil)

	assert.False(t, res.IsValid)
	assert.Contains(t, res.Message, "Error al validar la tarjeta")
}

func TestDaysUntilExpiry(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		want  int64
	}{
		{"текущий месяц", 2026, time.June, 15},
		{"следующий месяц", 2026, time.July, 46},
		{"февраль високосного года", 2028, time.February, 624},
		{"через четыре века", 2400, time.December, 136800},
		{"максимальный год", 9999, time.December, 2912277},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilExpiry(tt.year, tt.month, today))
		})
	}
}
