package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SupportedCurrencies — валюты, принимаемые хотя бы одним провайдером.
var SupportedCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CAD": {},
	"AUD": {}, "CHF": {}, "SEK": {}, "NOK": {}, "DKK": {},
}

// IsSupportedCurrency проверяет код без учета регистра.
func IsSupportedCurrency(code string) bool {
	_, ok := SupportedCurrencies[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// zeroDecimalCurrencies — валюты без дробных единиц.
var zeroDecimalCurrencies = map[string]struct{}{"JPY": {}}

// CurrencyScale — число знаков после запятой в минимальной единице валюты.
func CurrencyScale(code string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return 0
	}
	return 2
}

// FitsCurrencyScale сообщает, выражается ли сумма целым числом минимальных единиц.
func FitsCurrencyScale(amount decimal.Decimal, code string) bool {
	scale := CurrencyScale(code)
	return amount.Equal(amount.Truncate(scale))
}
