package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Типы реквизитов (поле type в JSON).
const (
	DetailsTypeCreditCard = "CREDIT_CARD"
	DetailsTypePayPal     = "PAYPAL"
)

// PaymentDetails — реквизиты оплаты: *CreditCardDetails или *PayPalDetails.
// Набор реализаций закрыт неэкспортируемым методом.
type PaymentDetails interface {
	DetailsType() string
	sealedDetails()
}

// CreditCardDetails — реквизиты карты. Живут только в памяти.
type CreditCardDetails struct {
	cardNumber     string
	expiryMonth    string
	expiryYear     string
	cvv            string
	cardHolderName string
}

// NewCreditCardDetails проверяет реквизиты относительно текущего месяца.
func NewCreditCardDetails(cardNumber, expiryMonth, expiryYear, cvv, cardHolderName string) (*CreditCardDetails, error) {
	return NewCreditCardDetailsAt(cardNumber, expiryMonth, expiryYear, cvv, cardHolderName, time.Now())
}

// NewCreditCardDetailsAt — NewCreditCardDetails с явным «сейчас».
func NewCreditCardDetailsAt(cardNumber, expiryMonth, expiryYear, cvv, cardHolderName string, at time.Time) (*CreditCardDetails, error) {
	switch {
	case isBlank(cardNumber):
		return nil, validationError("Card number cannot be null or empty")
	case isBlank(expiryMonth):
		return nil, validationError("Expiry month cannot be null or empty")
	case isBlank(expiryYear):
		return nil, validationError("Expiry year cannot be null or empty")
	case isBlank(cvv):
		return nil, validationError("CVV cannot be null or empty")
	case isBlank(cardHolderName):
		return nil, validationError("Card holder name cannot be null or empty")
	}

	month, ok := ParseExpiryMonth(expiryMonth)
	if !ok {
		return nil, validationError("Expiry month must be between 01 and 12")
	}
	year, ok := ParseExpiryYear(expiryYear)
	if !ok {
		return nil, validationError("Expiry year must have 4 digits")
	}
	if ExpiredAt(year, month, at) {
		return nil, &PaymentError{Code: CodeCardExpired, Message: ErrCardExpired.Error(), Err: ErrCardExpired}
	}

	return &CreditCardDetails{
		cardNumber:     strings.TrimSpace(cardNumber),
		expiryMonth:    strings.TrimSpace(expiryMonth),
		expiryYear:     strings.TrimSpace(expiryYear),
		cvv:            strings.TrimSpace(cvv),
		cardHolderName: strings.TrimSpace(cardHolderName),
	}, nil
}

// ParseExpiryMonth принимает "1".."12" и "01".."12".
func ParseExpiryMonth(s string) (time.Month, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	m, err := strconv.Atoi(s)
	if err != nil || m < 1 || m > 12 {
		return 0, false
	}
	return time.Month(m), true
}

// ParseExpiryYear принимает ровно четыре цифры.
func ParseExpiryYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, false
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 {
		return 0, false
	}
	return y, true
}

// ExpiredAt — месяц истечения строго раньше месяца at.
func ExpiredAt(year int, month time.Month, at time.Time) bool {
	curYear, curMonth, _ := at.Date()
	if year != curYear {
		return year < curYear
	}
	return month < curMonth
}

func (d *CreditCardDetails) DetailsType() string { return DetailsTypeCreditCard }
func (*CreditCardDetails) sealedDetails()        {}

func (d *CreditCardDetails) CardNumber() string     { return d.cardNumber }
func (d *CreditCardDetails) ExpiryMonth() string    { return d.expiryMonth }
func (d *CreditCardDetails) ExpiryYear() string     { return d.expiryYear }
func (d *CreditCardDetails) CVV() string            { return d.cvv }
func (d *CreditCardDetails) CardHolderName() string { return d.cardHolderName }

// String не раскрывает номер карты и CVV.
func (d *CreditCardDetails) String() string {
	return fmt.Sprintf("CreditCardDetails{number=%s, expiry=%s/%s, holder=%s}",
		MaskCardNumber(d.cardNumber), d.expiryMonth, d.expiryYear, d.cardHolderName)
}

// GoString закрывает %#v.
func (d *CreditCardDetails) GoString() string {
	return d.String()
}

// PayPalDetails — реквизиты PayPal checkout.
type PayPalDetails struct {
	email     string
	returnURL string
	cancelURL string
}

// NewPayPalDetails проверяет обязательные поля.
func NewPayPalDetails(email, returnURL, cancelURL string) (*PayPalDetails, error) {
	switch {
	case isBlank(email):
		return nil, validationError("Email cannot be null or empty")
	case isBlank(returnURL):
		return nil, validationError("Return URL cannot be null or empty")
	case isBlank(cancelURL):
		return nil, validationError("Cancel URL cannot be null or empty")
	}
	return &PayPalDetails{
		email:     strings.TrimSpace(email),
		returnURL: strings.TrimSpace(returnURL),
		cancelURL: strings.TrimSpace(cancelURL),
	}, nil
}

func (d *PayPalDetails) DetailsType() string { return DetailsTypePayPal }
func (*PayPalDetails) sealedDetails()        {}

func (d *PayPalDetails) Email() string     { return d.email }
func (d *PayPalDetails) ReturnURL() string { return d.returnURL }
func (d *PayPalDetails) CancelURL() string { return d.cancelURL }

// MaskCardNumber оставляет последние четыре цифры: ****-****-****-4242.
func MaskCardNumber(number string) string {
	clean := []rune(StripCardNumber(number))
	if len(clean) < 4 {
		return MaskedUnknown
	}
	return "****-****-****-" + string(clean[len(clean)-4:])
}

// MaskedUnknown — маска для номера, который нельзя показать даже частично.
const MaskedUnknown = "****-****-****-****"

// StripCardNumber удаляет пробелы и дефисы.
func StripCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			return -1
		}
		return r
	}, number)
}
