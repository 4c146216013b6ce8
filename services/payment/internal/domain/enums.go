package domain

import "strings"

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	MethodCreditCard    PaymentMethod = "CREDIT_CARD"
	MethodDebitCard     PaymentMethod = "DEBIT_CARD"
	MethodPayPal        PaymentMethod = "PAYPAL"
	MethodApplePay      PaymentMethod = "APPLE_PAY"
	MethodGooglePay     PaymentMethod = "GOOGLE_PAY"
	MethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
	MethodCrypto        PaymentMethod = "CRYPTOCURRENCY"
	MethodDigitalWallet PaymentMethod = "DIGITAL_WALLET"
)

// PaymentMethods — все способы оплаты в порядке объявления.
var PaymentMethods = []PaymentMethod{
	MethodCreditCard,
	MethodDebitCard,
	MethodPayPal,
	MethodApplePay,
	MethodGooglePay,
	MethodBankTransfer,
	MethodCrypto,
	MethodDigitalWallet,
}

// ParsePaymentMethod разбирает название способа оплаты без учета регистра.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	candidate := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range PaymentMethods {
		if m == candidate {
			return m, true
		}
	}
	return "", false
}

// IsCardLike — методы, которые проводит карточный процессинг.
func (m PaymentMethod) IsCardLike() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodApplePay, MethodGooglePay:
		return true
	}
	return false
}

func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentStatus — статус платежа.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusCancelled  PaymentStatus = "CANCELLED"
	StatusRefunded   PaymentStatus = "REFUNDED"
)

// PaymentStatuses — все статусы.
var PaymentStatuses = []PaymentStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusRefunded,
}

// ParsePaymentStatus разбирает статус без учета регистра.
func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	candidate := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range PaymentStatuses {
		if st == candidate {
			return st, true
		}
	}
	return "", false
}

func (s PaymentStatus) String() string {
	return string(s)
}
