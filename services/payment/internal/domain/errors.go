// Package domain — платежный агрегат, value objects запроса и ответа провайдера.
package domain

import "errors"

// Коды ошибок домена.
const (
	CodePaymentError    = "PAYMENT_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeCardExpired     = "CARD_EXPIRED"
)

// Sentinel-ошибки для errors.Is на границах сервиса.
var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDuplicateReference = errors.New("payment reference already exists")
	ErrVersionConflict    = errors.New("payment was modified concurrently")
	ErrCardExpired        = errors.New("Card is expired")
)

// PaymentError — нарушение доменного правила или невалидный ввод.
// Message — часть внешнего контракта, отдается клиенту как есть.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

// NewPaymentError создает ошибку с кодом PAYMENT_ERROR.
func NewPaymentError(message string) *PaymentError {
	return &PaymentError{Code: CodePaymentError, Message: message}
}

// NewPaymentErrorWithCode создает ошибку с заданным кодом.
func NewPaymentErrorWithCode(code, message string) *PaymentError {
	if code == "" {
		code = CodePaymentError
	}
	return &PaymentError{Code: code, Message: message}
}

func validationError(message string) *PaymentError {
	return &PaymentError{Code: CodeValidationError, Message: message}
}

func (e *PaymentError) Error() string {
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}
