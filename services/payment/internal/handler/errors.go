// Package handler содержит HTTP обработчики REST API платежного шлюза.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"example.com/payment-gateway/pkg/circuitbreaker"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/httputil"
	"example.com/payment-gateway/services/payment/internal/service"
)

// Сообщения об ошибках формата запроса.
const (
	MessageInvalidFormat    = "Invalid request format"
	MessageValidationFailed = "Validation failed"
	MessageUnexpected       = "An unexpected error occurred"
)

// RespondError преобразует ошибку сервиса в HTTP ответ.
// ВАЖНО: err не должен быть nil.
func RespondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Внутренняя ошибка")
	}
	httputil.AbortWithError(c, status, message)
}

func statusFor(err error) (int, string) {
	var pe *domain.PaymentError

	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicateReference):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "Payment was modified concurrently, retry the request"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return http.StatusServiceUnavailable, "Payment gateway is temporarily unavailable"
	case errors.As(err, &pe):
		if pe.Code == service.CodeIdempotencyInProgress {
			return http.StatusConflict, pe.Message
		}
		return http.StatusBadRequest, pe.Message
	}
	return http.StatusInternalServerError, MessageUnexpected
}

// RespondBindError отвечает 400 на ошибку разбора или валидации тела запроса.
func RespondBindError(c *gin.Context, err error) {
	httputil.AbortWithError(c, http.StatusBadRequest, bindErrorMessage(err))
}

func bindErrorMessage(err error) string {
	var (
		validationErrs validator.ValidationErrors
		typeErr        *json.UnmarshalTypeError
		fieldErr       *fieldError
	)

	switch {
	case errors.As(err, &validationErrs):
		return MessageValidationFailed
	case errors.As(err, &typeErr):
		return fmt.Sprintf("Invalid input for field '%s'", typeErr.Field)
	case errors.As(err, &fieldErr):
		return fieldErr.Error()
	}
	return MessageInvalidFormat
}

// fieldError — недопустимое значение поля, обнаруженное после разбора JSON.
type fieldError struct {
	field string
	value string
}

func (e *fieldError) Error() string {
	if e.value == "" {
		return fmt.Sprintf("Invalid input for field '%s'", e.field)
	}
	return fmt.Sprintf("Invalid value for field '%s': %s", e.field, e.value)
}
