package handler

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"example.com/payment-gateway/services/payment/internal/domain"
)

var registerOnce sync.Once

// RegisterValidators добавляет правило supported_currency в валидатор gin:
// код ISO 4217 (без учета регистра) из списка domain.SupportedCurrencies.
// Повторные вызовы безопасны.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("supported_currency", func(fl validator.FieldLevel) bool {
			code := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
			if v.Var(code, "iso4217") != nil {
				return false
			}
			return domain.IsSupportedCurrency(code)
		})
	})
}
