package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/payment-gateway/pkg/jwt"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/httputil"
)

// Ключи gin.Context, которые выставляет AuthMiddleware.
const (
	ContextMerchantID = "merchant_id"
	ContextClaims     = "claims"
)

// TokenValidator проверяет токен мерчанта (реализуется *jwt.Manager).
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*jwt.Claims, error)
}

// AuthMiddleware проверяет Bearer токен мерчанта локально по публичному ключу.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware создает middleware.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handle проверяет токен и кладет claims и merchant_id в gin.Context и
// merchant_id в контекст логгера.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.Ctx(ctx)

		token := httputil.ExtractBearerToken(c)
		if token == "" {
			httputil.AbortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := m.validator.Validate(ctx, token)
		switch {
		case errors.Is(err, jwt.ErrTokenRevoked):
			log.Debug().Msg("Токен отозван")
			httputil.AbortWithError(c, http.StatusUnauthorized, "Token has been revoked")
			return
		case errors.Is(err, jwt.ErrInvalidToken):
			log.Debug().Err(err).Msg("Невалидный токен")
			httputil.AbortWithError(c, http.StatusUnauthorized, "Invalid token")
			return
		case err != nil:
			// Redis недоступен: отзыв проверить нельзя, пропускать небезопасно
			log.Error().Err(err).Msg("Ошибка проверки токена")
			httputil.AbortWithError(c, http.StatusServiceUnavailable, "Token verification unavailable")
			return
		}

		c.Set(ContextMerchantID, claims.MerchantID)
		c.Set(ContextClaims, claims)
		c.Request = c.Request.WithContext(logger.WithMerchantID(ctx, claims.MerchantID))

		c.Next()
	}
}

// RequireScope отвечает 403, если в токене нет области доступа scope.
// Подключается после Handle.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok || !claims.HasScope(scope) {
			httputil.AbortWithError(c, http.StatusForbidden, "Token lacks scope "+scope)
			return
		}
		c.Next()
	}
}

// ClaimsFromContext возвращает claims, сохраненные AuthMiddleware.
func ClaimsFromContext(c *gin.Context) (*jwt.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}
