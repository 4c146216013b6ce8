package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/middleware"
)

// TokenRevoker — список отзыва токенов (реализуется *jwt.Blacklist).
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	InvalidateMerchant(ctx context.Context, merchantID string, ttl time.Duration) error
}

// AuthHandler отзывает токены мерчанта.
type AuthHandler struct {
	revoker   TokenRevoker
	revokeTTL time.Duration
}

// NewAuthHandler создает обработчик. revokeTTL — не меньше времени жизни токена.
func NewAuthHandler(revoker TokenRevoker, revokeTTL time.Duration) *AuthHandler {
	return &AuthHandler{revoker: revoker, revokeTTL: revokeTTL}
}

// Revoke — POST /api/v1/auth/revoke: отзывает текущий токен.
func (h *AuthHandler) Revoke(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok || claims.ExpiresAt == nil {
		RespondBindError(c, &fieldError{field: "token"})
		return
	}

	if err := h.revoker.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		RespondError(c, err)
		return
	}

	logger.Ctx(c.Request.Context()).Info().Str("jti", claims.ID).Msg("Токен мерчанта отозван")
	c.Status(http.StatusNoContent)
}

// RevokeAll — POST /api/v1/auth/revoke-all: отзывает все ранее выданные токены мерчанта.
func (h *AuthHandler) RevokeAll(c *gin.Context) {
	merchantID := c.GetString(middleware.ContextMerchantID)

	if err := h.revoker.InvalidateMerchant(c.Request.Context(), merchantID, h.revokeTTL); err != nil {
		RespondError(c, err)
		return
	}

	logger.Ctx(c.Request.Context()).Warn().Msg("Все токены мерчанта отозваны")
	c.Status(http.StatusNoContent)
}
