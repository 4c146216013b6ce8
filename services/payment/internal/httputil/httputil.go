// Package httputil содержит вспомогательные функции для HTTP обработки.
package httputil

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse — формат ошибки REST API.
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// AbortWithError прерывает цепочку и пишет ошибку в едином формате.
// Поле error — стандартный текст HTTP статуса.
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}

// ExtractBearerToken извлекает токен из Authorization header.
// Формат: "Bearer <token>"
// Поддерживает регистронезависимый префикс и обрезает пробелы.
func ExtractBearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
