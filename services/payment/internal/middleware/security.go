package middleware

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/payment-gateway/services/payment/internal/httputil"
)

// SecurityHeaders добавляет заголовки безопасности. Ответы с платежными
// данными не кешируются.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
		c.Next()
	}
}

// RequireJSON отвечает 415 на POST с телом не в JSON.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := c.GetHeader("Content-Type")
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != gin.MIMEJSON {
			httputil.AbortWithError(c, http.StatusUnsupportedMediaType,
				"Content-Type '"+contentType+"' is not supported")
			return
		}
		c.Next()
	}
}
