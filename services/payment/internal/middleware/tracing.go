package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/tracing"
)

// HTTP заголовки.
const (
	HeaderTraceID        = "X-Trace-ID"
	HeaderCorrelationID  = "X-Correlation-ID"
	HeaderRequestID      = "X-Request-ID" // алиас для Trace ID
	HeaderIdempotencyKey = "Idempotency-Key"
)

// TracingMiddleware проставляет trace_id и correlation_id в контекст запроса
// и пишет access log. Подключается после otelgin: если span уже открыт,
// trace_id берется из него.
type TracingMiddleware struct{}

// NewTracingMiddleware создает middleware.
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{}
}

// Handle возвращает Gin handler function для middleware.
func (m *TracingMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = c.GetHeader(HeaderRequestID)
		}
		if traceID == "" {
			traceID = tracing.TraceID(c.Request.Context())
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ctx := logger.NewContextWithIDs(c.Request.Context(), traceID, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderTraceID, traceID)
		c.Header(HeaderCorrelationID, correlationID)
		c.Set("trace_id", traceID)
		c.Set("correlation_id", correlationID)

		c.Next()

		status := c.Writer.Status()
		log := logger.Ctx(c.Request.Context())
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP запрос")
	}
}
