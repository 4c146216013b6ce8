package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/httputil"
)

// rateLimitScript — атомарный INCR с установкой TTL на первом запросе окна.
var rateLimitScript = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimitMiddleware ограничивает частоту запросов с одного клиента.
// Счетчики живут в Redis (fixed window на ключ).
type RateLimitMiddleware struct {
	redis  *redis.Client
	scope  string
	limit  int
	window time.Duration
}

// RateLimitConfig — конфигурация rate limiter.
type RateLimitConfig struct {
	Redis *redis.Client
	// Scope разделяет счетчики разных групп маршрутов.
	Scope  string
	Limit  int           // по умолчанию 100
	Window time.Duration // по умолчанию 1 минута
}

// NewRateLimitMiddleware создает middleware.
func NewRateLimitMiddleware(cfg RateLimitConfig) *RateLimitMiddleware {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Scope == "" {
		cfg.Scope = "api"
	}

	return &RateLimitMiddleware{
		redis:  cfg.Redis,
		scope:  cfg.Scope,
		limit:  cfg.Limit,
		window: cfg.Window,
	}
}

// Handle возвращает Gin handler function для middleware.
// Аутентифицированный мерчант лимитируется по merchant_id, остальные — по IP.
func (m *RateLimitMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Ctx(c.Request.Context())

		client := "ip:" + c.ClientIP()
		if merchantID := c.GetString(ContextMerchantID); merchantID != "" {
			client = "merchant:" + merchantID
		}
		key := "rate:" + m.scope + ":" + client

		count, err := rateLimitScript.Run(c.Request.Context(), m.redis, []string{key}, int(m.window.Seconds())).Int()
		if err != nil {
			// fail-open: недоступность Redis не должна останавливать прием платежей
			log.Warn().Err(err).Msg("Ошибка проверки rate limit")
			c.Next()
			return
		}

		remaining := max(m.limit-count, 0)
		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(m.window).Unix(), 10))

		if count > m.limit {
			log.Warn().
				Str("client", client).
				Int("limit", m.limit).
				Msg("Rate limit превышен")

			c.Header("Retry-After", strconv.Itoa(int(m.window.Seconds())))
			httputil.AbortWithError(c, http.StatusTooManyRequests, "Too many requests, retry later")
			return
		}

		c.Next()
	}
}
