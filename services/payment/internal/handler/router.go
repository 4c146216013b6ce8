package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/payment-gateway/pkg/jwt"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
	"example.com/payment-gateway/services/payment/internal/httputil"
	"example.com/payment-gateway/services/payment/internal/middleware"
	"example.com/payment-gateway/services/payment/internal/service"
)

// Router — конфигурация REST API.
type Router struct {
	engine      *gin.Engine
	payments    *PaymentHandler
	cards       *CreditCardHandler
	auth        *AuthHandler
	authMW      *middleware.AuthMiddleware
	rateLimitMW *middleware.RateLimitMiddleware
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	ServiceName string
	Payments    service.PaymentService
	Cards       *service.CardService

	// AuthMW == nil — управляющие эндпоинты платежей не регистрируются.
	AuthMW *middleware.AuthMiddleware
	// RateLimitMW == nil — без ограничения частоты создания платежей.
	RateLimitMW *middleware.RateLimitMiddleware

	Revoker   TokenRevoker
	RevokeTTL time.Duration

	CORS  middleware.CORSConfig
	Debug bool
}

// NewRouter создает и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "payment-gateway"
	}
	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS = middleware.DefaultCORSConfig()
	}
	RegisterValidators()

	engine := gin.New()
	engine.Use(gin.CustomRecovery(recoverPanic))
	engine.Use(otelgin.Middleware(cfg.ServiceName))
	engine.Use(middleware.NewTracingMiddleware().Handle())
	engine.Use(metrics.GinMetricsMiddleware(cfg.ServiceName))
	engine.Use(middleware.CORS(cfg.CORS))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RequireJSON())

	engine.NoRoute(func(c *gin.Context) {
		httputil.AbortWithError(c, http.StatusNotFound, "No handler found for "+c.Request.Method+" "+c.Request.URL.Path)
	})

	r := &Router{
		engine:      engine,
		payments:    NewPaymentHandler(cfg.Payments),
		cards:       NewCreditCardHandler(cfg.Cards),
		authMW:      cfg.AuthMW,
		rateLimitMW: cfg.RateLimitMW,
	}
	if cfg.Revoker != nil {
		r.auth = NewAuthHandler(cfg.Revoker, cfg.RevokeTTL)
	}

	r.setupRoutes()
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes() {
	v1 := r.engine.Group("/api/v1")

	// === Платежи (публичные) ===
	payments := v1.Group("/payments")
	{
		create := []gin.HandlerFunc{r.payments.ProcessPayment}
		if r.rateLimitMW != nil {
			create = append([]gin.HandlerFunc{r.rateLimitMW.Handle()}, create...)
		}
		payments.POST("", create...)
		payments.GET("/health", r.payments.Health)
	}

	// === Карты (публичные) ===
	cards := v1.Group("/credit-cards")
	{
		cards.POST("/validate", r.cards.Validate)
		cards.GET("/card-type/:cardNumber", r.cards.CardType)
		cards.GET("/health", r.cards.Health)
	}

	if r.authMW == nil {
		logger.Warn().Msg("JWT не настроен: управляющие эндпоинты платежей отключены")
		return
	}

	// === Платежи мерчанта (защищенные) ===
	read := payments.Group("", r.authMW.Handle(), middleware.RequireScope(jwt.ScopePaymentsRead))
	{
		read.GET("", r.payments.ListPayments)
		read.GET("/:id", r.payments.GetPayment)
		read.GET("/:id/status", r.payments.GetPaymentStatus)
		read.GET("/reference/:reference", r.payments.GetPaymentByReference)
	}

	write := payments.Group("", r.authMW.Handle(), middleware.RequireScope(jwt.ScopePaymentsWrite))
	{
		write.POST("/:id/cancel", r.payments.CancelPayment)
		write.POST("/:id/refund", r.payments.RefundPayment)
	}

	// === Отзыв токенов ===
	if r.auth != nil {
		auth := v1.Group("/auth", r.authMW.Handle())
		{
			auth.POST("/revoke", r.auth.Revoke)
			auth.POST("/revoke-all", r.auth.RevokeAll)
		}
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func recoverPanic(c *gin.Context, recovered any) {
	logger.Ctx(c.Request.Context()).Error().
		Interface("panic", recovered).
		Str("path", c.Request.URL.Path).
		Msg("Паника в HTTP обработчике")
	httputil.AbortWithError(c, http.StatusInternalServerError, MessageUnexpected)
}
