// Package metrics — Prometheus метрики платежного шлюза и HTTP сервер для /metrics и проб.
//
// Использование:
//
//	srv := metrics.NewServer(":9090", "payment-gateway", metrics.WithReadinessCheck(check))
//	go srv.Start()
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/payment-gateway/pkg/logger"
)

// =============================================================================
// Метрики
// =============================================================================

var (
	// RequestsTotal — входящие запросы (HTTP, gRPC, Kafka команды).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Количество входящих запросов по сервису, методу и результату",
		},
		[]string{"service", "method", "status"},
	)

	// RequestDuration — latency входящих запросов.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Время обработки входящего запроса в секундах",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method"},
	)

	// PaymentsTotal — платежи, дошедшие до терминального или промежуточного статуса.
	// PromQL: sum by (provider) (rate(payments_total{status="FAILED"}[5m]))
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Количество платежей по провайдеру, методу оплаты и статусу",
		},
		[]string{"provider", "method", "status"},
	)

	// GatewayCallDuration — latency вызовов внешних провайдеров.
	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Время вызова платежного провайдера",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"provider", "operation", "outcome"},
	)

	// CardValidationsTotal — результаты проверки карт.
	CardValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_validations_total",
			Help: "Результаты валидации карт по бренду",
		},
		[]string{"card_type", "result"},
	)

	// OutboxPublishedTotal — сообщения outbox, отправленные в Kafka.
	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Сообщения outbox по топику и результату публикации",
		},
		[]string{"topic", "status"},
	)
)

// =============================================================================
// Сервер /metrics, /healthz, /readyz
// =============================================================================

// ReadinessChecker возвращает nil, если сервис готов принимать трафик.
type ReadinessChecker func(ctx context.Context) error

// Server — HTTP сервер метрик и проб.
type Server struct {
	httpServer     *http.Server
	service        string
	readinessCheck ReadinessChecker
}

// Option настраивает Server.
type Option func(*Server)

// WithReadinessCheck задает проверку для /readyz.
func WithReadinessCheck(checker ReadinessChecker) Option {
	return func(s *Server) {
		s.readinessCheck = checker
	}
}

// NewServer создает сервер метрик на addr.
func NewServer(addr, service string, opts ...Option) *Server {
	s := &Server{service: service}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.readinessCheck == nil {
			writeStatus(w, http.StatusOK, "ready")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.readinessCheck(ctx); err != nil {
			// Детали ошибки наружу не отдаем.
			logger.Warn().Err(err).Str("service", s.service).Msg("Проверка готовности не пройдена")
			writeStatus(w, http.StatusServiceUnavailable, "not_ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})

	return mux
}

// Handler возвращает обработчик сервера (для тестов через httptest).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start блокирует до остановки сервера.
func (s *Server) Start() error {
	logger.Info().Str("service", s.service).Str("addr", s.httpServer.Addr).Msg("Запуск Metrics Server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}

// =============================================================================
// Запись метрик
// =============================================================================

// RecordRequest фиксирует входящий запрос. status: "success" или "error".
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordPayment фиксирует переход платежа в статус.
func RecordPayment(provider, method, status string) {
	PaymentsTotal.WithLabelValues(provider, method, status).Inc()
}

// RecordGatewayCall фиксирует вызов провайдера. outcome: "success", "declined", "error".
func RecordGatewayCall(provider, operation, outcome string, duration time.Duration) {
	GatewayCallDuration.WithLabelValues(provider, operation, outcome).Observe(duration.Seconds())
}

// RecordCardValidation фиксирует результат проверки карты: "valid", "invalid", "expired".
func RecordCardValidation(cardType, result string) {
	CardValidationsTotal.WithLabelValues(cardType, result).Inc()
}

// RecordOutboxPublish фиксирует попытку публикации outbox сообщения.
func RecordOutboxPublish(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	OutboxPublishedTotal.WithLabelValues(topic, status).Inc()
}

// GinMetricsMiddleware собирает requests_total и request_duration_seconds для HTTP.
func GinMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := "success"
		if c.Writer.Status() >= 400 {
			status = "error"
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordRequest(service, route, status, time.Since(start))
	}
}
