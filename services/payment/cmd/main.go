// Payment Gateway — сервис приема платежей.
// REST API и gRPC для мерчантов, команды оплаты и возврата из Kafka,
// ответы на команды уходят через outbox. Фоновый воркер сверяет
// платежи, зависшие в PROCESSING, с провайдером.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"example.com/payment-gateway/pkg/circuitbreaker"
	"example.com/payment-gateway/pkg/config"
	dbpkg "example.com/payment-gateway/pkg/db"
	"example.com/payment-gateway/pkg/healthcheck"
	"example.com/payment-gateway/pkg/jwt"
	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/pkg/tracing"
	"example.com/payment-gateway/services/payment/internal/gateway"
	"example.com/payment-gateway/services/payment/internal/gateway/paypal"
	"example.com/payment-gateway/services/payment/internal/gateway/stripe"
	grpcsvc "example.com/payment-gateway/services/payment/internal/grpc"
	"example.com/payment-gateway/services/payment/internal/handler"
	"example.com/payment-gateway/services/payment/internal/middleware"
	"example.com/payment-gateway/services/payment/internal/reconcile"
	"example.com/payment-gateway/services/payment/internal/repository"
	"example.com/payment-gateway/services/payment/internal/saga"
	"example.com/payment-gateway/services/payment/internal/service"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:   cfg.App.LogLevel,
		Pretty:  cfg.App.LogPretty,
		Service: cfg.App.Name,
	})

	log := logger.With().Str("service", cfg.App.Name).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Str("http_addr", cfg.HTTP.Addr()).
		Msg("Запуск Payment Gateway")

	// === Observability: Tracing ===

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.App.Name,
		Environment:    cfg.App.Env,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Не удалось инициализировать tracing")
	}

	// === Подключение к зависимостям ===

	db, err := dbpkg.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	if cfg.MySQL.AutoMigrate {
		if err := dbpkg.Migrate(db, &repository.PaymentModel{}, &outbox.Model{}); err != nil {
			log.Fatal().Err(err).Msg("Ошибка миграции схемы")
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := dbpkg.ConnectRedis(connectCtx, cfg.Redis)
	connectCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к Redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Redis")
		}
	}()
	log.Info().Msg("Подключение к Redis установлено")

	checks := []healthcheck.Check{healthcheck.MySQL(db), healthcheck.Redis(rdb)}
	if cfg.Kafka.Enabled {
		checks = append(checks, healthcheck.Kafka(cfg.Kafka.Brokers))
	}

	// === Observability: Metrics ===

	var metricsServer *metrics.Server
	var metricsWg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Addr(),
			cfg.App.Name,
			metrics.WithReadinessCheck(metrics.ReadinessChecker(healthcheck.Composite(checks...))),
		)
		metricsWg.Add(1)
		go func() {
			defer metricsWg.Done()
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics Server")
			}
		}()
	}

	// === Провайдеры ===

	breakerSettings := circuitbreaker.Settings{
		MaxRequests:  cfg.Gateway.BreakerMaxRequests,
		Interval:     cfg.Gateway.BreakerInterval,
		Timeout:      cfg.Gateway.BreakerTimeout,
		FailureRatio: cfg.Gateway.BreakerFailureRatio,
		MinRequests:  cfg.Gateway.BreakerMinRequests,
	}

	var providers []gateway.Strategy
	if cfg.Stripe.Enabled {
		stripeGateway := stripe.New(stripe.NewClient(stripe.Config{
			SecretKey: cfg.Stripe.SecretKey,
			BaseURL:   cfg.Stripe.BaseURL,
			Timeout:   cfg.Gateway.CallTimeout,
		}))
		providers = append(providers, gateway.NewResilient(
			stripeGateway,
			circuitbreaker.NewWithSettings(gateway.ProviderStripe, breakerSettings),
			cfg.Gateway.CallTimeout,
		))
	}
	if cfg.PayPal.Enabled {
		if cfg.PayPal.Environment != "sandbox" {
			log.Warn().Str("environment", cfg.PayPal.Environment).Msg("PayPal работает только в sandbox режиме")
		}
		providers = append(providers, gateway.NewResilient(
			paypal.New(paypal.NewSandboxClient()),
			circuitbreaker.NewWithSettings(gateway.ProviderPayPal, breakerSettings),
			cfg.Gateway.CallTimeout,
		))
	}
	if len(providers) == 0 {
		log.Warn().Msg("Ни один платежный провайдер не включен")
	}

	// === Инициализация бизнес-логики ===

	selector := gateway.NewSelector(nil, providers...)
	cards := service.NewCardService(nil)
	paymentRepo := repository.NewPaymentRepository(db)
	paymentService := service.NewPaymentService(
		paymentRepo,
		selector,
		cards,
		service.NewRedisIdempotency(rdb, cfg.Gateway.IdempotencyTTL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workersWg sync.WaitGroup

	// === HTTP API ===

	routerCfg := handler.RouterConfig{
		ServiceName: cfg.App.Name,
		Payments:    paymentService,
		Cards:       cards,
		RevokeTTL:   cfg.JWT.RevokeTTL,
		Debug:       cfg.IsDevelopment(),
	}

	if cfg.JWT.PublicKeyPath != "" {
		jwtManager, err := jwt.NewManager(jwt.Config{
			PublicKeyPath: cfg.JWT.PublicKeyPath,
			Issuer:        cfg.JWT.Issuer,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка загрузки ключа JWT")
		}
		blacklist := jwt.NewBlacklist(rdb)
		jwtManager.SetBlacklist(blacklist)

		routerCfg.AuthMW = middleware.NewAuthMiddleware(jwtManager)
		routerCfg.Revoker = blacklist
	} else {
		log.Warn().Msg("JWT_PUBLIC_KEY_PATH не задан — управление платежами через REST отключено")
	}

	if cfg.RateLimit.Enabled {
		routerCfg.RateLimitMW = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			Redis:  rdb,
			Scope:  "payments",
			Limit:  cfg.RateLimit.RequestsLimit,
			Window: cfg.RateLimit.Window,
		})
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      handler.NewRouter(routerCfg).Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// === gRPC API ===

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPC.Addr()).Msg("Ошибка создания gRPC listener")
		}

		grpcServer = grpcsvc.NewServer(grpcsvc.NewHandler(paymentService, cards), cfg.App.Name, cfg.GRPC.MaxConnectionIdle)

		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			log.Info().Str("addr", cfg.GRPC.Addr()).Msg("gRPC сервер запущен")
			if err := grpcServer.Serve(lis); err != nil {
				log.Error().Err(err).Msg("Ошибка gRPC сервера")
			}
		}()
	}

	// === Kafka: команды оплаты и outbox ===

	var commandHandler *saga.CommandHandler
	var kafkaProducer *kafka.Producer

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Инициализация Kafka")

		topicsCtx, topicsCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopics(topicsCtx, cfg.Kafka.Brokers, kafka.DefaultTopics()); err != nil {
			log.Warn().Err(err).Msg("Не удалось создать топики (возможно Kafka недоступна)")
		}
		topicsCancel()

		kafkaProducer, err = kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Producer")
		}

		kafkaConsumer, err := kafka.NewConsumer(kafka.Config{
			Brokers:       cfg.Kafka.Brokers,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, kafka.TopicPaymentCommands)
		if err != nil {
			log.Fatal().Err(err).Msg("Ошибка создания Kafka Consumer")
		}
		kafkaConsumer.SetDLQ(kafkaProducer)

		outboxStore := outbox.NewGormStore(db)
		commandHandler = saga.NewCommandHandler(kafkaConsumer, outboxStore, paymentService)

		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в обработчике команд платежей")
				}
			}()
			if err := commandHandler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Ошибка обработчика команд платежей")
			}
		}()

		relay := outbox.NewRelay(outboxStore, kafkaProducer, outbox.DefaultRelayConfig())
		workersWg.Add(1)
		go func() {
			defer workersWg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Паника в Outbox Relay")
				}
			}()
			relay.Run(ctx)
		}()

		log.Info().Msg("Обработчик команд и Outbox Relay запущены")
	} else {
		log.Warn().Msg("Kafka не настроена — обработка команд платежей отключена")
	}

	// === Сверка зависших платежей ===

	reconciler := reconcile.NewWorker(paymentService, reconcile.Config{
		Interval:  cfg.Gateway.ReconcileInterval,
		OlderThan: cfg.Gateway.ReconcileAfter,
		BatchSize: cfg.Gateway.ReconcileBatch,
	})
	workersWg.Add(1)
	go func() {
		defer workersWg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Паника в воркере сверки")
			}
		}()
		reconciler.Run(ctx)
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GRPC.ShutdownTimeout)
	defer shutdownCancel()

	// Сначала перестаем принимать новые запросы
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}
	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}

	// Останавливаем фоновые воркеры и ждем их
	cancel()
	workersWg.Wait()

	if commandHandler != nil {
		if err := commandHandler.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Command Handler")
		}
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия Kafka Producer")
		}
	}

	if err := dbpkg.Close(db); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия MySQL")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics Server")
		}
		metricsWg.Wait()
	}

	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Tracing")
		}
	}

	log.Info().Msg("Payment Gateway остановлен")
}
