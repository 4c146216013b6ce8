// Package config загружает конфигурацию платежного шлюза из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config — полная конфигурация сервиса.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	GRPC      GRPCConfig
	MySQL     MySQLConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Jaeger    JaegerConfig
	Metrics   MetricsConfig
	Gateway   GatewayConfig
	Stripe    StripeConfig
	PayPal    PayPalConfig
}

// AppConfig — общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"payment-gateway"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig — REST API.
type HTTPConfig struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MySQLConfig — подключение к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"payment_gateway"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"MYSQL_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	AutoMigrate     bool          `env:"MYSQL_AUTO_MIGRATE" envDefault:"true"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig — подключение к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig — брокеры и топики асинхронной интеграции.
type KafkaConfig struct {
	Enabled       bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"payment-gateway"`
}

// JWTConfig — проверка токенов мерчантов (RS256).
// Пустой PublicKeyPath отключает защищенные эндпоинты управления платежами.
type JWTConfig struct {
	PublicKeyPath string        `env:"JWT_PUBLIC_KEY_PATH"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"merchant-portal"`
	RevokeTTL     time.Duration `env:"JWT_REVOKE_TTL" envDefault:"24h"`
}

// RateLimitConfig — ограничение частоты создания платежей.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsLimit int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// JaegerConfig — экспорт трейсов через OTLP.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"false"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"`
}

// OTLPEndpoint возвращает OTLP gRPC endpoint.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig — отдельный HTTP сервер для Prometheus и проб.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес сервера метрик.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GatewayConfig — общие параметры вызова платежных провайдеров.
type GatewayConfig struct {
	// CallTimeout ограничивает один вызов провайдера.
	CallTimeout time.Duration `env:"GATEWAY_CALL_TIMEOUT" envDefault:"15s"`

	// Параметры circuit breaker.
	BreakerMaxRequests  uint32        `env:"GATEWAY_BREAKER_MAX_REQUESTS" envDefault:"3"`
	BreakerInterval     time.Duration `env:"GATEWAY_BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"GATEWAY_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"GATEWAY_BREAKER_FAILURE_RATIO" envDefault:"0.6"`
	BreakerMinRequests  uint32        `env:"GATEWAY_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Сверка зависших в PROCESSING платежей.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileAfter    time.Duration `env:"RECONCILE_AFTER" envDefault:"5m"`
	ReconcileBatch    int           `env:"RECONCILE_BATCH" envDefault:"50"`

	// Время жизни ключа идемпотентности.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// StripeConfig — доступ к Stripe API.
type StripeConfig struct {
	Enabled   bool   `env:"STRIPE_ENABLED" envDefault:"true"`
	SecretKey string `env:"STRIPE_SECRET_KEY" envDefault:""`
	BaseURL   string `env:"STRIPE_BASE_URL" envDefault:"https://api.stripe.com"`
}

// PayPalConfig — доступ к PayPal.
type PayPalConfig struct {
	Enabled      bool   `env:"PAYPAL_ENABLED" envDefault:"true"`
	ClientID     string `env:"PAYPAL_CLIENT_ID" envDefault:""`
	ClientSecret string `env:"PAYPAL_CLIENT_SECRET" envDefault:""`
	Environment  string `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox"`
}

// Load загружает конфигурацию из окружения, предварительно подхватив .env, если он есть.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("GATEWAY_CALL_TIMEOUT должен быть положительным")
	}
	if c.Gateway.BreakerFailureRatio <= 0 || c.Gateway.BreakerFailureRatio > 1 {
		return fmt.Errorf("GATEWAY_BREAKER_FAILURE_RATIO должен быть в диапазоне (0, 1]")
	}
	if c.Stripe.Enabled && c.IsProduction() && c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY обязателен в production")
	}
	return nil
}

// IsDevelopment возвращает true в режиме разработки.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true в production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
