package config

import (
	"fmt"
	"time"
)

// GRPCConfig — gRPC сервер PaymentGatewayService.
type GRPCConfig struct {
	Enabled           bool          `env:"GRPC_ENABLED" envDefault:"true"`
	Host              string        `env:"GRPC_HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"GRPC_PORT" envDefault:"50053"`
	MaxConnectionIdle time.Duration `env:"GRPC_MAX_CONNECTION_IDLE" envDefault:"5m"`
	ShutdownTimeout   time.Duration `env:"GRPC_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr возвращает адрес для net.Listen.
func (c GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
