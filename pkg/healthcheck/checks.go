// Package healthcheck — проверки зависимостей для readiness probe (/readyz).
package healthcheck

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// Check — одна проверка зависимости.
type Check func(ctx context.Context) error

// MySQL проверяет доступность MySQL.
func MySQL(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("mysql ping: %w", err)
		}
		return nil
	}
}

// Redis проверяет доступность Redis.
func Redis(rdb *redis.Client) Check {
	return func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}

// Kafka проверяет, что хотя бы один брокер принимает соединение.
func Kafka(brokers []string) Check {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return fmt.Errorf("kafka: список брокеров пуст")
		}

		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		return fmt.Errorf("kafka: ни один брокер не доступен: %w", lastErr)
	}
}

// Composite выполняет все проверки и возвращает объединенную ошибку
// со списком всех недоступных зависимостей.
func Composite(checks ...Check) Check {
	return func(ctx context.Context) error {
		var result *multierror.Error
		for _, check := range checks {
			if err := check(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result.ErrorOrNil()
	}
}
