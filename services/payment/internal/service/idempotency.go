package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// idempotencyKeyPrefix — префикс для ключей идемпотентности в Redis.
	idempotencyKeyPrefix = "payment:idempotency:"

	// idempotencyInProgress — значение ключа, пока платеж обрабатывается.
	idempotencyInProgress = "processing"

	defaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyStore хранит соответствие ключ идемпотентности → id платежа.
type IdempotencyStore interface {
	// Acquire занимает ключ. Если ключ уже занят, возвращает его значение:
	// id платежа или "processing".
	Acquire(ctx context.Context, key string) (existing string, acquired bool, err error)
	// Complete привязывает ключ к платежу.
	Complete(ctx context.Context, key, paymentID string) error
	// Release освобождает ключ, чтобы клиент мог повторить запрос.
	Release(ctx context.Context, key string) error
}

// RedisIdempotency — IdempotencyStore на SETNX с TTL.
type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisIdempotency создает хранилище. ttl <= 0 — 24 часа.
func NewRedisIdempotency(rdb *redis.Client, ttl time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &RedisIdempotency{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotency) Acquire(ctx context.Context, key string) (string, bool, error) {
	wasSet, err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+key, idempotencyInProgress, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if wasSet {
		return "", true, nil
	}

	existing, err := s.rdb.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Ключ истек между SETNX и GET.
		return s.Acquire(ctx, key)
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *RedisIdempotency) Complete(ctx context.Context, key, paymentID string) error {
	return s.rdb.Set(ctx, idempotencyKeyPrefix+key, paymentID, s.ttl).Err()
}

func (s *RedisIdempotency) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyKeyPrefix+key).Err()
}
