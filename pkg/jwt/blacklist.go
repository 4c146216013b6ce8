package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	prefixRevoked  = "jwt:revoked:"          // jwt:revoked:{jti}
	prefixMerchant = "jwt:merchant_revoked:" // jwt:merchant_revoked:{merchantID}
)

// Blacklist хранит отозванные токены в Redis.
type Blacklist struct {
	redis *redis.Client
}

// NewBlacklist создает список отзыва.
func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{redis: client}
}

// Revoke отзывает токен до истечения его срока. Истекшие токены пропускаются.
func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, prefixRevoked+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("ошибка отзыва токена: %w", err)
	}
	return nil
}

// IsRevoked проверяет jti.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.redis.Exists(ctx, prefixRevoked+jti).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка проверки отзыва токена: %w", err)
	}
	return n > 0, nil
}

// InvalidateMerchant отзывает все токены мерчанта, выданные до текущей секунды.
// ttl должен быть не меньше времени жизни токена.
func (b *Blacklist) InvalidateMerchant(ctx context.Context, merchantID string, ttl time.Duration) error {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	if err := b.redis.Set(ctx, prefixMerchant+merchantID, ts, ttl).Err(); err != nil {
		return fmt.Errorf("ошибка инвалидации токенов мерчанта: %w", err)
	}
	return nil
}

// IsMerchantInvalidated возвращает true, если токен выдан раньше инвалидации.
func (b *Blacklist) IsMerchantInvalidated(ctx context.Context, merchantID string, issuedAt time.Time) (bool, error) {
	val, err := b.redis.Get(ctx, prefixMerchant+merchantID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка проверки инвалидации мерчанта: %w", err)
	}

	invalidatedAt, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("ошибка парсинга timestamp инвалидации: %w", err)
	}
	// iat в той же секунде считается отозванным
	return issuedAt.Unix() <= invalidatedAt, nil
}
