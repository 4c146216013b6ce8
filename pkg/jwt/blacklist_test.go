package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlacklist_Revoke(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	bl := NewBlacklist(client)

	t.Run("действующий токен", func(t *testing.T) {
		require.NoError(t, bl.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)))

		assert.True(t, mr.Exists(prefixRevoked+"jti-1"))
		assert.InDelta(t, (10 * time.Minute).Seconds(), mr.TTL(prefixRevoked+"jti-1").Seconds(), 2)

		revoked, err := bl.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("истекший токен не сохраняется", func(t *testing.T) {
		require.NoError(t, bl.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)))
		assert.False(t, mr.Exists(prefixRevoked+"jti-old"))
	})

	t.Run("запись исчезает по TTL", func(t *testing.T) {
		require.NoError(t, bl.Revoke(ctx, "jti-2", time.Now().Add(time.Minute)))
		mr.FastForward(2 * time.Minute)

		revoked, err := bl.IsRevoked(ctx, "jti-2")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestBlacklist_InvalidateMerchant(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRedis(t)
	bl := NewBlacklist(client)

	invalidated, err := bl.IsMerchantInvalidated(ctx, "merchant-1", time.Now())
	require.NoError(t, err)
	assert.False(t, invalidated, "без записи мерчант не инвалидирован")

	require.NoError(t, bl.InvalidateMerchant(ctx, "merchant-1", time.Hour))

	invalidated, err = bl.IsMerchantInvalidated(ctx, "merchant-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, invalidated, "старый токен отозван")

	invalidated, err = bl.IsMerchantInvalidated(ctx, "merchant-1", time.Now().Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, invalidated, "токен, выданный позже, действует")
}

func TestBlacklist_RedisUnavailable(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	bl := NewBlacklist(client)
	mr.Close()

	_, err := bl.IsRevoked(ctx, "jti-1")
	assert.Error(t, err)

	_, err = bl.IsMerchantInvalidated(ctx, "merchant-1", time.Now())
	assert.Error(t, err)
}
