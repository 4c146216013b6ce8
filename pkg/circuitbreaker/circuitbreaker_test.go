package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProvider = errors.New("provider down")

func testSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func fail(context.Context) (string, error) { return "", errProvider }

func ok(context.Context) (string, error) { return "pi_123", nil }

func TestDo_Success(t *testing.T) {
	b := New("stripe")

	got, err := Do(context.Background(), b, ok)

	require.NoError(t, err)
	assert.Equal(t, "pi_123", got)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, "stripe", b.Name())
}

func TestDo_OpensAfterFailures(t *testing.T) {
	b := NewWithSettings("stripe", testSettings())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := Do(ctx, b, fail)
		assert.ErrorIs(t, err, errProvider)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	called := false
	_, err := Do(ctx, b, func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "в состоянии Open вызов не должен доходить до провайдера")
}

func TestDo_HalfOpenRecovers(t *testing.T) {
	b := NewWithSettings("paypal", testSettings())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = Do(ctx, b, fail)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	got, err := Do(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", got)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestDo_BelowMinRequestsStaysClosed(t *testing.T) {
	s := testSettings()
	s.MinRequests = 10
	b := NewWithSettings("stripe", s)

	for i := 0; i < 5; i++ {
		_, _ = Do(context.Background(), b, fail)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestDo_CanceledNotCounted(t *testing.T) {
	b := NewWithSettings("stripe", testSettings())

	for i := 0; i < 5; i++ {
		_, err := Do(context.Background(), b, func(context.Context) (string, error) {
			return "", context.Canceled
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestDo_CustomIsFailure(t *testing.T) {
	declined := errors.New("card declined")

	s := testSettings()
	s.IsFailure = func(err error) bool { return !errors.Is(err, declined) }
	b := NewWithSettings("stripe", s)

	for i := 0; i < 5; i++ {
		_, _ = Do(context.Background(), b, func(context.Context) (int, error) {
			return 0, declined
		})
	}

	assert.Equal(t, gobreaker.StateClosed, b.State())
}
