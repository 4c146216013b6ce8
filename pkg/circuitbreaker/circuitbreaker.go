// Package circuitbreaker защищает вызовы внешних платежных провайдеров от каскадных сбоев.
//
// Состояния:
//   - Closed: вызовы проходят к провайдеру
//   - Open: провайдер считается недоступным, вызовы отклоняются сразу
//   - Half-Open: пропускается ограниченное число пробных вызовов
//
// Использование:
//
//	cb := circuitbreaker.New("stripe")
//	intent, err := circuitbreaker.Do(ctx, cb, func(ctx context.Context) (*Intent, error) {
//	    return client.CreatePaymentIntent(ctx, params)
//	})
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"example.com/payment-gateway/pkg/logger"
)

// ErrOpen возвращается, когда breaker не пропускает вызов.
var ErrOpen = errors.New("провайдер временно недоступен (circuit breaker open)")

// Settings — настройки Circuit Breaker.
type Settings struct {
	MaxRequests  uint32        // вызовов в Half-Open
	Interval     time.Duration // период сброса счетчиков в Closed
	Timeout      time.Duration // время в Open до перехода в Half-Open
	FailureRatio float64       // доля ошибок для открытия
	MinRequests  uint32        // минимум вызовов для расчета доли

	// IsFailure решает, учитывается ли ошибка как сбой провайдера.
	// nil — любая ошибка, кроме отмены контекста вызывающей стороной.
	IsFailure func(err error) bool
}

// DefaultSettings — значения по умолчанию для HTTP API провайдеров.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Breaker — обертка над gobreaker с логированием смены состояний.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// New создает Breaker с настройками по умолчанию.
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings создает Breaker с заданными настройками.
func NewWithSettings(name string, s Settings) *Breaker {
	isFailure := s.IsFailure
	if isFailure == nil {
		isFailure = defaultIsFailure
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},

		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			log := logger.With().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Logger()

			switch to {
			case gobreaker.StateOpen:
				log.Warn().Msg("Circuit Breaker ОТКРЫТ — провайдер недоступен")
			case gobreaker.StateHalfOpen:
				log.Info().Msg("Circuit Breaker ПОЛУОТКРЫТ — пробные вызовы")
			case gobreaker.StateClosed:
				log.Info().Msg("Circuit Breaker ЗАКРЫТ — провайдер восстановлен")
			}
		},
	})

	return &Breaker{cb: cb, name: name}
}

// State возвращает текущее состояние.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name возвращает имя breaker'а.
func (b *Breaker) Name() string {
	return b.name
}

// Do выполняет fn через breaker. Отказ breaker'а возвращается как ErrOpen,
// ошибки самой fn возвращаются без изменений.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrOpen
	}
	if err != nil {
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
