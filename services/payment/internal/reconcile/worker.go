// Package reconcile периодически сверяет зависшие в PROCESSING платежи с провайдером.
package reconcile

import (
	"context"
	"time"

	"example.com/payment-gateway/pkg/logger"
)

// Reconciler — операция сверки (реализуется service.PaymentService).
type Reconciler interface {
	ReconcileStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Config — настройки Worker.
type Config struct {
	Interval time.Duration
	// OlderThan — платеж считается зависшим, если не менялся дольше.
	OlderThan time.Duration
	BatchSize int
}

// Worker запускает сверку по таймеру.
type Worker struct {
	reconciler Reconciler
	cfg        Config
}

// NewWorker создает Worker; нулевые значения заменяются значениями по умолчанию.
func NewWorker(reconciler Reconciler, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.OlderThan <= 0 {
		cfg.OlderThan = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{reconciler: reconciler, cfg: cfg}
}

// Run блокирует до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With().Str("component", "reconcile_worker").Logger()
	log.Info().
		Dur("interval", w.cfg.Interval).
		Dur("older_than", w.cfg.OlderThan).
		Msg("Запуск сверки платежей")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка сверки платежей")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход и возвращает число платежей, сменивших статус.
func (w *Worker) RunOnce(ctx context.Context) int {
	log := logger.FromContext(ctx)

	changed, err := w.reconciler.ReconcileStuck(ctx, w.cfg.OlderThan, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка сверки платежей")
		return 0
	}
	if changed > 0 {
		log.Info().Int("changed", changed).Msg("Сверка: статусы платежей обновлены")
	}
	return changed
}
