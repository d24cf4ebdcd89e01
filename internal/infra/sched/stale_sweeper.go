package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-platform-payments/internal/domain/ports/repository"
	"course-platform-payments/internal/infra/metrics"
	"course-platform-payments/internal/usecase"
)

// StaleOrderSweeper periodically re-checks payments stuck in created status
// against the provider. This covers lost webhooks and crashes mid-reconcile:
// the re-fetch path is the same one webhooks drive, so all the idempotency
// guards apply.
type StaleOrderSweeper struct {
	reconcile  usecase.ReconcileUseCase
	payments   repository.PaymentRepository
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewStaleOrderSweeper(
	reconcile usecase.ReconcileUseCase,
	payments repository.PaymentRepository,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *StaleOrderSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &StaleOrderSweeper{
		reconcile:  reconcile,
		payments:   payments,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger,
	}
}

func (w *StaleOrderSweeper) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *StaleOrderSweeper) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListCreatedOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("stale-sweeper: list stale payments failed")
		return
	}
	for _, p := range stale {
		if p.ProviderOrderID == "" {
			continue
		}
		result, err := w.reconcile.ReconcileOrder(ctx, p.Provider, p.ProviderOrderID)
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("provider", p.Provider).Msg("stale-sweeper: reconcile failed; will retry next tick")
			continue
		}
		if result.Outcome == usecase.ReconcileTransitioned {
			metrics.IncPayment(p.Provider, string(result.Status))
			w.log.Info().Str("payment_id", p.ID).Str("status", string(result.Status)).Msg("stale-sweeper: payment reconciled")
		}
	}
}
