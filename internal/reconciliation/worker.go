package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/driver-ledger/pkg/models"
	"go.uber.org/zap"
)

// sweepBatchSize caps how many stale payouts one sweep settles
const sweepBatchSize = 100

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_sweeps_total",
		Help: "Total number of reconciliation sweeps executed",
	})
	staleSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_stale_payouts_settled_total",
		Help: "Stale payouts settled by reconciliation, by outcome",
	}, []string{"outcome"})
)

// PayoutService is the settlement surface the reconciler needs
type PayoutService interface {
	Settle(ctx context.Context, id uuid.UUID, status models.PayoutStatus, failureCode, failureReason *string) (*models.Payout, error)
}

// StaleFinder locates payouts stuck in a non-terminal status
type StaleFinder interface {
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Payout, error)
}

// Worker periodically fails payouts stuck in pending or processing longer
// than the staleness threshold. Settlement goes through the payout service,
// so a sweep losing a race against a late webhook is harmless.
type Worker struct {
	finder    StaleFinder
	service   PayoutService
	logger    *zap.Logger
	interval  time.Duration
	staleness time.Duration
	done      chan struct{}
}

// NewWorker creates a reconciliation worker
func NewWorker(finder StaleFinder, service PayoutService, logger *zap.Logger, interval, staleness time.Duration) *Worker {
	return &Worker{
		finder:    finder,
		service:   service,
		logger:    logger,
		interval:  interval,
		staleness: staleness,
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting reconciliation worker",
		zap.Duration("interval", w.interval),
		zap.Duration("staleness", w.staleness),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopped")
			return
		case <-w.done:
			w.logger.Info("Reconciliation worker shutdown requested")
			return
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.done)
}

// Sweep settles every payout stuck past the staleness threshold as failed
func (w *Worker) Sweep(ctx context.Context) {
	sweepsTotal.Inc()

	cutoff := time.Now().Add(-w.staleness)
	stale, err := w.finder.FindStale(ctx, cutoff, sweepBatchSize)
	if err != nil {
		w.logger.Error("Failed to find stale payouts", zap.Error(err))
		return
	}

	if len(stale) == 0 {
		return
	}

	w.logger.Info("Sweeping stale payouts", zap.Int("count", len(stale)))

	code := "stale"
	reason := "stuck payout cleared by reconciliation"
	for _, payout := range stale {
		_, err := w.service.Settle(ctx, payout.ID, models.PayoutFailed, &code, &reason)
		if err != nil {
			// A webhook may have settled it between the query and now
			staleSettledTotal.WithLabelValues("conflict").Inc()
			w.logger.Warn("Failed to settle stale payout",
				zap.String("payout_id", payout.ID.String()),
				zap.String("status", string(payout.Status)),
				zap.Error(err),
			)
			continue
		}

		staleSettledTotal.WithLabelValues("failed").Inc()
		w.logger.Info("Stale payout settled as failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("previous_status", string(payout.Status)),
			zap.Int64("amount", payout.Amount),
		)
	}
}
