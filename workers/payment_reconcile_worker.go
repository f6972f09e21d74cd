// workers/payment_reconcile_worker.go
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler resolves online payments whose callback never arrived.
type Reconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// PollPendingPayments runs one reconcile pass per tick until ctx is done.
// Registrations younger than grace are left for the gateway callback.
func PollPendingPayments(ctx context.Context, r Reconciler, interval, grace time.Duration) {
	log.Info().Dur("interval", interval).Dur("grace", grace).Msg("🔁 [RECONCILE] starting pending payment poller")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("⏹️ [RECONCILE] poller stopped")
			return
		case <-ticker.C:
			reconcileOnce(ctx, r, grace)
		}
	}
}

func reconcileOnce(ctx context.Context, r Reconciler, grace time.Duration) int {
	started := time.Now()
	changed, err := r.ReconcilePending(ctx, grace)
	if err != nil {
		log.Error().Err(err).Msg("❌ [RECONCILE] pass failed")
		return changed
	}
	if changed > 0 {
		log.Info().Int("changed", changed).Dur("took", time.Since(started)).Msg("✅ [RECONCILE] applied gateway outcomes")
	} else {
		log.Debug().Msg("[RECONCILE] nothing to apply")
	}
	return changed
}
