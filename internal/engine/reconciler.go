package engine

import (
	"context"
	"log"
	"time"

	"github.com/goldtouch/leadwire/internal/entity"
)

// Reconciler expires stale AWAITING_* records past their TTL. It goes
// through the router's per-key lock like every other event source, so a
// sweep can never interleave with a payment webhook for the same record.
type Reconciler struct {
	Unlocks      entity.UnlockRepositoryInterface
	Router       *Router
	TickInterval time.Duration
	BatchSize    int
}

func NewReconciler(unlocks entity.UnlockRepositoryInterface, router *Router) *Reconciler {
	return &Reconciler{
		Unlocks:      unlocks,
		Router:       router,
		TickInterval: 1 * time.Minute,
		BatchSize:    100,
	}
}

func (rc *Reconciler) Start(ctx context.Context) error {
	log.Printf("🕒 TTL reconciler started (every %s)", rc.TickInterval)

	ticker := time.NewTicker(rc.TickInterval)
	defer ticker.Stop()

	rc.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("⚠️ TTL reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			rc.Sweep(ctx)
		}
	}
}

// Sweep applies TtlElapsed to every due record. Reprocessing an already
// expired record is a no-op, so overlapping sweeps are harmless.
func (rc *Reconciler) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	due, err := rc.Unlocks.FindExpired(ctx, now, rc.BatchSize)
	if err != nil {
		log.Printf("❌ [RECONCILER] scan failed: %v", err)
		return
	}

	expired := 0
	for _, rec := range due {
		if err := rc.Router.ApplyEvent(ctx, rec.LeadID, rec.ProviderID, TtlElapsed{Now: now}); err != nil {
			log.Printf("⚠️ [RECONCILER] expire %s failed: %v", rec.Key(), err)
			continue
		}
		expired++
	}

	if expired > 0 {
		log.Printf("⏱️ [RECONCILER] %d offer(s) expired", expired)
	}
}
