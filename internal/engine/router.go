package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goldtouch/leadwire/internal/entity"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwire_transitions_total",
			Help: "State machine transitions applied, by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	unlocksPaidTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_unlocks_paid_total",
			Help: "Unlock records that reached PAID",
		},
	)

	recordsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_records_expired_total",
			Help: "Unlock records expired by the TTL sweep",
		},
	)

	ambiguousRepliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_ambiguous_replies_total",
			Help: "Inbound SMS resolved by oldest-pending fallback",
		},
	)

	unresolvedWebhooksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_unresolved_webhooks_total",
			Help: "Payment webhooks acked but dropped for unknown references",
		},
	)
)

// ErrUnresolvedReference: the event could not be mapped to a ledger key.
// Handlers ack these (200) after the router has audit-logged them.
var ErrUnresolvedReference = errors.New("event does not resolve to an unlock record")

// EffectPublisher pushes a committed effect intent onto the dispatch queue.
type EffectPublisher interface {
	PublishEffect(ctx context.Context, intent *entity.EffectIntent) error
}

// Router resolves inbound events to a ledger key and serializes their
// processing: resolve -> acquire key lock -> re-read -> apply -> commit ->
// release -> publish. Gateway I/O never happens under the lock.
type Router struct {
	Unlocks   entity.UnlockRepositoryInterface
	Leads     entity.LeadRepositoryInterface
	Providers entity.ProviderRepositoryInterface
	Effects   entity.EffectRepositoryInterface
	Publisher EffectPublisher

	locks *keyLocks
}

func NewRouter(
	unlocks entity.UnlockRepositoryInterface,
	leads entity.LeadRepositoryInterface,
	providers entity.ProviderRepositoryInterface,
	effects entity.EffectRepositoryInterface,
	publisher EffectPublisher,
) *Router {
	return &Router{
		Unlocks:   unlocks,
		Leads:     leads,
		Providers: providers,
		Effects:   effects,
		Publisher: publisher,
		locks:     newKeyLocks(),
	}
}

// HandleInboundSMS classifies a provider reply, resolves it to one unlock
// record and applies it. Unresolvable messages are audit-logged and
// swallowed; the SMS gateway gets its 200 either way.
func (r *Router) HandleInboundSMS(ctx context.Context, fromPhone, body string) error {
	kind, leadToken := ClassifyReply(body)
	phone := entity.NormalizePhone(fromPhone)

	provider, err := r.Providers.FindByPhone(ctx, phone)
	if errors.Is(err, entity.ErrProviderNotFound) {
		log.Printf("📭 [ROUTER] SMS from unknown number %s dropped (kind=%s)", phone, kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("provider lookup for %s: %w", phone, err)
	}

	if kind == ReplyStop {
		return r.optOutProvider(ctx, provider, body)
	}

	rec, err := r.resolveReply(ctx, provider, leadToken)
	if errors.Is(err, ErrUnresolvedReference) {
		log.Printf("📭 [ROUTER] no pending unlock for provider %s (reply %q)", provider.ID, body)
		return nil
	}
	if err != nil {
		return err
	}

	return r.applyLocked(ctx, rec.LeadID, rec.ProviderID, ProviderReplied{Text: body, Kind: kind})
}

// resolveReply maps a classified reply to one record: embedded lead token
// first, otherwise the provider's oldest AWAITING_RESPONSE record. The
// oldest-pending pick is documented best effort, not guaranteed correct.
func (r *Router) resolveReply(ctx context.Context, provider *entity.Provider, leadToken string) (*entity.UnlockRecord, error) {
	if leadToken != "" {
		rec, err := r.Unlocks.FindByKey(ctx, leadToken, provider.ID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, entity.ErrUnlockNotFound) {
			return nil, err
		}
		log.Printf("⚠️ [ROUTER] token %s from provider %s matches no record, falling back to pending", leadToken, provider.ID)
	}

	pending, err := r.Unlocks.FindPendingByProvider(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrUnresolvedReference
	}
	if len(pending) > 1 && leadToken == "" {
		ambiguousRepliesTotal.Inc()
		log.Printf("⚠️ [ROUTER] provider %s has %d pending offers and no lead token; picking oldest (%s)",
			provider.ID, len(pending), pending[0].LeadID)
	}
	return pending[0], nil
}

// optOutProvider handles STOP: flip the directory flag, then close every
// non-terminal record the provider still has, each under its own key lock.
func (r *Router) optOutProvider(ctx context.Context, provider *entity.Provider, body string) error {
	if err := r.Providers.SetOptedOut(ctx, provider.ID, true); err != nil {
		return fmt.Errorf("opt out provider %s: %w", provider.ID, err)
	}
	log.Printf("🛑 [ROUTER] provider %s opted out", provider.ID)

	open, err := r.Unlocks.FindOpenByProvider(ctx, provider.ID)
	if err != nil {
		return fmt.Errorf("list open records for %s: %w", provider.ID, err)
	}
	for _, rec := range open {
		if err := r.applyLocked(ctx, rec.LeadID, rec.ProviderID, ProviderReplied{Text: body, Kind: ReplyStop}); err != nil {
			return err
		}
	}
	return nil
}

// HandlePaymentWebhook resolves a confirmed checkout session to its record.
// Unknown references return ErrUnresolvedReference so the HTTP layer acks
// them; payment providers must not be retried into failure.
func (r *Router) HandlePaymentWebhook(ctx context.Context, sessionRef string) error {
	rec, err := r.Unlocks.FindByPaymentRef(ctx, sessionRef)
	if errors.Is(err, entity.ErrUnlockNotFound) {
		unresolvedWebhooksTotal.Inc()
		log.Printf("📭 [ROUTER] payment webhook for unknown session %s dropped", sessionRef)
		return ErrUnresolvedReference
	}
	if err != nil {
		return fmt.Errorf("resolve payment ref %s: %w", sessionRef, err)
	}

	return r.applyLocked(ctx, rec.LeadID, rec.ProviderID, PaymentConfirmed{Ref: sessionRef})
}

// ApplyEvent is the shared entry point for the use cases, the reconciler
// and the dispatch worker.
func (r *Router) ApplyEvent(ctx context.Context, leadID, providerID string, ev Event) error {
	return r.applyLocked(ctx, leadID, providerID, ev)
}

func (r *Router) applyLocked(ctx context.Context, leadID, providerID string, ev Event) error {
	release := r.locks.Acquire(leadID + "/" + providerID)

	intents, err := func() ([]*entity.EffectIntent, error) {
		defer release()

		// Re-read inside the lock; the record may have moved since resolve.
		rec, err := r.Unlocks.FindByKey(ctx, leadID, providerID)
		if err != nil {
			return nil, fmt.Errorf("load record %s/%s: %w", leadID, providerID, err)
		}

		prev := rec.State
		intents, err := Apply(rec, ev)

		var terr *TransitionError
		if errors.As(err, &terr) {
			// A race, not a bug. Warn and swallow.
			transitionsTotal.WithLabelValues(ev.EventName(), "invalid").Inc()
			log.Printf("⚠️ [ROUTER] %v", terr)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if rec.State == prev && len(intents) == 0 {
			transitionsTotal.WithLabelValues(ev.EventName(), "noop").Inc()
			return nil, nil
		}

		// State and effect intents become durable together; the reveal is
		// never sent before its PAID row is on disk.
		if err := r.Unlocks.CommitTransition(ctx, rec, intents); err != nil {
			return nil, fmt.Errorf("commit %s on %s: %w", ev.EventName(), rec.Key(), err)
		}

		transitionsTotal.WithLabelValues(ev.EventName(), "applied").Inc()
		if rec.State == entity.StatePaid && prev != entity.StatePaid {
			unlocksPaidTotal.Inc()
		}
		if rec.State == entity.StateExpired && prev != entity.StateExpired {
			recordsExpiredTotal.Inc()
		}
		if rec.State != prev {
			log.Printf("🔁 [ROUTER] %s: %s -> %s (%s)", rec.Key(), prev, rec.State, ev.EventName())
		}
		return intents, nil
	}()
	if err != nil {
		return err
	}

	// Dispatch outside the lock. A publish failure is not fatal: the rows
	// are PENDING in the outbox and the startup replay will pick them up.
	for _, it := range intents {
		if perr := r.Publisher.PublishEffect(ctx, it); perr != nil {
			log.Printf("❌ [ROUTER] publish effect %s (%s) failed, left for replay: %v", it.ID, it.Kind, perr)
		}
	}
	return nil
}

// ReplayPending republishes committed-but-unconfirmed effects. Called at
// startup before the HTTP layer accepts traffic.
func (r *Router) ReplayPending(ctx context.Context) error {
	pending, err := r.Effects.ListPending(ctx, time.Now().UTC(), 500)
	if err != nil {
		return fmt.Errorf("list pending effects: %w", err)
	}
	for _, it := range pending {
		if err := r.Publisher.PublishEffect(ctx, it); err != nil {
			return fmt.Errorf("replay effect %s: %w", it.ID, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("♻️ [ROUTER] replayed %d pending effect(s)", len(pending))
	}
	return nil
}
