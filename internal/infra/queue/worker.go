package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
	"github.com/goldtouch/leadwire/internal/infra/http/middleware"
	"github.com/goldtouch/leadwire/internal/infra/integration/stripe"
)

// SMSSenderInterface is the outbound SMS contract (TextMagic in prod).
type SMSSenderInterface interface {
	SendSMS(ctx context.Context, phone, body string) error
}

// PaymentGatewayInterface creates and cancels checkout sessions.
type PaymentGatewayInterface interface {
	CreateCheckoutSession(ctx context.Context, input stripe.CheckoutSessionInput) (string, string, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// EscalationNotifier tells a human an effect could not be delivered.
type EscalationNotifier interface {
	SendEscalation(effectID, kind, leadID, providerID string, attempts int, lastErr error) error
}

// Worker drains the effect queue: it re-reads the outbox row and the
// ledger, performs the gateway call with bounded exponential-backoff
// retries, then feeds the delivery fact back through the router. Failures
// after a committed transition are never dropped silently: they escalate to
// the DLQ plus an email.
type Worker struct {
	Channel *amqp.Channel

	Effects   entity.EffectRepositoryInterface
	Unlocks   entity.UnlockRepositoryInterface
	Leads     entity.LeadRepositoryInterface
	Providers entity.ProviderRepositoryInterface

	SMS     SMSSenderInterface
	Gateway PaymentGatewayInterface
	Mailer  EscalationNotifier
	Router  *engine.Router

	MaxAttempts int
	BackoffBase time.Duration
}

func NewWorker(
	ch *amqp.Channel,
	effects entity.EffectRepositoryInterface,
	unlocks entity.UnlockRepositoryInterface,
	leads entity.LeadRepositoryInterface,
	providers entity.ProviderRepositoryInterface,
	sms SMSSenderInterface,
	gateway PaymentGatewayInterface,
	mailer EscalationNotifier,
	router *engine.Router,
) *Worker {
	return &Worker{
		Channel:     ch,
		Effects:     effects,
		Unlocks:     unlocks,
		Leads:       leads,
		Providers:   providers,
		SMS:         sms,
		Gateway:     gateway,
		Mailer:      mailer,
		Router:      router,
		MaxAttempts: 5,
		BackoffBase: 500 * time.Millisecond,
	}
}

func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	log.Printf(" [*] Effect worker running on '%s'", queueName)

	for {
		select {
		case <-ctx.Done():
			log.Println("⚠️ Effect worker stopped")
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("effect consumer channel closed")
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var msg EffectMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Printf("❌ [WORKER] malformed effect message, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}

	intent, err := w.Effects.FindByID(ctx, msg.EffectID)
	if err != nil {
		// No outbox row means the commit never happened; nothing to do.
		log.Printf("⚠️ [WORKER] effect %s has no outbox row, acking: %v", msg.EffectID, err)
		d.Ack(false)
		return
	}

	if intent.Status != entity.EffectPending {
		// Replay or broker redelivery of a finished effect.
		d.Ack(false)
		return
	}

	if err := w.processWithRetry(ctx, intent); err != nil {
		w.escalate(ctx, intent, err)
		d.Nack(false, false) // off to the DLQ
		return
	}

	if err := w.Effects.MarkSent(ctx, intent.ID); err != nil {
		// The effect happened but the mark didn't stick; a replay will
		// re-run it and the gateways' idempotency absorbs the repeat.
		log.Printf("⚠️ [WORKER] mark sent %s failed: %v", intent.ID, err)
	}
	d.Ack(false)
}

func (w *Worker) processWithRetry(ctx context.Context, intent *entity.EffectIntent) error {
	var lastErr error

	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		if err := w.execute(ctx, intent); err != nil {
			lastErr = err
			w.Effects.IncrementAttempts(ctx, intent.ID)
			middleware.RecordEffectRetry(string(intent.Kind))
			log.Printf("⚠️ [WORKER] effect %s (%s) attempt %d/%d failed: %v",
				intent.ID, intent.Kind, attempt, w.MaxAttempts, err)

			if attempt < w.MaxAttempts {
				backoff := w.BackoffBase * time.Duration(1<<(attempt-1))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
			}
			continue
		}
		return nil
	}
	return lastErr
}

// execute performs one gateway call for the intent and reports the outcome
// back through the router. Reveal payloads are built only after the record
// is re-read and confirmed PAID-or-later.
func (w *Worker) execute(ctx context.Context, intent *entity.EffectIntent) error {
	rec, err := w.Unlocks.FindByKey(ctx, intent.LeadID, intent.ProviderID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	provider, err := w.Providers.FindByID(ctx, intent.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}

	switch intent.Kind {
	case entity.EffectSendTeaser:
		lead, err := w.Leads.FindByID(ctx, intent.LeadID)
		if err != nil {
			return fmt.Errorf("load lead: %w", err)
		}
		if err := w.SMS.SendSMS(ctx, provider.Phone, engine.TeaserMessage(provider.Name, lead, rec)); err != nil {
			return err
		}
		middleware.RecordTeaserSent()
		return w.Router.ApplyEvent(ctx, rec.LeadID, rec.ProviderID, engine.DeliveryConfirmed{Kind: entity.EffectSendTeaser})

	case entity.EffectRequestPayLink:
		ref, url, err := w.Gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionInput{
			AmountCents:    rec.PriceCents,
			Currency:       rec.Currency,
			Description:    fmt.Sprintf("Unlock lead %s", rec.LeadID),
			LeadID:         rec.LeadID,
			ProviderID:     rec.ProviderID,
			IdempotencyKey: rec.IdempotencyKey,
			ExpiresAt:      rec.TTLExpiresAt.Unix(),
		})
		if err != nil {
			return err
		}
		return w.Router.ApplyEvent(ctx, rec.LeadID, rec.ProviderID, engine.PaymentLinkCreated{Ref: ref, URL: url})

	case entity.EffectSendPaymentLink:
		if err := w.SMS.SendSMS(ctx, provider.Phone, engine.PaymentLinkMessage(provider.Name, rec)); err != nil {
			return err
		}
		return w.Router.ApplyEvent(ctx, rec.LeadID, rec.ProviderID, engine.DeliveryConfirmed{Kind: entity.EffectSendPaymentLink})

	case entity.EffectSendReveal:
		// Locked fields leave the store only for a paid record.
		if rec.State != entity.StatePaid && rec.State != entity.StateRevealed {
			log.Printf("⚠️ [WORKER] reveal for %s skipped: state is %s, not PAID", rec.Key(), rec.State)
			return nil
		}
		details, err := w.Leads.GetLockedDetails(ctx, rec.LeadID)
		if err != nil {
			return fmt.Errorf("locked details: %w", err)
		}
		if err := w.SMS.SendSMS(ctx, provider.Phone, engine.RevealMessage(provider.Name, details)); err != nil {
			return err
		}
		middleware.RecordRevealSent()
		if err := w.Leads.MarkRevealed(ctx, rec.LeadID); err != nil {
			log.Printf("⚠️ [WORKER] mark lead %s revealed failed: %v", rec.LeadID, err)
		}
		return w.Router.ApplyEvent(ctx, rec.LeadID, rec.ProviderID, engine.DeliveryConfirmed{Kind: entity.EffectSendReveal})

	case entity.EffectSendDeclineAck:
		return w.SMS.SendSMS(ctx, provider.Phone, engine.DeclineAckMessage())

	case entity.EffectSendHelp:
		return w.SMS.SendSMS(ctx, provider.Phone, engine.HelpMessage())

	case entity.EffectCancelPaymentLink:
		if rec.PaymentLinkRef == "" {
			return nil
		}
		return w.Gateway.ExpireCheckoutSession(ctx, rec.PaymentLinkRef)

	default:
		log.Printf("⚠️ [WORKER] unknown effect kind %s, acking", intent.Kind)
		return nil
	}
}

// escalate: retries exhausted. Mark the row, email an operator, count it,
// and let the state machine decide whether the offer is dead.
func (w *Worker) escalate(ctx context.Context, intent *entity.EffectIntent, lastErr error) {
	log.Printf("❌ [WORKER] effect %s (%s) escalated after %d attempts: %v",
		intent.ID, intent.Kind, w.MaxAttempts, lastErr)

	if err := w.Effects.MarkEscalated(ctx, intent.ID, w.MaxAttempts); err != nil {
		log.Printf("⚠️ [WORKER] mark escalated %s failed: %v", intent.ID, err)
	}
	middleware.RecordEffectEscalated(string(intent.Kind))

	if w.Mailer != nil {
		if err := w.Mailer.SendEscalation(intent.ID, string(intent.Kind), intent.LeadID, intent.ProviderID, w.MaxAttempts, lastErr); err != nil {
			log.Printf("⚠️ [WORKER] escalation email failed: %v", err)
		}
	}

	if err := w.Router.ApplyEvent(ctx, intent.LeadID, intent.ProviderID, engine.DispatchFailed{Kind: intent.Kind}); err != nil {
		log.Printf("⚠️ [WORKER] apply DispatchFailed for %s: %v", intent.ID, err)
	}
}
