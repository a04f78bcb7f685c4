package engine

import (
	"fmt"
	"time"

	"github.com/goldtouch/leadwire/internal/entity"
)

// Event is something that happened to one ledger key. The machine consumes
// events and produces effect intents; it never talks to a gateway itself.
type Event interface {
	EventName() string
}

// TeaserDispatched: the engine decided to offer this lead to this provider.
type TeaserDispatched struct{}

// ProviderReplied: an inbound SMS resolved to this record. Kind is
// pre-classified by ClassifyReply so the machine never parses text.
type ProviderReplied struct {
	Text string
	Kind ReplyKind
}

// PaymentLinkCreated: the dispatch worker got a checkout session back from
// the payment gateway.
type PaymentLinkCreated struct {
	Ref string
	URL string
}

// DeliveryConfirmed: the SMS gateway acked the send of the given effect.
type DeliveryConfirmed struct {
	Kind entity.EffectKind
}

// PaymentConfirmed: the payment webhook reported a completed checkout.
type PaymentConfirmed struct {
	Ref string
}

// TtlElapsed: the reconciler found the record past its TTL.
type TtlElapsed struct {
	Now time.Time
}

// DispatchFailed: effect retries exhausted; the offer cannot proceed.
type DispatchFailed struct {
	Kind entity.EffectKind
}

func (TeaserDispatched) EventName() string   { return "TeaserDispatched" }
func (ProviderReplied) EventName() string    { return "ProviderReplied" }
func (PaymentLinkCreated) EventName() string { return "PaymentLinkCreated" }
func (DeliveryConfirmed) EventName() string  { return "DeliveryConfirmed" }
func (PaymentConfirmed) EventName() string   { return "PaymentConfirmed" }
func (TtlElapsed) EventName() string         { return "TtlElapsed" }
func (DispatchFailed) EventName() string     { return "DispatchFailed" }

// TransitionError marks an event that is not legal from the record's current
// state. It represents a race, not a bug: callers log it and move on.
type TransitionError struct {
	Key   string
	From  entity.UnlockState
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %s from state %s (record %s)", e.Event, e.From, e.Key)
}

func invalid(rec *entity.UnlockRecord, ev Event) ([]*entity.EffectIntent, error) {
	return nil, &TransitionError{Key: rec.Key(), From: rec.State, Event: ev.EventName()}
}

// Apply runs one event against one record. It mutates the record in place
// (state, refs, timestamps) and returns the effect intents the transition
// owes. A nil, nil return is a benign no-op: nothing changed, nothing to
// commit. Pure logic; no I/O.
func Apply(rec *entity.UnlockRecord, ev Event) ([]*entity.EffectIntent, error) {
	switch e := ev.(type) {
	case TeaserDispatched:
		return applyTeaserDispatched(rec, e)
	case ProviderReplied:
		return applyProviderReplied(rec, e)
	case PaymentLinkCreated:
		return applyPaymentLinkCreated(rec, e)
	case DeliveryConfirmed:
		return applyDeliveryConfirmed(rec, e)
	case PaymentConfirmed:
		return applyPaymentConfirmed(rec, e)
	case TtlElapsed:
		return applyTtlElapsed(rec, e)
	case DispatchFailed:
		return applyDispatchFailed(rec, e)
	default:
		return invalid(rec, ev)
	}
}

func transition(rec *entity.UnlockRecord, to entity.UnlockState) {
	rec.State = to
	rec.UpdatedAt = time.Now().UTC()
}

func intent(rec *entity.UnlockRecord, kind entity.EffectKind) *entity.EffectIntent {
	return entity.NewEffectIntent(rec.LeadID, rec.ProviderID, kind)
}

func applyTeaserDispatched(rec *entity.UnlockRecord, ev TeaserDispatched) ([]*entity.EffectIntent, error) {
	if rec.State != entity.StateNew {
		return invalid(rec, ev)
	}
	transition(rec, entity.StateTeaserSent)
	return []*entity.EffectIntent{intent(rec, entity.EffectSendTeaser)}, nil
}

func applyProviderReplied(rec *entity.UnlockRecord, ev ProviderReplied) ([]*entity.EffectIntent, error) {
	// STOP short-circuits from any non-terminal state. On a terminal record
	// it is a no-op; the router has already flipped the directory flag.
	if ev.Kind == ReplyStop {
		if rec.State.IsTerminal() {
			return nil, nil
		}
		transition(rec, entity.StateOptedOut)
		return nil, nil
	}

	if rec.State != entity.StateAwaitingResponse {
		if rec.State.IsTerminal() {
			return invalid(rec, ev)
		}
		// Free text while the record is mid-flight: logged no-op.
		return nil, nil
	}

	switch ev.Kind {
	case ReplyYes:
		transition(rec, entity.StatePaymentLinkRequested)
		return []*entity.EffectIntent{intent(rec, entity.EffectRequestPayLink)}, nil
	case ReplyNo:
		transition(rec, entity.StateDeclined)
		return []*entity.EffectIntent{intent(rec, entity.EffectSendDeclineAck)}, nil
	default:
		// Unrecognized text on a live offer: nudge the provider, keep state.
		return []*entity.EffectIntent{intent(rec, entity.EffectSendHelp)}, nil
	}
}

func applyPaymentLinkCreated(rec *entity.UnlockRecord, ev PaymentLinkCreated) ([]*entity.EffectIntent, error) {
	if rec.State != entity.StatePaymentLinkRequested {
		// Gateway retries can report the same session twice.
		if rec.PaymentLinkRef == ev.Ref && rec.PaymentLinkRef != "" {
			return nil, nil
		}
		return invalid(rec, ev)
	}
	rec.PaymentLinkRef = ev.Ref
	rec.PaymentLinkURL = ev.URL
	transition(rec, entity.StatePaymentLinkSent)
	return []*entity.EffectIntent{intent(rec, entity.EffectSendPaymentLink)}, nil
}

func applyDeliveryConfirmed(rec *entity.UnlockRecord, ev DeliveryConfirmed) ([]*entity.EffectIntent, error) {
	now := time.Now().UTC()
	switch ev.Kind {
	case entity.EffectSendTeaser:
		if rec.State != entity.StateTeaserSent {
			return nil, nil // duplicate ack
		}
		rec.LastSentAt = &now
		transition(rec, entity.StateAwaitingResponse)
		return nil, nil
	case entity.EffectSendPaymentLink:
		if rec.State != entity.StatePaymentLinkSent {
			return nil, nil
		}
		rec.LastSentAt = &now
		transition(rec, entity.StateAwaitingPayment)
		return nil, nil
	case entity.EffectSendReveal:
		if rec.State != entity.StatePaid {
			return nil, nil
		}
		rec.RevealedAt = &now
		transition(rec, entity.StateRevealed)
		return nil, nil
	default:
		// Acks for decline/help sends carry no state.
		return nil, nil
	}
}

func applyPaymentConfirmed(rec *entity.UnlockRecord, ev PaymentConfirmed) ([]*entity.EffectIntent, error) {
	switch rec.State {
	case entity.StatePaymentLinkSent, entity.StateAwaitingPayment:
		// The webhook can beat the link-send delivery ack, so both states
		// accept it. Reveal intent and the PAID mutation commit together.
		rec.PaymentConfirmationRef = ev.Ref
		transition(rec, entity.StatePaid)
		return []*entity.EffectIntent{intent(rec, entity.EffectSendReveal)}, nil

	case entity.StatePaid, entity.StateRevealed:
		// Payment gateways redeliver webhooks. Idempotent no-op.
		return nil, nil

	case entity.StateExpired:
		// The provider's card was charged in the window between TTL expiry
		// and the session cancel landing. Payment wins: the record is the
		// audit trail of money taken, and the provider gets the details.
		if rec.PaymentLinkRef != "" && rec.PaymentConfirmationRef == "" {
			rec.PaymentConfirmationRef = ev.Ref
			transition(rec, entity.StatePaid)
			return []*entity.EffectIntent{intent(rec, entity.EffectSendReveal)}, nil
		}
		return nil, nil

	default:
		if rec.State.IsTerminal() {
			return nil, nil
		}
		return invalid(rec, ev)
	}
}

func applyTtlElapsed(rec *entity.UnlockRecord, ev TtlElapsed) ([]*entity.EffectIntent, error) {
	switch rec.State {
	case entity.StateAwaitingResponse:
		transition(rec, entity.StateExpired)
		return nil, nil
	case entity.StateAwaitingPayment:
		transition(rec, entity.StateExpired)
		// Expire the checkout session so the provider can't pay for an
		// offer that no longer exists.
		if rec.PaymentLinkRef != "" {
			return []*entity.EffectIntent{intent(rec, entity.EffectCancelPaymentLink)}, nil
		}
		return nil, nil
	default:
		// PAID, terminal, and the transient SENT/REQUESTED states: the TTL
		// sweep never touches a paid record and never refunds anything.
		return nil, nil
	}
}

func applyDispatchFailed(rec *entity.UnlockRecord, ev DispatchFailed) ([]*entity.EffectIntent, error) {
	switch ev.Kind {
	case entity.EffectSendTeaser, entity.EffectRequestPayLink, entity.EffectSendPaymentLink:
		if rec.State.IsTerminal() || rec.State == entity.StatePaid || rec.State == entity.StateRevealed {
			return nil, nil
		}
		transition(rec, entity.StateFailed)
		return nil, nil
	default:
		// A failed reveal or ack send escalates to a human but never
		// alters the record; the provider paid.
		return nil, nil
	}
}
