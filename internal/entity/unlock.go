package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UnlockState is the per-(lead, provider) lifecycle position.
type UnlockState string

const (
	StateNew                  UnlockState = "NEW"
	StateTeaserSent           UnlockState = "TEASER_SENT"
	StateAwaitingResponse     UnlockState = "AWAITING_RESPONSE"
	StatePaymentLinkRequested UnlockState = "PAYMENT_LINK_REQUESTED"
	StatePaymentLinkSent      UnlockState = "PAYMENT_LINK_SENT"
	StateAwaitingPayment      UnlockState = "AWAITING_PAYMENT"
	StatePaid                 UnlockState = "PAID"
	StateRevealed             UnlockState = "REVEALED"
	StateDeclined             UnlockState = "DECLINED"
	StateExpired              UnlockState = "EXPIRED"
	StateOptedOut             UnlockState = "OPTED_OUT"
	StateFailed               UnlockState = "FAILED"
)

// IsTerminal reports whether no further forward transition exists.
// PAID is deliberately not terminal: it still owes a reveal.
func (s UnlockState) IsTerminal() bool {
	switch s {
	case StateRevealed, StateDeclined, StateExpired, StateOptedOut, StateFailed:
		return true
	}
	return false
}

// UnlockRecord is one row of the unlock ledger: the offer made to one
// provider for one lead. Rows are never deleted; they are the audit trail.
type UnlockRecord struct {
	ID         string      `json:"id"`
	LeadID     string      `json:"lead_id"`
	ProviderID string      `json:"provider_id"`
	State      UnlockState `json:"state"`

	// Stripe checkout session id + hosted payment page URL, set when the
	// link is created. The session id is the webhook resolution key.
	PaymentLinkRef string `json:"payment_link_ref,omitempty"`
	PaymentLinkURL string `json:"payment_link_url,omitempty"`

	// Payment intent/charge reference reported by the confirmation webhook.
	PaymentConfirmationRef string `json:"payment_confirmation_ref,omitempty"`

	// Sent on checkout-session creation so gateway retries can't create a
	// second session for the same offer.
	IdempotencyKey string `json:"idempotency_key"`

	PriceCents int    `json:"price_cents"`
	Currency   string `json:"currency"`
	TTLHours   int    `json:"ttl_hours"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TTLExpiresAt time.Time  `json:"ttl_expires_at"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	RevealedAt   *time.Time `json:"revealed_at,omitempty"`
}

// NewUnlockRecord creates a ledger row in NEW. Price, currency and TTL are
// fixed here and never change afterwards.
func NewUnlockRecord(leadID, providerID string, priceCents int, currency string, ttlHours int) *UnlockRecord {
	now := time.Now().UTC()
	return &UnlockRecord{
		ID:             uuid.New().String(),
		LeadID:         leadID,
		ProviderID:     providerID,
		State:          StateNew,
		IdempotencyKey: uuid.New().String(),
		PriceCents:     priceCents,
		Currency:       currency,
		TTLHours:       ttlHours,
		CreatedAt:      now,
		UpdatedAt:      now,
		TTLExpiresAt:   now.Add(time.Duration(ttlHours) * time.Hour),
	}
}

// Key is the ledger key used for locking and logging.
func (r *UnlockRecord) Key() string {
	return r.LeadID + "/" + r.ProviderID
}

var (
	ErrUnlockNotFound  = fmt.Errorf("unlock record not found")
	ErrDuplicateUnlock = fmt.Errorf("unlock record already exists for this lead and provider")
)

type UnlockRepositoryInterface interface {
	Create(ctx context.Context, rec *UnlockRecord) error
	FindByKey(ctx context.Context, leadID, providerID string) (*UnlockRecord, error)

	// FindByPaymentRef resolves a payment webhook by checkout session id.
	FindByPaymentRef(ctx context.Context, ref string) (*UnlockRecord, error)

	// FindPendingByProvider returns the provider's AWAITING_RESPONSE rows,
	// oldest first, for free-text SMS resolution.
	FindPendingByProvider(ctx context.Context, providerID string) ([]*UnlockRecord, error)

	// FindOpenByProvider returns every non-terminal row for STOP fan-out.
	FindOpenByProvider(ctx context.Context, providerID string) ([]*UnlockRecord, error)

	// FindExpired returns AWAITING_RESPONSE / AWAITING_PAYMENT rows whose
	// ttl_expires_at is before now.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*UnlockRecord, error)

	// CommitTransition persists the mutated record and inserts its effect
	// intents in one transaction. The ledger row and its outbox rows are
	// either all durable or none are.
	CommitTransition(ctx context.Context, rec *UnlockRecord, intents []*EffectIntent) error
}
