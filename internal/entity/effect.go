package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EffectKind names a side effect the state machine asked for. The machine
// only produces intents; the dispatch worker turns them into gateway calls.
type EffectKind string

const (
	EffectSendTeaser        EffectKind = "SEND_TEASER"
	EffectRequestPayLink    EffectKind = "REQUEST_PAYMENT_LINK"
	EffectSendPaymentLink   EffectKind = "SEND_PAYMENT_LINK"
	EffectSendReveal        EffectKind = "SEND_REVEAL"
	EffectSendDeclineAck    EffectKind = "SEND_DECLINE_ACK"
	EffectSendHelp          EffectKind = "SEND_HELP"
	EffectCancelPaymentLink EffectKind = "CANCEL_PAYMENT_LINK"
)

// Effect outbox statuses.
const (
	EffectPending   = "PENDING"
	EffectSent      = "SENT"
	EffectEscalated = "ESCALATED"
)

// EffectIntent is one committed-but-not-yet-confirmed side effect. PENDING
// rows are replayed at startup, so a crash between commit and dispatch
// loses nothing.
type EffectIntent struct {
	ID         string     `json:"id"`
	LeadID     string     `json:"lead_id"`
	ProviderID string     `json:"provider_id"`
	Kind       EffectKind `json:"kind"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func NewEffectIntent(leadID, providerID string, kind EffectKind) *EffectIntent {
	now := time.Now().UTC()
	return &EffectIntent{
		ID:         uuid.New().String(),
		LeadID:     leadID,
		ProviderID: providerID,
		Kind:       kind,
		Status:     EffectPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type EffectRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*EffectIntent, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*EffectIntent, error)
	MarkSent(ctx context.Context, id string) error
	MarkEscalated(ctx context.Context, id string, attempts int) error
	IncrementAttempts(ctx context.Context, id string) error
}
