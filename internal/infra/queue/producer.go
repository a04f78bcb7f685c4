package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goldtouch/leadwire/internal/entity"
)

// EffectMessage carries only the identifiers; the worker re-reads the
// outbox row and the ledger, so a stale message can never act on stale
// state.
type EffectMessage struct {
	EffectID   string `json:"effect_id"`
	LeadID     string `json:"lead_id"`
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"`
}

type Producer struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewProducer(conn *amqp.Connection, ch *amqp.Channel) *Producer {
	return &Producer{Conn: conn, Ch: ch}
}

// PublishEffect satisfies engine.EffectPublisher.
func (p *Producer) PublishEffect(ctx context.Context, intent *entity.EffectIntent) error {
	msg := EffectMessage{
		EffectID:   intent.ID,
		LeadID:     intent.LeadID,
		ProviderID: intent.ProviderID,
		Kind:       string(intent.Kind),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal effect message: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent, // survives broker restart
		},
	)
	if err != nil {
		return fmt.Errorf("publish effect %s: %w", intent.ID, err)
	}
	return nil
}
