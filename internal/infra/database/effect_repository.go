package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goldtouch/leadwire/internal/entity"
)

type EffectRepository struct {
	DB *sql.DB
}

func NewEffectRepository(db *sql.DB) *EffectRepository {
	return &EffectRepository{DB: db}
}

const effectColumns = `id, lead_id, provider_id, kind, status, attempts, created_at, updated_at`

func (r *EffectRepository) FindByID(ctx context.Context, id string) (*entity.EffectIntent, error) {
	var it entity.EffectIntent
	var kind string
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+effectColumns+` FROM effect_outbox WHERE id = $1`, id,
	).Scan(&it.ID, &it.LeadID, &it.ProviderID, &kind, &it.Status, &it.Attempts, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("effect %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find effect %s: %w", id, err)
	}
	it.Kind = entity.EffectKind(kind)
	return &it, nil
}

// ListPending returns committed-but-unconfirmed effects for startup replay.
func (r *EffectRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.EffectIntent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+effectColumns+` FROM effect_outbox
		 WHERE status = $1 AND created_at <= $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		entity.EffectPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending effects: %w", err)
	}
	defer rows.Close()

	var intents []*entity.EffectIntent
	for rows.Next() {
		var it entity.EffectIntent
		var kind string
		if err := rows.Scan(&it.ID, &it.LeadID, &it.ProviderID, &kind, &it.Status, &it.Attempts, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		it.Kind = entity.EffectKind(kind)
		intents = append(intents, &it)
	}
	return intents, rows.Err()
}

func (r *EffectRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE effect_outbox SET status = $1, updated_at = NOW() WHERE id = $2`,
		entity.EffectSent, id)
	return err
}

func (r *EffectRepository) MarkEscalated(ctx context.Context, id string, attempts int) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE effect_outbox SET status = $1, attempts = $2, updated_at = NOW() WHERE id = $3`,
		entity.EffectEscalated, attempts, id)
	return err
}

func (r *EffectRepository) IncrementAttempts(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE effect_outbox SET attempts = attempts + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}
