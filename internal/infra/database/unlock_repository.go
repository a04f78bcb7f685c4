package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/goldtouch/leadwire/internal/entity"
)

type UnlockRepository struct {
	DB *sql.DB
}

func NewUnlockRepository(db *sql.DB) *UnlockRepository {
	return &UnlockRepository{DB: db}
}

const unlockColumns = `
	id, lead_id, provider_id, state,
	payment_link_ref, payment_link_url, payment_confirmation_ref,
	idempotency_key, price_cents, currency, ttl_hours,
	created_at, updated_at, ttl_expires_at, last_sent_at, revealed_at`

func (r *UnlockRepository) Create(ctx context.Context, rec *entity.UnlockRecord) error {
	query := `
		INSERT INTO unlock_records (
			id, lead_id, provider_id, state,
			payment_link_ref, payment_link_url, payment_confirmation_ref,
			idempotency_key, price_cents, currency, ttl_hours,
			created_at, updated_at, ttl_expires_at
		) VALUES (
			$1, $2, $3, $4,
			NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
			$8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := r.DB.ExecContext(
		ctx, query,
		rec.ID, rec.LeadID, rec.ProviderID, string(rec.State),
		rec.PaymentLinkRef, rec.PaymentLinkURL, rec.PaymentConfirmationRef,
		rec.IdempotencyKey, rec.PriceCents, rec.Currency, rec.TTLHours,
		rec.CreatedAt, rec.UpdatedAt, rec.TTLExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation: this (lead, provider) pair already has
		// its one record.
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return entity.ErrDuplicateUnlock
		}
		return fmt.Errorf("insert unlock record %s: %w", rec.Key(), err)
	}
	return nil
}

func (r *UnlockRepository) FindByKey(ctx context.Context, leadID, providerID string) (*entity.UnlockRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records
		 WHERE lead_id = $1 AND provider_id = $2`,
		leadID, providerID)
	return scanUnlock(row.Scan)
}

func (r *UnlockRepository) FindByPaymentRef(ctx context.Context, ref string) (*entity.UnlockRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records
		 WHERE payment_link_ref = $1`,
		ref)
	return scanUnlock(row.Scan)
}

// FindPendingByProvider: open offers still waiting on a reply, oldest first
// so the documented ambiguity policy falls out of the ordering.
func (r *UnlockRepository) FindPendingByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	return r.queryMany(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records
		 WHERE provider_id = $1 AND state = $2
		 ORDER BY created_at ASC`,
		providerID, string(entity.StateAwaitingResponse))
}

func (r *UnlockRepository) FindOpenByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	return r.queryMany(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records
		 WHERE provider_id = $1
		   AND state NOT IN ('REVEALED', 'DECLINED', 'EXPIRED', 'OPTED_OUT', 'FAILED')
		 ORDER BY created_at ASC`,
		providerID)
}

func (r *UnlockRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UnlockRecord, error) {
	return r.queryMany(ctx,
		`SELECT `+unlockColumns+` FROM unlock_records
		 WHERE state IN ($1, $2) AND ttl_expires_at < $3
		 ORDER BY ttl_expires_at ASC
		 LIMIT $4`,
		string(entity.StateAwaitingResponse), string(entity.StateAwaitingPayment),
		now, limit)
}

// CommitTransition writes the mutated ledger row and its effect intents in
// one transaction. Effects only exist once their state change is durable.
func (r *UnlockRepository) CommitTransition(ctx context.Context, rec *entity.UnlockRecord, intents []*entity.EffectIntent) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE unlock_records SET
			state = $1,
			payment_link_ref = NULLIF($2, ''),
			payment_link_url = NULLIF($3, ''),
			payment_confirmation_ref = NULLIF($4, ''),
			updated_at = $5,
			last_sent_at = $6,
			revealed_at = $7
		WHERE id = $8
	`,
		string(rec.State),
		rec.PaymentLinkRef, rec.PaymentLinkURL, rec.PaymentConfirmationRef,
		rec.UpdatedAt, nullTime(rec.LastSentAt), nullTime(rec.RevealedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update unlock record %s: %w", rec.Key(), err)
	}

	for _, it := range intents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO effect_outbox (id, lead_id, provider_id, kind, status, attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		`, it.ID, it.LeadID, it.ProviderID, string(it.Kind), it.Status, it.CreatedAt, it.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert effect %s (%s): %w", it.ID, it.Kind, err)
		}
	}

	return tx.Commit()
}

func (r *UnlockRepository) queryMany(ctx context.Context, query string, args ...any) ([]*entity.UnlockRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unlock records: %w", err)
	}
	defer rows.Close()

	var recs []*entity.UnlockRecord
	for rows.Next() {
		rec, err := scanUnlock(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanUnlock(scan func(dest ...any) error) (*entity.UnlockRecord, error) {
	var (
		rec                  entity.UnlockRecord
		state                string
		linkRef, linkURL     sql.NullString
		confirmRef           sql.NullString
		lastSent, revealedAt sql.NullTime
	)

	err := scan(
		&rec.ID, &rec.LeadID, &rec.ProviderID, &state,
		&linkRef, &linkURL, &confirmRef,
		&rec.IdempotencyKey, &rec.PriceCents, &rec.Currency, &rec.TTLHours,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.TTLExpiresAt, &lastSent, &revealedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUnlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan unlock record: %w", err)
	}

	rec.State = entity.UnlockState(state)
	rec.PaymentLinkRef = linkRef.String
	rec.PaymentLinkURL = linkURL.String
	rec.PaymentConfirmationRef = confirmRef.String
	if lastSent.Valid {
		t := lastSent.Time
		rec.LastSentAt = &t
	}
	if revealedAt.Valid {
		t := revealedAt.Time
		rec.RevealedAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
