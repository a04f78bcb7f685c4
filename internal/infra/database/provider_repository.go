package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goldtouch/leadwire/internal/entity"
)

type ProviderRepository struct {
	DB *sql.DB
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{DB: db}
}

const providerColumns = `id, name, phone, opted_out, created_at`

func (r *ProviderRepository) FindByID(ctx context.Context, id string) (*entity.Provider, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanProvider(row)
}

// FindByPhone matches against normalized numbers; stored phones go through
// the same digit-only cleanup as inbound webhook numbers.
func (r *ProviderRepository) FindByPhone(ctx context.Context, phone string) (*entity.Provider, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers
		 WHERE regexp_replace(phone, '\D', '', 'g') = $1`,
		entity.NormalizePhone(phone))
	return scanProvider(row)
}

func (r *ProviderRepository) SetOptedOut(ctx context.Context, id string, optedOut bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE providers SET opted_out = $1 WHERE id = $2`, optedOut, id)
	if err != nil {
		return fmt.Errorf("set opted_out for %s: %w", id, err)
	}
	return nil
}

func scanProvider(row *sql.Row) (*entity.Provider, error) {
	var p entity.Provider
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.OptedOut, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return &p, nil
}
