package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goldtouch/leadwire/internal/entity"
)

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func (r *LeadRepository) Create(ctx context.Context, lead *entity.Lead) error {
	query := `
		INSERT INTO leads (
			id, city, service_type, preferred_time_window, budget_range,
			notes_snippet, client_name, client_phone, client_email,
			exact_address, revealed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)
	`

	_, err := r.DB.ExecContext(
		ctx, query,
		lead.ID, lead.City, lead.ServiceType, lead.PreferredTimeWindow,
		lead.BudgetRange, lead.NotesSnippet, lead.ClientName,
		lead.ClientPhone, lead.ClientEmail, lead.ExactAddress,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead %s: %w", lead.ID, err)
	}
	return nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	query := `
		SELECT id, city, service_type, preferred_time_window, budget_range,
		       notes_snippet, client_name, client_phone, client_email,
		       exact_address, revealed, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var lead entity.Lead
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&lead.ID, &lead.City, &lead.ServiceType, &lead.PreferredTimeWindow,
		&lead.BudgetRange, &lead.NotesSnippet, &lead.ClientName,
		&lead.ClientPhone, &lead.ClientEmail, &lead.ExactAddress,
		&lead.Revealed, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead %s: %w", id, err)
	}
	return &lead, nil
}

func (r *LeadRepository) GetLockedDetails(ctx context.Context, id string) (*entity.LockedDetails, error) {
	query := `
		SELECT client_name, client_phone, client_email, exact_address
		FROM leads
		WHERE id = $1
	`

	var d entity.LockedDetails
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&d.ClientName, &d.ClientPhone, &d.ClientEmail, &d.ExactAddress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locked details for %s: %w", id, err)
	}
	return &d, nil
}

func (r *LeadRepository) MarkRevealed(ctx context.Context, id string) error {
	query := `UPDATE leads SET revealed = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.DB.ExecContext(ctx, query, id)
	return err
}
