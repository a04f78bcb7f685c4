package entity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const leadIDPrefix = "lead_"

// Lead is a client service inquiry. The teaser fields are disclosable to any
// provider; the locked fields are revealed only after a paid unlock.
type Lead struct {
	ID                  string    `json:"id"`
	City                string    `json:"city"`
	ServiceType         string    `json:"service_type"`
	PreferredTimeWindow string    `json:"preferred_time_window"`
	BudgetRange         string    `json:"budget_range"`
	NotesSnippet        string    `json:"notes_snippet,omitempty"`
	Revealed            bool      `json:"revealed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	// Locked contact details. Never serialized on the public view.
	ClientName   string `json:"-"`
	ClientPhone  string `json:"-"`
	ClientEmail  string `json:"-"`
	ExactAddress string `json:"-"`
}

// LockedDetails is the paid part of a lead.
type LockedDetails struct {
	ClientName   string `json:"client_name"`
	ClientPhone  string `json:"client_phone"`
	ClientEmail  string `json:"client_email"`
	ExactAddress string `json:"exact_address"`
}

// PublicLead is what the API exposes before payment. Locked fields are
// masked, not omitted, so callers can see they exist.
type PublicLead struct {
	ID                  string `json:"id"`
	City                string `json:"city"`
	ServiceType         string `json:"service_type"`
	PreferredTimeWindow string `json:"preferred_time_window"`
	BudgetRange         string `json:"budget_range"`
	NotesSnippet        string `json:"notes_snippet,omitempty"`
	ClientName          string `json:"client_name"`
	ClientPhone         string `json:"client_phone"`
	ClientEmail         string `json:"client_email"`
	ExactAddress        string `json:"exact_address"`
	CreatedAt           string `json:"created_at"`
}

const lockedMask = "***LOCKED***"

func (l *Lead) PublicView() PublicLead {
	return PublicLead{
		ID:                  l.ID,
		City:                l.City,
		ServiceType:         l.ServiceType,
		PreferredTimeWindow: l.PreferredTimeWindow,
		BudgetRange:         l.BudgetRange,
		NotesSnippet:        l.NotesSnippet,
		ClientName:          lockedMask,
		ClientPhone:         lockedMask,
		ClientEmail:         lockedMask,
		ExactAddress:        lockedMask,
		CreatedAt:           l.CreatedAt.Format(time.RFC3339),
	}
}

// NewLeadID generates ids like "lead_a3f09c12" so a provider can quote the
// token back in a free-text SMS.
func NewLeadID() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return leadIDPrefix + hex.EncodeToString(buf)
}

func NewLead(city, serviceType, timeWindow, budget, notes string, details LockedDetails) (*Lead, error) {
	lead := &Lead{
		ID:                  NewLeadID(),
		City:                city,
		ServiceType:         serviceType,
		PreferredTimeWindow: timeWindow,
		BudgetRange:         budget,
		NotesSnippet:        notes,
		ClientName:          details.ClientName,
		ClientPhone:         details.ClientPhone,
		ClientEmail:         details.ClientEmail,
		ExactAddress:        details.ExactAddress,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}

	if err := lead.Validate(); err != nil {
		return nil, err
	}
	return lead, nil
}

func (l *Lead) Validate() error {
	if l.City == "" {
		return errors.New("city is required")
	}
	if l.ServiceType == "" {
		return errors.New("service_type is required")
	}
	if l.ClientName == "" {
		return errors.New("client_name is required")
	}
	if l.ClientPhone == "" {
		return errors.New("client_phone is required")
	}
	return nil
}

var ErrLeadNotFound = fmt.Errorf("lead not found")

type LeadRepositoryInterface interface {
	Create(ctx context.Context, lead *Lead) error
	FindByID(ctx context.Context, id string) (*Lead, error)

	// GetLockedDetails returns the paid fields. The engine calls this only
	// after the record is PAID.
	GetLockedDetails(ctx context.Context, id string) (*LockedDetails, error)

	// MarkRevealed flips the audit flag. The only mutation a lead ever sees.
	MarkRevealed(ctx context.Context, id string) error
}
