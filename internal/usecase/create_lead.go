package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
)

// CreateLeadUseCase persists a new inquiry and fans out teaser offers to
// the targeted providers. Each offer is one unlock-ledger row; the teaser
// send itself is an effect the dispatch queue delivers.
type CreateLeadUseCase struct {
	Leads     entity.LeadRepositoryInterface
	Providers entity.ProviderRepositoryInterface
	Unlocks   entity.UnlockRepositoryInterface
	Router    *engine.Router
	Defaults  UnlockConfig
}

func NewCreateLeadUseCase(
	leads entity.LeadRepositoryInterface,
	providers entity.ProviderRepositoryInterface,
	unlocks entity.UnlockRepositoryInterface,
	router *engine.Router,
	defaults UnlockConfig,
) *CreateLeadUseCase {
	return &CreateLeadUseCase{
		Leads:     leads,
		Providers: providers,
		Unlocks:   unlocks,
		Router:    router,
		Defaults:  defaults,
	}
}

func (uc *CreateLeadUseCase) Execute(ctx context.Context, input CreateLeadInput) (*CreateLeadOutput, error) {
	if errs := ValidateCreateLeadInput(input); len(errs) > 0 {
		return nil, &DomainError{Code: CodeInvalidInput, Message: errs[0].Error()}
	}

	lead, err := entity.NewLead(
		input.City, input.ServiceType, input.PreferredTimeWindow,
		input.BudgetRange, input.NotesSnippet,
		entity.LockedDetails{
			ClientName:   input.ClientName,
			ClientPhone:  input.ClientPhone,
			ClientEmail:  input.ClientEmail,
			ExactAddress: input.ExactAddress,
		},
	)
	if err != nil {
		return nil, &DomainError{Code: CodeInvalidInput, Message: err.Error()}
	}

	if err := uc.Leads.Create(ctx, lead); err != nil {
		return nil, &TechnicalError{Code: CodeStorageFailure, Message: fmt.Sprintf("failed to store lead: %v", err)}
	}

	log.Printf("🔥 Lead %s created (%s / %s), offering to %d provider(s)", lead.ID, lead.City, lead.ServiceType, len(input.ProviderIDs))

	cfg := input.Config.withDefaults(uc.Defaults)
	results := fanOutToProviders(ctx, uc.Providers, uc.Unlocks, uc.Router, lead, input.ProviderIDs, cfg)

	return &CreateLeadOutput{LeadID: lead.ID, ProviderResults: results}, nil
}

// fanOutToProviders creates one unlock record per provider and kicks each
// one through TeaserDispatched. Shared by create and send; a failure for
// one provider never aborts the rest of the batch.
func fanOutToProviders(
	ctx context.Context,
	providers entity.ProviderRepositoryInterface,
	unlocks entity.UnlockRepositoryInterface,
	router *engine.Router,
	lead *entity.Lead,
	providerIDs []string,
	cfg UnlockConfig,
) []ProviderResult {
	results := make([]ProviderResult, 0, len(providerIDs))

	for _, pid := range providerIDs {
		results = append(results, offerToProvider(ctx, providers, unlocks, router, lead, pid, cfg))
	}
	return results
}

func offerToProvider(
	ctx context.Context,
	providers entity.ProviderRepositoryInterface,
	unlocks entity.UnlockRepositoryInterface,
	router *engine.Router,
	lead *entity.Lead,
	providerID string,
	cfg UnlockConfig,
) ProviderResult {
	provider, err := providers.FindByID(ctx, providerID)
	if errors.Is(err, entity.ErrProviderNotFound) {
		return ProviderResult{ProviderID: providerID, Success: false, Message: "provider not found"}
	}
	if err != nil {
		return ProviderResult{ProviderID: providerID, Success: false, Message: "provider lookup failed"}
	}
	if provider.OptedOut {
		return ProviderResult{ProviderID: providerID, Success: false, Message: "provider has opted out"}
	}

	rec := entity.NewUnlockRecord(lead.ID, provider.ID, cfg.PriceCents, cfg.Currency, cfg.TTLHours)
	if err := unlocks.Create(ctx, rec); err != nil {
		if errors.Is(err, entity.ErrDuplicateUnlock) {
			return ProviderResult{ProviderID: providerID, Success: false, Message: "lead already sent to this provider"}
		}
		log.Printf("❌ [FANOUT] create unlock %s/%s: %v", lead.ID, providerID, err)
		return ProviderResult{ProviderID: providerID, Success: false, Message: "failed to create unlock record"}
	}

	if err := router.ApplyEvent(ctx, lead.ID, provider.ID, engine.TeaserDispatched{}); err != nil {
		// The record exists in NEW; a later replay or manual resend can
		// still move it forward.
		log.Printf("❌ [FANOUT] teaser dispatch %s/%s: %v", lead.ID, providerID, err)
		return ProviderResult{ProviderID: providerID, Success: false, Message: "teaser dispatch failed"}
	}

	return ProviderResult{ProviderID: providerID, Success: true, Message: "teaser queued"}
}
