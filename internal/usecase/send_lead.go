package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
)

// SendLeadUseCase offers an existing lead to additional providers, with an
// optional per-batch price/currency/TTL override.
type SendLeadUseCase struct {
	Leads     entity.LeadRepositoryInterface
	Providers entity.ProviderRepositoryInterface
	Unlocks   entity.UnlockRepositoryInterface
	Router    *engine.Router
	Defaults  UnlockConfig
}

func NewSendLeadUseCase(
	leads entity.LeadRepositoryInterface,
	providers entity.ProviderRepositoryInterface,
	unlocks entity.UnlockRepositoryInterface,
	router *engine.Router,
	defaults UnlockConfig,
) *SendLeadUseCase {
	return &SendLeadUseCase{
		Leads:     leads,
		Providers: providers,
		Unlocks:   unlocks,
		Router:    router,
		Defaults:  defaults,
	}
}

func (uc *SendLeadUseCase) Execute(ctx context.Context, leadID string, input SendLeadInput) (*SendLeadOutput, error) {
	if errs := ValidateSendLeadInput(input); len(errs) > 0 {
		return nil, &DomainError{Code: CodeInvalidInput, Message: errs[0].Error()}
	}

	lead, err := uc.Leads.FindByID(ctx, leadID)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return nil, ErrLeadNotFound(leadID)
	}
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorageFailure, Message: fmt.Sprintf("failed to load lead: %v", err)}
	}

	cfg := input.Config.withDefaults(uc.Defaults)
	results := fanOutToProviders(ctx, uc.Providers, uc.Unlocks, uc.Router, lead, input.ProviderIDs, cfg)

	return &SendLeadOutput{LeadID: lead.ID, ProviderResults: results}, nil
}
