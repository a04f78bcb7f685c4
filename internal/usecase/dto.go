package usecase

// UnlockConfig prices one batch of offers. Zero values fall back to the
// engine defaults configured at startup.
type UnlockConfig struct {
	PriceCents int    `json:"price_cents"`
	Currency   string `json:"currency"`
	TTLHours   int    `json:"ttl_hours"`
}

func (c UnlockConfig) withDefaults(d UnlockConfig) UnlockConfig {
	if c.PriceCents <= 0 {
		c.PriceCents = d.PriceCents
	}
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.TTLHours <= 0 {
		c.TTLHours = d.TTLHours
	}
	return c
}

type CreateLeadInput struct {
	City                string `json:"city"`
	ServiceType         string `json:"service_type"`
	PreferredTimeWindow string `json:"preferred_time_window"`
	BudgetRange         string `json:"budget_range"`
	NotesSnippet        string `json:"notes_snippet"`

	ClientName   string `json:"client_name"`
	ClientPhone  string `json:"client_phone"`
	ClientEmail  string `json:"client_email"`
	ExactAddress string `json:"exact_address"`

	ProviderIDs []string     `json:"provider_ids"`
	Config      UnlockConfig `json:"config"`
}

type SendLeadInput struct {
	ProviderIDs []string     `json:"provider_ids"`
	Config      UnlockConfig `json:"config"`
}

// ProviderResult reports the fan-out outcome for one provider; one failed
// provider never fails the batch.
type ProviderResult struct {
	ProviderID string `json:"provider_id"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
}

type CreateLeadOutput struct {
	LeadID          string           `json:"lead_id"`
	ProviderResults []ProviderResult `json:"provider_results"`
}

type SendLeadOutput struct {
	LeadID          string           `json:"lead_id"`
	ProviderResults []ProviderResult `json:"provider_results"`
}
