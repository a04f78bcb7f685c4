package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var nonDigit = regexp.MustCompile(`\D`)

func ValidateCreateLeadInput(input CreateLeadInput) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(input.City) == "" {
		errs = append(errs, ValidationError{"city", "is required"})
	}
	if strings.TrimSpace(input.ServiceType) == "" {
		errs = append(errs, ValidationError{"service_type", "is required"})
	}

	if strings.TrimSpace(input.ClientName) == "" {
		errs = append(errs, ValidationError{"client_name", "is required"})
	} else if len(input.ClientName) > 200 {
		errs = append(errs, ValidationError{"client_name", "must not exceed 200 characters"})
	}

	if strings.TrimSpace(input.ClientPhone) == "" {
		errs = append(errs, ValidationError{"client_phone", "is required"})
	} else if !isValidPhoneNumber(input.ClientPhone) {
		errs = append(errs, ValidationError{"client_phone", "must be a valid phone number"})
	}

	if input.ClientEmail != "" {
		if _, err := mail.ParseAddress(input.ClientEmail); err != nil {
			errs = append(errs, ValidationError{"client_email", "is invalid"})
		}
	}

	if len(input.ProviderIDs) == 0 {
		errs = append(errs, ValidationError{"provider_ids", "at least one provider is required"})
	}

	errs = append(errs, validateUnlockConfig(input.Config)...)
	return errs
}

func ValidateSendLeadInput(input SendLeadInput) []ValidationError {
	var errs []ValidationError

	if len(input.ProviderIDs) == 0 {
		errs = append(errs, ValidationError{"provider_ids", "at least one provider is required"})
	}

	errs = append(errs, validateUnlockConfig(input.Config)...)
	return errs
}

func validateUnlockConfig(cfg UnlockConfig) []ValidationError {
	var errs []ValidationError

	if cfg.PriceCents < 0 {
		errs = append(errs, ValidationError{"config.price_cents", "must not be negative"})
	}
	if cfg.TTLHours < 0 {
		errs = append(errs, ValidationError{"config.ttl_hours", "must not be negative"})
	}
	if cfg.Currency != "" && len(cfg.Currency) != 3 {
		errs = append(errs, ValidationError{"config.currency", "must be a 3-letter ISO code"})
	}
	return errs
}

func isValidPhoneNumber(phone string) bool {
	digits := nonDigit.ReplaceAllString(phone, "")
	return len(digits) >= 10 && len(digits) <= 15
}
