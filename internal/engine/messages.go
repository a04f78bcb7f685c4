package engine

import (
	"fmt"
	"strings"

	"github.com/goldtouch/leadwire/internal/entity"
)

// SMS copy lives here so the dispatch worker stays free of wording and the
// machine stays free of gateways.

// FormatPrice renders cents for SMS: "$20" or "$20.50", "20 EUR" otherwise.
func FormatPrice(cents int, currency string) string {
	if strings.EqualFold(currency, "usd") {
		if cents%100 == 0 {
			return fmt.Sprintf("$%d", cents/100)
		}
		return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
	}
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}

// TeaserMessage discloses only the public lead fields, plus the lead token
// the provider can quote back.
func TeaserMessage(providerName string, lead *entity.Lead, rec *entity.UnlockRecord) string {
	return fmt.Sprintf(
		"%s, new client inquiry in %s. Type: %s. Time window: %s. Budget: %s. "+
			"Reply Y to unlock contact details for %s. Reply N to skip. Lead %s.",
		providerName, lead.City, lead.ServiceType, lead.PreferredTimeWindow,
		lead.BudgetRange, FormatPrice(rec.PriceCents, rec.Currency), lead.ID,
	)
}

func PaymentLinkMessage(providerName string, rec *entity.UnlockRecord) string {
	return fmt.Sprintf(
		"%s, tap to unlock the client details for %s: %s\nThe link expires with the offer.",
		providerName, FormatPrice(rec.PriceCents, rec.Currency), rec.PaymentLinkURL,
	)
}

// RevealMessage is the only message allowed to carry locked fields. Callers
// must have confirmed the record is PAID or later before building it.
func RevealMessage(providerName string, details *entity.LockedDetails) string {
	return fmt.Sprintf(
		"%s, here are the client details:\nName: %s\nPhone: %s\nEmail: %s\nAddress: %s",
		providerName, details.ClientName, details.ClientPhone,
		details.ClientEmail, details.ExactAddress,
	)
}

func DeclineAckMessage() string {
	return "You've skipped this lead. Thanks for the quick reply - we'll keep new inquiries coming your way!"
}

func HelpMessage() string {
	return "We didn't understand your response. Please reply with:\n" +
		"- 'Y' to UNLOCK the client details\n" +
		"- 'N' to skip this lead\n\n" +
		"Thank you!"
}

func NoPendingMessage() string {
	return "We couldn't find any pending leads for you. " +
		"If you're responding to a lead offer, please reply to the original message. " +
		"Otherwise, please contact support."
}
