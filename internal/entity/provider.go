package entity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider is owned by the external directory. The engine reads phone and
// opt-out status and never mutates anything except the opt-out flag on STOP.
type Provider struct {
	ID        string    `json:"id"` // ex: "prov_amy"
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	OptedOut  bool      `json:"opted_out"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrProviderNotFound = fmt.Errorf("provider not found")

type ProviderRepositoryInterface interface {
	FindByID(ctx context.Context, id string) (*Provider, error)
	FindByPhone(ctx context.Context, phone string) (*Provider, error)
	SetOptedOut(ctx context.Context, id string, optedOut bool) error
}

// NormalizePhone strips everything except digits and a leading plus, the
// same cleanup both TextMagic payloads and stored numbers go through so
// lookups compare like with like.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, c := range phone {
		if c == '+' && i == 0 {
			continue // stored without the plus
		}
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
