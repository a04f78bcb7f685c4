package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goldtouch/leadwire/internal/entity"
)

type UnlockStatusHandler struct {
	Unlocks entity.UnlockRepositoryInterface
}

func NewUnlockStatusHandler(unlocks entity.UnlockRepositoryInterface) *UnlockStatusHandler {
	return &UnlockStatusHandler{Unlocks: unlocks}
}

type UnlockStatusResponse struct {
	LeadID       string     `json:"lead_id"`
	ProviderID   string     `json:"provider_id"`
	State        string     `json:"state"`
	PriceCents   int        `json:"price_cents"`
	Currency     string     `json:"currency"`
	TTLExpiresAt time.Time  `json:"ttl_expires_at"`
	LastSentAt   *time.Time `json:"last_sent_at,omitempty"`
	RevealedAt   *time.Time `json:"revealed_at,omitempty"`
}

// Handle (GET /api/unlocks/{leadID}/{providerID}) exposes the ledger state
// for one offer. Payment refs stay internal.
func (h *UnlockStatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	providerID := chi.URLParam(r, "providerID")
	if leadID == "" || providerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "leadID and providerID are required"})
		return
	}

	rec, err := h.Unlocks.FindByKey(r.Context(), leadID, providerID)
	if errors.Is(err, entity.ErrUnlockNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unlock record not found"})
		return
	}
	if err != nil {
		log.Printf("❌ [UNLOCKS] find %s/%s: %v", leadID, providerID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load unlock record"})
		return
	}

	writeJSON(w, http.StatusOK, UnlockStatusResponse{
		LeadID:       rec.LeadID,
		ProviderID:   rec.ProviderID,
		State:        string(rec.State),
		PriceCents:   rec.PriceCents,
		Currency:     rec.Currency,
		TTLExpiresAt: rec.TTLExpiresAt,
		LastSentAt:   rec.LastSentAt,
		RevealedAt:   rec.RevealedAt,
	})
}
