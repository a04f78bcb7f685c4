package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/infra/http/middleware"
	"github.com/goldtouch/leadwire/internal/infra/integration/stripe"
)

// StripeWebhookHandler verifies and routes payment events. Signature
// verification runs over the raw body before any JSON parsing.
type StripeWebhookHandler struct {
	Router        *engine.Router
	WebhookSecret string
}

func NewStripeWebhookHandler(router *engine.Router, webhookSecret string) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		Router:        router,
		WebhookSecret: webhookSecret,
	}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := stripe.VerifySignature(payload, sigHeader, h.WebhookSecret, stripe.DefaultSignatureTolerance); err != nil {
		log.Printf("🛑 [STRIPE] rejected webhook from %s: %v", getClientIP(r), err)
		middleware.RecordIntegrationError("stripe")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	var event stripe.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if event.Type != "checkout.session.completed" {
		// Subscribed events we don't act on yet.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err = h.Router.HandlePaymentWebhook(r.Context(), event.Data.Object.ID)
	if errors.Is(err, engine.ErrUnresolvedReference) {
		// Unknown session: ack so Stripe stops retrying, but leave a trace.
		log.Printf("⚠️ [STRIPE] no unlock record for session %s (event %s)", event.Data.Object.ID, event.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
		return
	}
	if err != nil {
		log.Printf("❌ [STRIPE] routing payment %s: %v", event.Data.Object.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process payment"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
