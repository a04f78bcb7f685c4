package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
	"github.com/goldtouch/leadwire/internal/infra/http/middleware"
	"github.com/goldtouch/leadwire/internal/infra/integration/textmagic"
)

// SMSWebhookHandler receives inbound SMS callbacks from TextMagic.
// The gateway retries on non-2xx, so anything that is not our fault gets a
// 200 to stop the redelivery storm.
type SMSWebhookHandler struct {
	Router     *engine.Router
	FromNumber string
}

func NewSMSWebhookHandler(router *engine.Router, fromNumber string) *SMSWebhookHandler {
	return &SMSWebhookHandler{
		Router:     router,
		FromNumber: fromNumber,
	}
}

// Validate (GET /webhook/sms) answers the gateway's endpoint check.
func (h *SMSWebhookHandler) Validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Receive (POST /webhook/sms) routes a provider reply through the engine.
func (h *SMSWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var msg textmagic.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	from := msg.FromNumber()
	body := msg.MessageText()
	if from == "" || body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sender or text"})
		return
	}

	// Traffic for someone else's number sometimes lands here when multiple
	// services share a TextMagic account.
	if to := msg.ToNumber(); to != "" && h.FromNumber != "" &&
		entity.NormalizePhone(to) != entity.NormalizePhone(h.FromNumber) {
		log.Printf("⚠️ [SMS] inbound for foreign number %s, ignoring", to)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.Router.HandleInboundSMS(r.Context(), from, body); err != nil {
		log.Printf("❌ [SMS] routing inbound from %s: %v", from, err)
		middleware.RecordIntegrationError("textmagic")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process message"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
