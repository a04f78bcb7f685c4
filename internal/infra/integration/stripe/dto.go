package stripe

type CheckoutSessionInput struct {
	AmountCents    int
	Currency       string
	Description    string
	LeadID         string
	ProviderID     string
	IdempotencyKey string
	ExpiresAt      int64 // unix seconds; aligns the session with the offer TTL
}

type checkoutSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
}

// WebhookEvent is the envelope Stripe posts to the webhook endpoint. Only
// checkout.session.completed matters to the engine.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			PaymentStatus string `json:"payment_status"`
		} `json:"object"`
	} `json:"data"`
}
