package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

type Client struct {
	baseURL    string
	apiKey     string
	successURL string
	cancelURL  string
	http       *http.Client
}

func NewClient(apiKey, successURL, cancelURL string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// CreateCheckoutSession creates a one-off payment page for an unlock and
// returns (session id, hosted URL). The caller's idempotency key makes
// gateway-level retries safe: Stripe returns the same session instead of
// opening a second charge.
func (c *Client) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (string, string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(input.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(input.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", input.Description)
	form.Set("metadata[lead_id]", input.LeadID)
	form.Set("metadata[provider_id]", input.ProviderID)
	if input.ExpiresAt > 0 {
		form.Set("expires_at", strconv.FormatInt(input.ExpiresAt, 10))
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", input.IdempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("stripe create session (status %d): %s", resp.StatusCode, string(body))
	}

	var session checkoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", fmt.Errorf("decode stripe response: %w", err)
	}

	return session.ID, session.URL, nil
}

// ExpireCheckoutSession invalidates an open session so a TTL-expired offer
// can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/v1/checkout/sessions/"+sessionID+"/expire", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe expire request: %w", err)
	}
	defer resp.Body.Close()

	// Expiring an already-completed or already-expired session fails on
	// Stripe's side; that is fine, the money question is settled either way.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stripe expire session %s (status %d): %s", sessionID, resp.StatusCode, string(body))
	}
	return nil
}
