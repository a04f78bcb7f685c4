package textmagic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/goldtouch/leadwire/internal/entity"
)

const defaultBaseURL = "https://rest.textmagic.com/api/v2"

type Client struct {
	username   string
	apiKey     string
	fromNumber string
	baseURL    string
	http       *http.Client
}

func NewClient(username, apiKey, fromNumber string) *Client {
	return &Client{
		username:   username,
		apiKey:     apiKey,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the client at a test server.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = url
	return c
}

// SendSMS posts one outbound message. TextMagic answers 201 with the
// message id on success.
func (c *Client) SendSMS(ctx context.Context, phone, body string) error {
	if c.username == "" || c.apiKey == "" {
		return fmt.Errorf("textmagic not configured")
	}

	payload := sendMessageRequest{
		Text:   body,
		Phones: entity.NormalizePhone(phone),
		From:   c.fromNumber,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TM-Username", c.username)
	req.Header.Set("X-TM-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("textmagic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("textmagic api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode textmagic response: %w", err)
	}

	log.Printf("✅ SMS sent to %s (id=%d)", payload.Phones, result.ID)
	return nil
}
