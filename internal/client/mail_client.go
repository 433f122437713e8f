package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MailRelayClient implements notify.MailSender against the platform mail
// relay. Template rendering and address resolution happen relay-side.
type MailRelayClient struct {
	baseURL string
	http    *http.Client
}

// NewMailRelayClient creates a mail relay client.
func NewMailRelayClient(baseURL string) *MailRelayClient {
	return &MailRelayClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send posts one message to the relay. Errors propagate so the delivery
// worker can retry with backoff.
func (c *MailRelayClient) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(sendMailRequest{To: to, Subject: subject, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode)
	}
	return nil
}
