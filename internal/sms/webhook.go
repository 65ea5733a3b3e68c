package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Servetable-Signature"

// WebhookProvider hands messages to an in-house gateway by POSTing signed JSON.
type WebhookProvider struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhookProvider creates a WebhookProvider.
func NewWebhookProvider(url, secret string) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 15 * time.Second},
		now:    time.Now,
	}
}

type webhookMessage struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *WebhookProvider) Send(ctx context.Context, to, body string) (*SendResult, error) {
	payload, err := json.Marshal(webhookMessage{
		To:        to,
		Body:      body,
		Timestamp: p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(p.secret, payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook: error %d: %s", resp.StatusCode, string(respBody))
	}

	// Gateways that accept without an id reply 202 with an empty body.
	result := &SendResult{Status: "sent"}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return result, nil
	}
	var parsed struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("webhook: parse response: %w", err)
	}
	result.MessageID = parsed.MessageID
	return result, nil
}
