// Package payments abstracts payment backends behind a common Provider
// contract and authenticates the webhooks they post back.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/servetable/servetable/internal/apperr"
)

// Intent statuses. PENDING is the only status an intent leaves; PAID and
// FAILED are final.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
)

// knownStatus reports whether s is one of the intent statuses.
func knownStatus(s string) bool {
	return s == StatusPending || s == StatusPaid || s == StatusFailed
}

// Intent is a request to collect amountCents from a table.
type Intent struct {
	ID           int64     `json:"id"`
	TableID      string    `json:"tableId"`
	AmountCents  int64     `json:"amountCents"`
	CurrencyCode string    `json:"currencyCode"`
	Provider     string    `json:"provider"`
	ProviderRef  string    `json:"providerRef,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateResult is what a provider returns after registering an intent.
type CreateResult struct {
	ProviderRef string `json:"providerRef"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

// CaptureResult is what a provider returns after capturing an intent.
type CaptureResult struct {
	Status string `json:"status"`
}

// WebhookEvent is the normalized content of an authenticated webhook.
type WebhookEvent struct {
	ProviderRef  string  `json:"providerRef"`
	Status       string  `json:"status"`
	AmountCents  *int64  `json:"amountCents,omitempty"`
	CurrencyCode *string `json:"currencyCode,omitempty"`
}

// Provider is one payment backend.
type Provider interface {
	Code() string
	Create(ctx context.Context, intent *Intent) (*CreateResult, error)
	Capture(ctx context.Context, intent *Intent) (*CaptureResult, error)
	HandleWebhook(ctx context.Context, body []byte, headers http.Header) (*WebhookEvent, error)
}

// NotConfiguredError reports a provider operation that has no backend wired.
type NotConfiguredError struct {
	Provider  string
	Operation string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("payment provider %s: %s is not configured", e.Provider, e.Operation)
}

// Unwrap exposes the error as an Unsupported apperr carrying the same text.
func (e *NotConfiguredError) Unwrap() error { return apperr.New(apperr.ErrUnsupported, e.Error()) }

// Unconfigured implements every Provider operation by failing with
// NotConfiguredError. Providers embed it and override what they support.
type Unconfigured struct {
	ProviderCode string
}

func (u Unconfigured) Code() string { return u.ProviderCode }

func (u Unconfigured) Create(context.Context, *Intent) (*CreateResult, error) {
	return nil, &NotConfiguredError{Provider: u.ProviderCode, Operation: "create"}
}

func (u Unconfigured) Capture(context.Context, *Intent) (*CaptureResult, error) {
	return nil, &NotConfiguredError{Provider: u.ProviderCode, Operation: "capture"}
}

func (u Unconfigured) HandleWebhook(context.Context, []byte, http.Header) (*WebhookEvent, error) {
	return nil, &NotConfiguredError{Provider: u.ProviderCode, Operation: "webhook"}
}
