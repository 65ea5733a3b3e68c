package payments

import (
	"context"
	"net/http"
)

// MaibCode identifies the maib e-commerce provider.
const MaibCode = "MAIB"

// Maib accepts signed status callbacks from maib. Create and Capture are not
// wired to the maib API yet and report NotConfiguredError.
type Maib struct {
	Unconfigured
	webhookSecret string
}

// NewMaib creates a maib provider that verifies callbacks with webhookSecret.
func NewMaib(webhookSecret string) *Maib {
	return &Maib{
		Unconfigured:  Unconfigured{ProviderCode: MaibCode},
		webhookSecret: webhookSecret,
	}
}

func (m *Maib) HandleWebhook(_ context.Context, body []byte, headers http.Header) (*WebhookEvent, error) {
	return VerifyWebhook(m.webhookSecret, body, headers)
}
