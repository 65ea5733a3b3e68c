package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/servetable/servetable/internal/apperr"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

var (
	ErrEmptyWebhookBody   = apperr.New(apperr.ErrInvalidArgument, "empty webhook body")
	ErrWebhookSecretUnset = apperr.New(apperr.ErrInvalidArgument, "webhook secret is not configured")
	ErrInvalidSignature   = apperr.New(apperr.ErrInvalidArgument, "Invalid signature")
	ErrMalformedWebhook   = apperr.New(apperr.ErrInvalidArgument, "malformed webhook payload")
)

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook authenticates body against the signature header and parses
// it. A blank secret always rejects.
func VerifyWebhook(secret string, body []byte, headers http.Header) (*WebhookEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyWebhookBody
	}
	if secret == "" {
		return nil, ErrWebhookSecretUnset
	}
	expected := Sign(secret, body)
	provided := headerValue(headers, SignatureHeader)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return nil, ErrInvalidSignature
	}
	return parseEvent(body)
}

// headerValue looks name up ignoring case. Callers may build headers by hand
// without canonicalizing keys, so Header.Get alone is not enough.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for k, vs := range h {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

type rawEvent struct {
	ProviderRef  *string `json:"providerRef"`
	Status       *string `json:"status"`
	AmountCents  *int64  `json:"amountCents"`
	CurrencyCode *string `json:"currencyCode"`
}

func parseEvent(body []byte) (*WebhookEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrMalformedWebhook
	}
	if raw.ProviderRef == nil || *raw.ProviderRef == "" || raw.Status == nil || *raw.Status == "" {
		return nil, ErrMalformedWebhook
	}
	return &WebhookEvent{
		ProviderRef:  *raw.ProviderRef,
		Status:       strings.ToUpper(*raw.Status),
		AmountCents:  raw.AmountCents,
		CurrencyCode: raw.CurrencyCode,
	}, nil
}
