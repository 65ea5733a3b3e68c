package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DummyCode identifies the Dummy provider.
const DummyCode = "DUMMY"

// Dummy is a provider that never talks to a real backend. Create returns a
// redirect into this server's own pay page and Capture always succeeds.
type Dummy struct {
	Unconfigured
	redirectBase  string
	webhookSecret string
}

// NewDummy creates a Dummy provider. redirectBase is the public URL that
// pay-page links are built from.
func NewDummy(redirectBase, webhookSecret string) *Dummy {
	return &Dummy{
		Unconfigured:  Unconfigured{ProviderCode: DummyCode},
		redirectBase:  strings.TrimRight(redirectBase, "/"),
		webhookSecret: webhookSecret,
	}
}

func (d *Dummy) Create(_ context.Context, intent *Intent) (*CreateResult, error) {
	return &CreateResult{
		ProviderRef: "DUMMY-" + uuid.NewString(),
		RedirectURL: fmt.Sprintf("%s/pay/%s/%s", d.redirectBase,
			url.PathEscape(intent.TableID), strconv.FormatInt(intent.ID, 10)),
		Status: StatusPending,
	}, nil
}

func (d *Dummy) Capture(context.Context, *Intent) (*CaptureResult, error) {
	return &CaptureResult{Status: StatusPaid}, nil
}

func (d *Dummy) HandleWebhook(_ context.Context, body []byte, headers http.Header) (*WebhookEvent, error) {
	return VerifyWebhook(d.webhookSecret, body, headers)
}
