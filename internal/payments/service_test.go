package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servetable/servetable/internal/apperr"
	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/testutil"
)

type env struct {
	svc      *Service
	store    *MemoryStore
	sessions *guest.MemoryStore
	tokens   *guest.Tokens
	verified *guest.Session
	pending  *guest.Session
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	reg, err := NewRegistry(NewDummy("https://servetable.example", testSecret), NewMaib(testSecret))
	require.NoError(t, err)

	sessions := guest.NewMemoryStore()
	exp := time.Now().Add(time.Hour)
	verified := &guest.Session{ID: "s-verified", TableID: "T1", ExpiresAt: exp}
	verified.MarkVerified("+37369123456")
	pending := &guest.Session{ID: "s-pending", TableID: "T1", ExpiresAt: exp}
	require.NoError(t, sessions.Create(ctx, verified))
	require.NoError(t, sessions.Create(ctx, pending))

	store := NewMemoryStore()
	return &env{
		svc:      NewService(reg, store, sessions, testutil.DiscardLogger()),
		store:    store,
		sessions: sessions,
		tokens:   guest.NewTokens("0123456789abcdef0123456789abcdef"),
		verified: verified,
		pending:  pending,
	}
}

func (e *env) webhook(t *testing.T, provider string, payload string) (*WebhookEvent, error) {
	t.Helper()
	body := []byte(payload)
	return e.svc.HandleWebhook(context.Background(), provider, body, signedHeaders(testSecret, body))
}

func TestCreateIntentWithDummy(t *testing.T) {
	e := newEnv(t)
	intent, res, err := e.svc.CreateIntent(context.Background(), e.verified.ID, CreateRequest{
		AmountCents: 15000, CurrencyCode: "mdl", Provider: "dummy",
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", intent.TableID)
	assert.Equal(t, "MDL", intent.CurrencyCode)
	assert.Equal(t, DummyCode, intent.Provider)
	assert.Equal(t, StatusPending, intent.Status)
	assert.Equal(t, res.ProviderRef, intent.ProviderRef)
	assert.Equal(t, fmt.Sprintf("https://servetable.example/pay/T1/%d", intent.ID), res.RedirectURL)

	stored, err := e.store.FindByID(context.Background(), intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ProviderRef, stored.ProviderRef)
}

func TestCreateIntentRequiresVerifiedSession(t *testing.T) {
	e := newEnv(t)
	req := CreateRequest{AmountCents: 100, CurrencyCode: "MDL", Provider: "DUMMY"}

	_, _, err := e.svc.CreateIntent(context.Background(), e.pending.ID, req)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = e.svc.CreateIntent(context.Background(), "nope", req)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateIntentValidation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		req  CreateRequest
		kind error
	}{
		{"zero amount", CreateRequest{AmountCents: 0, CurrencyCode: "MDL", Provider: "DUMMY"}, apperr.ErrInvalidArgument},
		{"bad currency", CreateRequest{AmountCents: 1, CurrencyCode: "LEI1", Provider: "DUMMY"}, apperr.ErrInvalidArgument},
		{"other table", CreateRequest{TableID: "T9", AmountCents: 1, CurrencyCode: "MDL", Provider: "DUMMY"}, apperr.ErrForbidden},
		{"unknown provider", CreateRequest{AmountCents: 1, CurrencyCode: "MDL", Provider: "stripe"}, apperr.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.svc.CreateIntent(context.Background(), e.verified.ID, tt.req)
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCreateIntentWithUnconfiguredProviderMarksFailed(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.svc.CreateIntent(context.Background(), e.verified.ID, CreateRequest{
		AmountCents: 100, CurrencyCode: "MDL", Provider: "maib",
	})
	require.ErrorIs(t, err, apperr.ErrUnsupported)

	stored, err := e.store.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestCaptureWithDummy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	intent, _, err := e.svc.CreateIntent(ctx, e.verified.ID, CreateRequest{AmountCents: 100, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)

	captured, err := e.svc.Capture(ctx, e.verified.ID, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, captured.Status)

	_, err = e.svc.Capture(ctx, e.verified.ID, 999)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHandleWebhookAppliesStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	intent, _, err := e.svc.CreateIntent(ctx, e.verified.ID, CreateRequest{AmountCents: 2500, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)

	ev, err := e.webhook(t, "dummy", fmt.Sprintf(`{"providerRef":%q,"status":"paid","amountCents":2500,"currencyCode":"mdl"}`, intent.ProviderRef))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, ev.Status)

	stored, err := e.store.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)
}

func TestHandleWebhookRejectsMismatches(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	intent, _, err := e.svc.CreateIntent(ctx, e.verified.ID, CreateRequest{AmountCents: 2500, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)

	_, err = e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":"PAID","amountCents":1}`, intent.ProviderRef))
	require.ErrorIs(t, err, ErrWebhookAmount)

	_, err = e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":"PAID","currencyCode":"EUR"}`, intent.ProviderRef))
	require.ErrorIs(t, err, ErrWebhookCurrency)

	_, err = e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":"refunded"}`, intent.ProviderRef))
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = e.webhook(t, "DUMMY", `{"providerRef":"DUMMY-unknown","status":"PAID"}`)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// A reference issued by one provider is not resolvable through another.
	_, err = e.webhook(t, "MAIB", fmt.Sprintf(`{"providerRef":%q,"status":"PAID"}`, intent.ProviderRef))
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.webhook(t, "paypal", `{"providerRef":"x","status":"PAID"}`)
	require.ErrorIs(t, err, apperr.ErrUnsupported)

	stored, err := e.store.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestSettledIntentKeepsItsStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	intent, _, err := e.svc.CreateIntent(ctx, e.verified.ID, CreateRequest{AmountCents: 2500, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)
	_, err = e.svc.Capture(ctx, e.verified.ID, intent.ID)
	require.NoError(t, err)

	for _, status := range []string{"pending", "failed"} {
		_, err = e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":%q}`, intent.ProviderRef, status))
		require.ErrorIs(t, err, ErrIntentSettled, status)
		require.ErrorIs(t, err, apperr.ErrBadRequest, status)
	}

	// Repeating the settled status is accepted without a change.
	ev, err := e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":"paid"}`, intent.ProviderRef))
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, ev.Status)

	stored, err := e.store.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, stored.Status)
}

func TestCaptureOfFailedIntentIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	intent, _, err := e.svc.CreateIntent(ctx, e.verified.ID, CreateRequest{AmountCents: 700, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)
	_, err = e.webhook(t, "DUMMY", fmt.Sprintf(`{"providerRef":%q,"status":"failed"}`, intent.ProviderRef))
	require.NoError(t, err)

	_, err = e.svc.Capture(ctx, e.verified.ID, intent.ID)
	require.ErrorIs(t, err, ErrIntentSettled)

	stored, err := e.store.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestMemoryStoreSaveRejectsSettledIntent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	in := &Intent{TableID: "T1", AmountCents: 100, CurrencyCode: "MDL", Provider: DummyCode, Status: StatusPending}
	require.NoError(t, store.Create(ctx, in))

	stale := *in
	in.Status = StatusPaid
	require.NoError(t, store.Save(ctx, in))
	stale.Status = StatusFailed
	require.ErrorIs(t, store.Save(ctx, &stale), ErrIntentSettled)

	got, err := store.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestHandlerIntentLifecycle(t *testing.T) {
	e := newEnv(t)
	router := NewHandler(e.svc, e.tokens, testutil.DiscardLogger()).Routes()
	token, err := e.tokens.Issue(e.verified)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/intents", strings.NewReader(`{"amountCents":990,"currencyCode":"MDL","provider":"dummy"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created createResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Contains(t, created.RedirectURL, "/pay/T1/")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/intents/%d/capture", created.Intent.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"PAID"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/intents", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlerWebhook(t *testing.T) {
	e := newEnv(t)
	router := NewHandler(e.svc, e.tokens, testutil.DiscardLogger()).Routes()
	intent, _, err := e.svc.CreateIntent(context.Background(), e.verified.ID, CreateRequest{AmountCents: 100, CurrencyCode: "MDL", Provider: "DUMMY"})
	require.NoError(t, err)

	body := fmt.Sprintf(`{"providerRef":%q,"status":"failed"}`, intent.ProviderRef)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/dummy", strings.NewReader(body))
	req.Header.Set("x-signature", Sign(testSecret, []byte(body)))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"FAILED"`)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/dummy", strings.NewReader(body))
	req.Header.Set("x-signature", strings.Repeat("0", 64))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid signature")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/maib", strings.NewReader(strings.Repeat("a", 2<<20)))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
