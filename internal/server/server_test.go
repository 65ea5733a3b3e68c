package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/servetable/servetable/internal/config"
	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/otp"
	"github.com/servetable/servetable/internal/payments"
	"github.com/servetable/servetable/internal/server"
	"github.com/servetable/servetable/internal/sms"
	"github.com/servetable/servetable/internal/testutil"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(context.Context) error { return f.err }

const secret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, db server.Pinger) (*server.Server, *sms.CaptureProvider) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.CORSAllowedOrigins = []string{"http://menu.example", "http://staff.example"}
	logger := testutil.DiscardLogger()

	sessions := guest.NewMemoryStore()
	tokens := guest.NewTokens(secret)
	guestSvc := guest.NewService(sessions, tokens, time.Hour, logger)

	capture := &sms.CaptureProvider{}
	engine := otp.NewEngine(otp.Config{
		CodeLength: 4, TTL: 3 * time.Minute, MaxAttempts: 3, ResendCooldown: time.Minute, HashCost: 4,
	}, sessions, otp.NewMemoryStore(), sms.NewChannel("capture", capture, 0, logger), logger)

	reg, err := payments.NewRegistry(payments.NewDummy("http://localhost:8080", "whsec"))
	testutil.NoError(t, err)
	paySvc := payments.NewService(reg, payments.NewMemoryStore(), sessions, logger)

	return server.New(cfg, logger, server.Deps{
		DB:       db,
		Guest:    guest.NewHandler(guestSvc, logger),
		OTP:      otp.NewHandler(engine, tokens, nil, logger),
		Payments: payments.NewHandler(paySvc, tokens, logger),
	}), capture
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, fakeDB{})
	w := do(t, srv.Router(), http.MethodGet, "/health", "", "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"database":"ok"`)

	srv, _ = newTestServer(t, fakeDB{err: errors.New("down")})
	w = do(t, srv.Router(), http.MethodGet, "/health", "", "")
	testutil.StatusCode(t, http.StatusServiceUnavailable, w.Code)
}

func TestGuestVerifyAndPayFlow(t *testing.T) {
	srv, capture := newTestServer(t, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/guest/sessions", "", `{"tableId":"T4"}`)
	testutil.StatusCode(t, http.StatusCreated, w.Code)
	var opened struct {
		Token string `json:"token"`
	}
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))

	w = do(t, h, http.MethodPost, "/api/payments/intents", opened.Token, `{"amountCents":500,"currencyCode":"MDL","provider":"dummy"}`)
	testutil.StatusCode(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, "/api/guest/otp/send", opened.Token, `{"phone":"+37369123456","lang":"en"}`)
	testutil.StatusCode(t, http.StatusOK, w.Code)
	var sent otp.SendResult
	testutil.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	testutil.Equal(t, "", sent.DevCode)

	code := capture.LastCode()
	w = do(t, h, http.MethodPost, "/api/guest/otp/verify", opened.Token,
		`{"challengeId":`+jsonInt(sent.ChallengeID)+`,"code":"`+code+`"}`)
	testutil.StatusCode(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/guest/session", opened.Token, "")
	testutil.StatusCode(t, http.StatusOK, w.Code)
	testutil.Contains(t, w.Body.String(), `"isVerified":true`)

	w = do(t, h, http.MethodPost, "/api/payments/intents", opened.Token, `{"amountCents":500,"currencyCode":"MDL","provider":"dummy"}`)
	testutil.StatusCode(t, http.StatusCreated, w.Code)
	testutil.Contains(t, w.Body.String(), "http://localhost:8080/pay/T4/")
}

func TestWebhookRouteSkipsContentTypeCheck(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/dummy", strings.NewReader(`{"providerRef":"x","status":"PAID"}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Signature", payments.Sign("whsec", []byte(`{"providerRef":"x","status":"PAID"}`)))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	// Authenticated, but no intent carries the reference.
	testutil.StatusCode(t, http.StatusNotFound, w.Code)
}

func TestGuestRoutesRequireJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/guest/sessions", strings.NewReader(`tableId=T1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.StatusCode(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://staff.example")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, "http://staff.example", w.Header().Get("Access-Control-Allow-Origin"))
	testutil.Contains(t, w.Header().Get("Vary"), "Origin")
	testutil.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.Equal(t, "", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/guest/sessions", nil)
	req.Header.Set("Origin", "http://menu.example")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	testutil.StatusCode(t, http.StatusNoContent, w.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Router(), http.MethodGet, "/nope", "", "")
	testutil.StatusCode(t, http.StatusNotFound, w.Code)
	testutil.Contains(t, w.Body.String(), `"message":"not found"`)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
