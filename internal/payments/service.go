package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/servetable/servetable/internal/apperr"
	"github.com/servetable/servetable/internal/guest"
)

var (
	ErrIntentNotFound   = apperr.New(apperr.ErrNotFound, "payment intent not found")
	ErrInvalidAmount    = apperr.New(apperr.ErrInvalidArgument, "amountCents must be positive")
	ErrInvalidCurrency  = apperr.New(apperr.ErrInvalidArgument, "currencyCode must be a 3-letter ISO 4217 code")
	ErrTableMismatch    = apperr.New(apperr.ErrForbidden, "intent belongs to another table")
	ErrWebhookAmount    = apperr.New(apperr.ErrInvalidArgument, "webhook amount does not match intent")
	ErrWebhookCurrency  = apperr.New(apperr.ErrInvalidArgument, "webhook currency does not match intent")
	ErrUnknownStatus    = apperr.New(apperr.ErrInvalidArgument, "status is not a known payment status")
	ErrIntentSettled    = apperr.New(apperr.ErrBadRequest, "payment intent is already settled")
	ErrUnknownReference = apperr.New(apperr.ErrNotFound, "no payment intent for provider reference")
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// CreateRequest describes a new intent. An empty TableID means the
// session's table.
type CreateRequest struct {
	TableID      string `json:"tableId"`
	AmountCents  int64  `json:"amountCents"`
	CurrencyCode string `json:"currencyCode"`
	Provider     string `json:"provider"`
}

// Service creates and settles payment intents through registered providers.
type Service struct {
	registry *Registry
	store    Store
	sessions guest.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a payment service.
func NewService(registry *Registry, store Store, sessions guest.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, store: store, sessions: sessions, logger: logger, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateIntent registers an intent with the requested provider on behalf of
// a verified guest session.
func (s *Service) CreateIntent(ctx context.Context, sessionID string, req CreateRequest) (*Intent, *CreateResult, error) {
	sess, err := s.verifiedSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if req.TableID != "" && req.TableID != sess.TableID {
		return nil, nil, ErrTableMismatch
	}
	if req.AmountCents <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if !currencyRe.MatchString(currency) {
		return nil, nil, ErrInvalidCurrency
	}
	provider, ok := s.registry.Lookup(req.Provider)
	if !ok {
		return nil, nil, ErrUnsupportedProvider
	}

	now := s.now().UTC()
	intent := &Intent{
		TableID:      sess.TableID,
		AmountCents:  req.AmountCents,
		CurrencyCode: currency,
		Provider:     strings.ToUpper(provider.Code()),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, intent); err != nil {
		return nil, nil, fmt.Errorf("creating payment intent: %w", err)
	}

	res, err := provider.Create(ctx, intent)
	if err != nil {
		intent.Status = StatusFailed
		intent.UpdatedAt = s.now().UTC()
		if serr := s.store.Save(ctx, intent); serr != nil {
			s.logger.Error("marking payment intent failed", "intent_id", intent.ID, "error", serr)
		}
		return nil, nil, fmt.Errorf("provider %s create: %w", intent.Provider, err)
	}

	status := strings.ToUpper(res.Status)
	if !knownStatus(status) {
		return nil, nil, fmt.Errorf("provider %s create returned %q: %w", intent.Provider, res.Status, ErrUnknownStatus)
	}
	intent.ProviderRef = res.ProviderRef
	intent.Status = status
	intent.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, intent); err != nil {
		return nil, nil, err
	}
	s.logger.Info("payment intent created", "intent_id", intent.ID, "provider", intent.Provider,
		"table_id", intent.TableID, "amount_cents", intent.AmountCents, "currency", intent.CurrencyCode)
	return intent, res, nil
}

// Capture asks the intent's provider to collect the funds.
func (s *Service) Capture(ctx context.Context, sessionID string, id int64) (*Intent, error) {
	sess, err := s.verifiedSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	intent, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading payment intent: %w", err)
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	if intent.TableID != sess.TableID {
		return nil, ErrTableMismatch
	}
	provider, ok := s.registry.Lookup(intent.Provider)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	res, err := provider.Capture(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("provider %s capture: %w", intent.Provider, err)
	}
	if err := s.applyStatus(ctx, intent, res.Status); err != nil {
		return nil, err
	}
	return intent, nil
}

// HandleWebhook authenticates a callback for providerCode and applies the
// reported status to the matching intent.
func (s *Service) HandleWebhook(ctx context.Context, providerCode string, body []byte, headers http.Header) (*WebhookEvent, error) {
	provider, ok := s.registry.Lookup(providerCode)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	code := strings.ToUpper(provider.Code())
	ev, err := provider.HandleWebhook(ctx, body, headers)
	if err != nil {
		s.logger.Warn("webhook rejected", "provider", code, "error", err)
		return nil, err
	}

	intent, err := s.store.FindByProviderRef(ctx, code, ev.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("loading payment intent: %w", err)
	}
	if intent == nil {
		return nil, ErrUnknownReference
	}
	if ev.AmountCents != nil && *ev.AmountCents != intent.AmountCents {
		return nil, ErrWebhookAmount
	}
	if ev.CurrencyCode != nil && !strings.EqualFold(*ev.CurrencyCode, intent.CurrencyCode) {
		return nil, ErrWebhookCurrency
	}
	if err := s.applyStatus(ctx, intent, ev.Status); err != nil {
		return nil, err
	}
	return ev, nil
}

// applyStatus moves a PENDING intent to status. Repeating the current status
// is a no-op; any other change to a settled intent fails with
// ErrIntentSettled.
func (s *Service) applyStatus(ctx context.Context, intent *Intent, status string) error {
	status = strings.ToUpper(status)
	if !knownStatus(status) {
		return ErrUnknownStatus
	}
	if intent.Status == status {
		return nil
	}
	if intent.Status != StatusPending {
		s.logger.Warn("ignoring status change of settled payment intent", "intent_id", intent.ID,
			"provider", intent.Provider, "status", intent.Status, "reported", status)
		return ErrIntentSettled
	}
	prev := intent.Status
	intent.Status = status
	intent.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, intent); err != nil {
		if errors.Is(err, ErrIntentSettled) {
			s.logger.Warn("payment intent settled concurrently", "intent_id", intent.ID, "reported", status)
		}
		return err
	}
	s.logger.Info("payment intent status changed", "intent_id", intent.ID, "provider", intent.Provider,
		"from", prev, "to", status)
	return nil
}

func (s *Service) verifiedSession(ctx context.Context, sessionID string) (*guest.Session, error) {
	sess, err := guest.Require(ctx, s.sessions, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	if !sess.IsVerified {
		return nil, guest.ErrNotVerified
	}
	return sess, nil
}
