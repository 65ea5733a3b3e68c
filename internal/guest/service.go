package guest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service opens and looks up guest sessions.
type Service struct {
	store  Store
	tokens *Tokens
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service issuing sessions that live for ttl.
func NewService(store Store, tokens *Tokens, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, tokens: tokens, ttl: ttl, logger: logger, now: time.Now}
}

// SetClock replaces the time source for the service and its token signer.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.tokens.now = now
}

// Open starts an unverified session at tableID and returns it with its bearer token.
func (s *Service) Open(ctx context.Context, tableID string) (*Session, string, error) {
	if !ValidTableID(tableID) {
		return nil, "", ErrInvalidTableID
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		TableID:   tableID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("creating guest session: %w", err)
	}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("guest session opened", "session_id", sess.ID, "table_id", tableID)
	return sess, token, nil
}

// Get returns the live session with id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return Require(ctx, s.store, id, s.now())
}

// RequireVerified returns the live session with id, failing with
// ErrNotVerified when the guest has not confirmed a phone yet.
func (s *Service) RequireVerified(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsVerified {
		return nil, ErrNotVerified
	}
	return sess, nil
}

// Tokens returns the signer used for this service's sessions.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}
