// Package guest manages the anonymous sessions a diner opens by scanning a
// table's QR code. A session starts unverified and becomes verified once the
// guest proves control of a phone number.
package guest

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/servetable/servetable/internal/apperr"
)

var (
	ErrSessionNotFound = apperr.New(apperr.ErrNotFound, "guest session not found")
	ErrSessionExpired  = apperr.New(apperr.ErrGone, "guest session expired")
	ErrInvalidTableID  = apperr.New(apperr.ErrBadRequest, "tableId must be 1-64 letters, digits, '-' or '_'")
	ErrNotVerified     = apperr.New(apperr.ErrForbidden, "phone verification required")
)

var tableIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Session is a guest's visit at one table.
type Session struct {
	ID            string    `json:"id"`
	TableID       string    `json:"tableId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IsVerified    bool      `json:"isVerified"`
	VerifiedPhone *string   `json:"verifiedPhone,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MarkVerified records phone as the session's verified number.
func (s *Session) MarkVerified(phone string) {
	s.IsVerified = true
	s.VerifiedPhone = &phone
}

// Store persists guest sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// FindByID returns nil, nil when no session has the id.
	FindByID(ctx context.Context, id string) (*Session, error)
	// Save persists verification state. A stored verified flag is never cleared.
	Save(ctx context.Context, s *Session) error
}

// Require loads a session that exists and has not expired at now.
func Require(ctx context.Context, store Store, id string, now time.Time) (*Session, error) {
	s, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading guest session: %w", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if s.Expired(now) {
		return nil, ErrSessionExpired
	}
	return s, nil
}

// ValidTableID reports whether id is an acceptable table identifier.
func ValidTableID(id string) bool {
	return tableIDRe.MatchString(id)
}
