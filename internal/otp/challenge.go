// Package otp issues and verifies one-time passcodes that bind a phone
// number to a guest session.
package otp

import (
	"context"
	"time"

	"github.com/servetable/servetable/internal/apperr"
)

// Status is the lifecycle state of a challenge. SENT is the only
// non-terminal state.
type Status string

const (
	StatusSent     Status = "SENT"
	StatusVerified Status = "VERIFIED"
	StatusExpired  Status = "EXPIRED"
	StatusLocked   Status = "LOCKED"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s != StatusSent
}

var (
	ErrChallengeNotFound = apperr.New(apperr.ErrNotFound, "otp challenge not found")
	ErrChallengeMismatch = apperr.New(apperr.ErrForbidden, "otp challenge belongs to another session")
	ErrChallengeInactive = apperr.New(apperr.ErrBadRequest, "otp challenge is no longer active")
	ErrChallengeExpired  = apperr.New(apperr.ErrGone, "otp expired")
	ErrChallengeLocked   = apperr.New(apperr.ErrRateLimited, "too many attempts, otp locked")
	ErrInvalidCode       = apperr.New(apperr.ErrBadRequest, "Invalid OTP")
	ErrResendCooldown    = apperr.New(apperr.ErrRateLimited, "otp was sent recently, try again later")
	ErrInvalidPhone      = apperr.New(apperr.ErrBadRequest, "invalid phone number")
	ErrCountryNotAllowed = apperr.New(apperr.ErrBadRequest, "phone number country is not supported")
)

// Challenge is a single OTP issuance.
type Challenge struct {
	ID             int64
	GuestSessionID string
	PhoneE164      string
	OTPHash        string
	ExpiresAt      time.Time
	AttemptsLeft   int
	Status         Status
	CreatedAt      time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// UpdateFunc inspects and optionally mutates a locked challenge. c is nil when
// no challenge has the requested id. Returning save=true persists c before
// the lock is released, even when err is non-nil.
type UpdateFunc func(c *Challenge) (save bool, err error)

// CreateCheck inspects the newest SENT challenge of a session (nil when there
// is none) before a new one is stored. A non-nil error aborts the insert.
type CreateCheck func(latest *Challenge) error

// ChallengeStore persists challenges.
type ChallengeStore interface {
	// Create assigns c.ID and stores c. Creates for the same session are
	// serialized, and check runs inside that critical section when non-nil.
	Create(ctx context.Context, c *Challenge, check CreateCheck) error
	// FindByID returns nil, nil when no challenge has the id.
	FindByID(ctx context.Context, id int64) (*Challenge, error)
	// FindLatestByStatus returns the newest challenge of sessionID in status,
	// or nil, nil.
	FindLatestByStatus(ctx context.Context, sessionID string, status Status) (*Challenge, error)
	Save(ctx context.Context, c *Challenge) error
	// Update runs fn while holding an exclusive lock on challenge id so that
	// concurrent verifications observe each other's writes.
	Update(ctx context.Context, id int64, fn UpdateFunc) error
}
