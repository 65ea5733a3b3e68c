package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/servetable/servetable/internal/apperr"
	"github.com/servetable/servetable/internal/guest"
	"github.com/servetable/servetable/internal/sms"
)

// Deliverer sends a text to a phone. Delivery errors are the deliverer's
// concern; the engine never sees them.
type Deliverer interface {
	Deliver(ctx context.Context, phone, body string)
}

// Config holds engine tunables.
type Config struct {
	CodeLength       int
	TTL              time.Duration
	MaxAttempts      int
	ResendCooldown   time.Duration
	DevEcho          bool
	AllowedCountries []string
	DefaultRegion    string
	HashCost         int
}

// SendResult is returned by SendOTP. DevCode is set only with DevEcho.
type SendResult struct {
	ChallengeID int64  `json:"challengeId"`
	TTLSeconds  int    `json:"ttlSeconds"`
	DevCode     string `json:"devCode,omitempty"`
}

// Engine issues and verifies OTP challenges for guest sessions.
type Engine struct {
	cfg        Config
	sessions   guest.Store
	challenges ChallengeStore
	delivery   Deliverer
	logger     *slog.Logger
	now        func() time.Time
	random     func(limit *big.Int) (*big.Int, error)
}

// NewEngine creates an engine. Zero CodeLength, MaxAttempts or HashCost fall
// back to 4, 3 and bcrypt.DefaultCost.
func NewEngine(cfg Config, sessions guest.Store, challenges ChallengeStore, delivery Deliverer, logger *slog.Logger) *Engine {
	if cfg.CodeLength == 0 {
		cfg.CodeLength = 4
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		sessions:   sessions,
		challenges: challenges,
		delivery:   delivery,
		logger:     logger,
		now:        time.Now,
		random: func(limit *big.Int) (*big.Int, error) {
			return rand.Int(rand.Reader, limit)
		},
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SendOTP creates a challenge for sessionID and delivers its code to phone.
func (e *Engine) SendOTP(ctx context.Context, sessionID, phone, lang string) (*SendResult, error) {
	now := e.now()
	if _, err := guest.Require(ctx, e.sessions, sessionID, now); err != nil {
		return nil, err
	}

	phoneE164, err := sms.NormalizePhone(phone, e.cfg.DefaultRegion)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if !sms.IsAllowedCountry(phoneE164, e.cfg.AllowedCountries) {
		return nil, ErrCountryNotAllowed
	}

	// Cheap pre-check before hashing; Create repeats it under the session lock.
	cooldown := e.cooldownCheck(now)
	latest, err := e.challenges.FindLatestByStatus(ctx, sessionID, StatusSent)
	if err != nil {
		return nil, fmt.Errorf("loading latest challenge: %w", err)
	}
	if err := cooldown(latest); err != nil {
		return nil, err
	}

	code, err := e.generateCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), e.cfg.HashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing otp: %w", err)
	}

	c := &Challenge{
		GuestSessionID: sessionID,
		PhoneE164:      phoneE164,
		OTPHash:        string(hash),
		ExpiresAt:      now.Add(e.cfg.TTL),
		AttemptsLeft:   e.cfg.MaxAttempts,
		Status:         StatusSent,
		CreatedAt:      now,
	}
	if err := e.challenges.Create(ctx, c, cooldown); err != nil {
		if errors.Is(err, ErrResendCooldown) {
			return nil, err
		}
		return nil, fmt.Errorf("storing challenge: %w", err)
	}

	e.delivery.Deliver(ctx, phoneE164, Message(lang, code, int(e.cfg.TTL/time.Minute)))
	e.logger.Info("otp sent", "session_id", sessionID, "challenge_id", c.ID, "to", sms.MaskPhone(phoneE164))

	res := &SendResult{ChallengeID: c.ID, TTLSeconds: int(e.cfg.TTL / time.Second)}
	if e.cfg.DevEcho {
		res.DevCode = code
	}
	return res, nil
}

// cooldownCheck rejects a send while the newest unexpired SENT challenge is
// younger than the resend cooldown.
func (e *Engine) cooldownCheck(now time.Time) CreateCheck {
	return func(latest *Challenge) error {
		if latest == nil || latest.Expired(now) {
			return nil
		}
		if elapsed := now.Sub(latest.CreatedAt); elapsed < e.cfg.ResendCooldown {
			return &apperr.RetryAfterError{Err: ErrResendCooldown, Wait: e.cfg.ResendCooldown - elapsed}
		}
		return nil
	}
}

// VerifyOTP checks code against challengeID and, on success, marks the
// session verified with the challenge's phone. The challenge is locked for
// the whole check so concurrent attempts consume the budget one at a time.
func (e *Engine) VerifyOTP(ctx context.Context, sessionID string, challengeID int64, code string) error {
	now := e.now()
	sess, err := guest.Require(ctx, e.sessions, sessionID, now)
	if err != nil {
		return err
	}

	var verifiedPhone string
	err = e.challenges.Update(ctx, challengeID, func(c *Challenge) (bool, error) {
		if c == nil {
			return false, ErrChallengeNotFound
		}
		if c.GuestSessionID != sessionID {
			return false, ErrChallengeMismatch
		}
		switch c.Status {
		case StatusSent:
		case StatusLocked:
			return false, ErrChallengeLocked
		default:
			return false, ErrChallengeInactive
		}
		if c.Expired(now) {
			c.Status = StatusExpired
			return true, ErrChallengeExpired
		}
		if c.AttemptsLeft <= 0 {
			c.Status = StatusLocked
			return true, ErrChallengeLocked
		}
		if bcrypt.CompareHashAndPassword([]byte(c.OTPHash), []byte(code)) != nil {
			c.AttemptsLeft--
			if c.AttemptsLeft == 0 {
				c.Status = StatusLocked
				return true, ErrChallengeLocked
			}
			return true, ErrInvalidCode
		}
		c.Status = StatusVerified
		verifiedPhone = c.PhoneE164
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrChallengeLocked) {
			e.logger.Warn("otp challenge locked", "session_id", sessionID, "challenge_id", challengeID)
		}
		return err
	}

	sess.MarkVerified(verifiedPhone)
	if err := e.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("saving verified session: %w", err)
	}
	e.logger.Info("guest phone verified", "session_id", sessionID, "challenge_id", challengeID)
	return nil
}

// generateCode returns a uniformly random decimal code, zero-padded to the
// configured length.
func (e *Engine) generateCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.cfg.CodeLength)), nil)
	n, err := e.random(limit)
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	return fmt.Sprintf("%0*d", e.cfg.CodeLength, n), nil
}
