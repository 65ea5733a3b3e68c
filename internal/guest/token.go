package guest

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "servetable"

var (
	ErrInvalidToken = errors.New("invalid guest token")
	ErrTokenExpired = errors.New("guest token expired")
)

// Claims are carried by a guest bearer token. The subject is the session id.
type Claims struct {
	jwt.RegisteredClaims
	TableID string `json:"tbl"`
}

// Tokens signs and verifies guest bearer tokens with HS256.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens creates a token signer. secret must be at least 32 bytes in production.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue returns a token for s that expires together with the session.
func (t *Tokens) Issue(s *Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		TableID: s.TableID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing guest token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns its claims. An expired token yields
// ErrTokenExpired so callers can answer 410 rather than 401.
func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
