package guest

import (
	"context"
	"errors"
	"net/http"

	"github.com/servetable/servetable/internal/httputil"
)

type ctxKey struct{}

// RequireToken returns middleware that rejects requests without a valid guest
// bearer token and stores the token's claims in the request context.
func RequireToken(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := httputil.ExtractBearerToken(r)
			if !ok {
				httputil.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					httputil.WriteError(w, http.StatusGone, ErrSessionExpired.Error())
					return
				}
				httputil.WriteError(w, http.StatusUnauthorized, "invalid guest token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the guest claims stored by RequireToken.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

// SessionID returns the session id of the authenticated guest, or "".
func SessionID(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
