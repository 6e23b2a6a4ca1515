package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionfetch/token"
)

// Verifier checks a bearer token. *token.Issuer satisfies it.
type Verifier interface {
	Parse(raw string) (*token.Claims, error)
}

// SessionChecker reports whether the session behind verified claims is
// still live.
type SessionChecker interface {
	SessionActive(ctx context.Context, sessionID string) (bool, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return c, ok
}

// Guard verifies the bearer token statelessly and stores its claims in the
// request context. Oversized headers are rejected before any parsing.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return guard(v, nil)
}

func guard(v Verifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !token.WellFormed(raw) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !token.Fits(raw, token.DefaultMaxBytes) {
				http.Error(w, "request header too large", http.StatusRequestHeaderFieldsTooLarge)
				return
			}

			claims, err := v.Parse(raw)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if sessions != nil {
				active, err := sessions.SessionActive(r.Context(), claims.SID)
				if err != nil {
					http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
					return
				}
				if !active {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
