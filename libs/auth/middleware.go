package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type ctxKey int

const ctxKeyClaims ctxKey = iota

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*Claims)
	return c, ok && c != nil
}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// RequireAuth verifies the bearer token and, when roles is non-empty, the
// caller's role.
func RequireAuth(secret string, roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			claims, err := ParseAndVerifyHS256(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), secret, time.Now())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if len(roles) > 0 && !hasRole(claims.Role, roles) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		}
	}
}

func hasRole(role string, allowed []string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
