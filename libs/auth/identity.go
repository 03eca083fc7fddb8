package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/viewings/libs/httpx"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

// Identity is the caller recorded as createdBy on bookings.
type Identity struct {
	Subject string
	Role    string
	AgentID string
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// WithIdentity verifies an optional bearer token. Requests without a token
// pass through anonymously; a present but invalid token is rejected.
// An empty secret disables verification entirely.
func WithIdentity(secret string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}
			claims, err := ParseAndVerifyHS256(strings.TrimSpace(raw), secret)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			ctx := ContextWithIdentity(r.Context(), Identity{
				Subject: claims.Subject,
				Role:    claims.Role,
				AgentID: claims.AgentID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
