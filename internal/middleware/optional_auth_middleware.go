package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"

	"github.com/poofware/verification-service/internal/utils"
)

// OptionalAuthMiddleware validates a bearer token when one is present and
// stores its subject under ContextKeyUserID. Requests without a token, or
// with one that fails validation, pass through unauthenticated.
func OptionalAuthMiddleware(pub *rsa.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			tok, vErr := ValidateToken(tokenStr, pub)
			if vErr != nil {
				// Platform anon keys and other issuers' tokens land here.
				utils.Logger.WithError(vErr).Debug("Ignoring bearer token that is not a valid access token")
				next.ServeHTTP(w, r)
				return
			}

			sub, _ := tok.Claims.GetSubject()
			ctx := context.WithValue(r.Context(), ContextKeyUserID, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated account id, if any.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyUserID).(string)
	return id
}
