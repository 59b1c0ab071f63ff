package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inving/dispatch/internal/api/respond"
	"github.com/inving/dispatch/internal/auth"
)

type contextKey string

const userIDKey contextKey = "userID"

// tokenLookup resolves an opaque bearer token.
type tokenLookup interface {
	LookupToken(ctx context.Context, token string) (auth.AccessToken, error)
}

// BearerAuth validates the Authorization header against the token store and
// injects the authenticated user id into the request context.
func BearerAuth(tokens tokenLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respond.Unauthorized(w)
				return
			}

			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respond.Unauthorized(w)
				return
			}

			token, err := tokens.LookupToken(r.Context(), parts[1])
			if err != nil {
				respond.Unauthorized(w)
				return
			}
			if token.IsExpired(time.Now()) {
				respond.Unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, token.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
