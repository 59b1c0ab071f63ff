package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/inving/dispatch/internal/auth"
)

type stubTokens struct {
	token auth.AccessToken
	err   error
}

func (s *stubTokens) LookupToken(context.Context, string) (auth.AccessToken, error) {
	return s.token, s.err
}

func authedHandler(t *testing.T, gotUserID *uuid.UUID) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Fatal("expected user id in context")
		}
		*gotUserID = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthPassesValidToken(t *testing.T) {
	userID := uuid.New()
	expires := time.Now().Add(time.Hour)
	tokens := &stubTokens{token: auth.AccessToken{AccessToken: "tok", UserID: userID, ExpiresAt: &expires}}

	var gotUserID uuid.UUID
	handler := BearerAuth(tokens)(authedHandler(t, &gotUserID))

	req := httptest.NewRequest(http.MethodGet, "/merchant", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, gotUserID)
}

func TestBearerAuthRejects(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	tests := []struct {
		name   string
		header string
		tokens *stubTokens
	}{
		{"missing header", "", &stubTokens{}},
		{"not bearer", "Basic dXNlcjpwYXNz", &stubTokens{}},
		{"unknown token", "Bearer nope", &stubTokens{err: auth.ErrTokenNotFound}},
		{"expired token", "Bearer old", &stubTokens{token: auth.AccessToken{ExpiresAt: &expired}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuth(tt.tokens)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/merchant", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", rec.Body.String())
		})
	}
}
