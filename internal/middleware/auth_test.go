package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubVerifier struct {
	ids map[string]string
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (string, error) {
	if id, ok := v.ids[token]; ok {
		return id, nil
	}
	return "", fmt.Errorf("invalid token")
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc123", ExtractBearerToken("Bearer abc123"))
	assert.Equal(t, "abc123", ExtractBearerToken("bearer abc123"))
	assert.Equal(t, "abc123", ExtractBearerToken("  Bearer abc123  "))

	assert.Empty(t, ExtractBearerToken(""))
	assert.Empty(t, ExtractBearerToken("abc123"))
	assert.Empty(t, ExtractBearerToken("Basic abc123"))
	assert.Empty(t, ExtractBearerToken("Bearer"))
}

func TestRequireAuthPassesValidToken(t *testing.T) {
	verifier := &stubVerifier{ids: map[string]string{"good": "user-1"}}

	var gotUserID string
	handler := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	verifier := &stubVerifier{ids: map[string]string{}}

	called := false
	handler := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.JSONEq(t, `{"success":false,"message":"missing bearer token"}`, rec.Body.String())
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	verifier := &stubVerifier{ids: map[string]string{"good": "user-1"}}

	called := false
	handler := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer expired-or-revoked")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.JSONEq(t, `{"success":false,"message":"invalid or revoked token"}`, rec.Body.String())
}

func TestUserIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, UserIDFrom(context.Background()))
}
