package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type stubPresence struct {
	online map[string]bool
}

func (s *stubPresence) IsOnline(ctx context.Context, userID string) bool {
	return s.online[userID]
}

func TestGetUserOnline(t *testing.T) {
	InitPresenceHandlers(&stubPresence{online: map[string]bool{"user-1": true}})

	r := chi.NewRouter()
	r.Get("/api/users/{userID}/online", GetUserOnline)

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1/online", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"userId":"user-1","online":true}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/users/user-2/online", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"userId":"user-2","online":false}`, rec.Body.String())
}
