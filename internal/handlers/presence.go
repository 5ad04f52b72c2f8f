package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PresenceReader reports whether a user currently has live presence.
// Implemented by services.PresenceService.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) bool
}

var presenceService PresenceReader

// InitPresenceHandlers wires the presence handlers. Called once from main.
func InitPresenceHandlers(p PresenceReader) {
	presenceService = p
}

// GetUserOnline reports whether a user has an active presence entry. Clients
// poll this for member lists; realtime accuracy is bounded by the presence
// TTL.
//
// GET /api/users/{userID}/online
func GetUserOnline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	online := presenceService.IsOnline(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"userId":  userID,
		"online":  online,
	})
}
