package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
	"github.com/zackyviriot/study-buddy-backend/internal/services"
)

var messageStore *services.MessageStore

// InitMessageHandlers wires the message handlers to the store. Called once
// from main.
func InitMessageHandlers(store *services.MessageStore) {
	messageStore = store
}

// GetMessages returns the recent window for a room, newest-first. This is
// the cold-start/reconnect read path: clients reconstruct room history here
// independently of websocket delivery.
//
// GET /api/messages?roomId=&roomType=
func GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	roomType := r.URL.Query().Get("roomType")

	if roomID == "" {
		writeError(w, http.StatusBadRequest, "roomId is required")
		return
	}
	if !models.ValidRoomType(roomType) {
		writeError(w, http.StatusBadRequest, `roomType must be either "team" or "study-group"`)
		return
	}

	msgs, err := messageStore.Recent(r.Context(), roomType, roomID, services.DefaultRecentLimit)
	if err != nil {
		log.Printf("message history failed for %s:%s: %v", roomType, roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// EditMessageRequest is the edit payload.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage replaces a message's content and flags it edited.
//
// PATCH /api/messages/{messageID}
func EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := messageStore.Edit(r.Context(), messageID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrNotFound):
			writeError(w, http.StatusNotFound, "Message not found")
		default:
			log.Printf("message edit failed for %s: %v", messageID, err)
			writeError(w, http.StatusInternalServerError, "Failed to edit message")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": updated})
}
