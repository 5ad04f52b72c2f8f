package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/zackyviriot/study-buddy-backend/internal/handlers"
	"github.com/zackyviriot/study-buddy-backend/internal/middleware"
)

func SetupRoutes(r *chi.Mux, tokens middleware.TokenVerifier) {
	// Auth routes
	r.Post("/api/auth/signup", handlers.Signup)
	r.Post("/api/auth/signin", handlers.Signin)

	// Authenticated routes
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireAuth(tokens))

		pr.Post("/api/auth/logout", handlers.Logout)
		pr.Get("/api/auth/me", handlers.GetMe)

		// Room history (recent window, newest-first)
		pr.With(middleware.HistoryRateLimit).Get("/api/messages", handlers.GetMessages)
		pr.Patch("/api/messages/{messageID}", handlers.EditMessage)

		// Attachment uploads
		pr.Post("/api/upload", handlers.UploadAttachment)

		// Presence (TTL-bounded online status)
		pr.Get("/api/users/{userID}/online", handlers.GetUserOnline)
	})

	// WebSocket endpoint for realtime room chat; authenticates after the
	// handshake, inside the gateway
	r.Get("/ws", handlers.ChatWebSocket)
}
