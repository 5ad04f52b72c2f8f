package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/zackyviriot/study-buddy-backend/internal/config"
	"github.com/zackyviriot/study-buddy-backend/internal/database"
	"github.com/zackyviriot/study-buddy-backend/internal/handlers"
	"github.com/zackyviriot/study-buddy-backend/internal/middleware"
	"github.com/zackyviriot/study-buddy-backend/internal/routes"
	"github.com/zackyviriot/study-buddy-backend/internal/services"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to MongoDB (system of record)
	log.Printf("Connecting to MongoDB...")
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	// Connect to Redis (presence, rate limiting, recent cache). Optional:
	// everything that uses it degrades gracefully when it is down.
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Printf("⚠️  WARNING: Redis unavailable: %v", err)
		log.Println("   Presence, rate limiting, and the recent-message cache are disabled")
	} else {
		defer database.DisconnectRedis()
	}

	// Wire services
	userService := services.NewUserService(database.DB)
	tokenService := services.NewTokenService(cfg.JWTSecret, 24*time.Hour, userService)
	recentCache := services.NewRecentCache(database.RedisClient)
	messageStore := services.NewMessageStore(database.DB, userService, recentCache)
	presence := services.NewPresenceService(database.RedisClient)
	hub := services.NewChatHub()
	gateway := services.NewChatGateway(hub, messageStore, tokenService, presence)

	// Ensure MongoDB indexes
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := userService.EnsureUserIndexes(ctx); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure user indexes: %v", err)
	}
	if err := messageStore.EnsureMessageIndexes(ctx); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure message indexes: %v", err)
	} else {
		log.Println("✅ MongoDB indexes ensured")
	}
	cancel()

	// Initialize Cloudinary for attachment uploads
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		if err := handlers.InitCloudinaryService(cfg); err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Attachment uploads will not be available")
		} else {
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Attachment uploads will not be available")
	}

	handlers.InitAuthHandlers(userService, tokenService)
	handlers.InitMessageHandlers(messageStore)
	handlers.InitChatGateway(gateway)
	handlers.InitPresenceHandlers(presence)

	// Setup router
	r := chi.NewRouter()

	// Custom CORS: set headers and respond to OPTIONS with 200 so preflight never gets 403
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		r.Use(middleware.SecurityHeaders)
	}
	r.Use(middleware.RateLimitMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r, tokenService)

	log.Println("📋 Registered routes:")
	log.Println("  GET   /health")
	log.Println("  POST  /api/auth/signup")
	log.Println("  POST  /api/auth/signin")
	log.Println("  POST  /api/auth/logout")
	log.Println("  GET   /api/auth/me")
	log.Println("  GET   /api/messages")
	log.Println("  PATCH /api/messages/{messageID}")
	log.Println("  POST  /api/upload")
	log.Println("  GET   /api/users/{userID}/online")
	log.Println("  GET   /ws")

	log.Printf("🚀 StudyBuddy backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
