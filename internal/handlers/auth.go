package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/zackyviriot/study-buddy-backend/internal/middleware"
	"github.com/zackyviriot/study-buddy-backend/internal/models"
	"github.com/zackyviriot/study-buddy-backend/internal/services"
)

var (
	userService  *services.UserService
	tokenService *services.TokenService
)

// InitAuthHandlers wires the auth handlers to their services. Called once
// from main.
func InitAuthHandlers(users *services.UserService, tokens *services.TokenService) {
	userService = users
	tokenService = tokens
}

// SignupRequest is the user registration payload.
type SignupRequest struct {
	Firstname       string `json:"firstname"`
	Lastname        string `json:"lastname"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SigninRequest is the login payload.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the envelope for signup/signin/me.
type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token,omitempty"`
	User    *models.User `json:"user,omitempty"`
}

// Signup registers a new user and returns a signed token.
func Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Firstname == "" || req.Lastname == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Firstname, lastname, email, and password are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	user, err := userService.Create(r.Context(), req.Firstname, req.Lastname, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			writeError(w, http.StatusConflict, "User with this email already exists")
			return
		}
		log.Printf("signup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := tokenService.Issue(user.ID.Hex())
	if err != nil {
		log.Printf("token issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Success: true, Token: token, User: user})
}

// Signin verifies credentials and returns a signed token.
func Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAuthentication) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Printf("signin failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	token, err := tokenService.Issue(user.ID.Hex())
	if err != nil {
		log.Printf("token issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Token: token, User: user})
}

// Logout puts the presented token on the user's revocation list. The token
// stays structurally valid but fails verification from now on.
func Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())
	token := middleware.ExtractBearerToken(r.Header.Get("Authorization"))

	if err := userService.RevokeToken(r.Context(), userID, token); err != nil {
		log.Printf("logout failed for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Logged out"})
}

// GetMe returns the authenticated user's profile.
func GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFrom(r.Context())

	user, err := userService.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, User: user})
}
