package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "studybuddy"

// TokenRevocations reports whether a token has been explicitly invalidated
// (e.g. by logout) for the user it was issued to. Implemented by UserService
// against the blacklisted_tokens array on the user document.
type TokenRevocations interface {
	IsTokenRevoked(ctx context.Context, userID, token string) (bool, error)
}

// TokenService issues and verifies bearer tokens. Verification checks both
// the HMAC signature and the owning user's revocation list, so a structurally
// valid token can still be rejected after logout.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	revocations TokenRevocations
}

func NewTokenService(secret string, ttl time.Duration, revocations TokenRevocations) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret:      []byte(secret),
		ttl:         ttl,
		revocations: revocations,
	}
}

// Issue signs a token for the given user ID.
func (t *TokenService) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify validates a token and returns the authenticated user ID. It fails
// with ErrAuthentication when the token is malformed, carries a bad
// signature, is expired, or appears on the owner's revocation list. No side
// effects: pure function of (token, current revocation state).
func (t *TokenService) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: no token provided", ErrAuthentication)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token missing subject", ErrAuthentication)
	}

	revoked, err := t.revocations.IsTokenRevoked(ctx, claims.Subject, token)
	if err != nil {
		return "", fmt.Errorf("%w: revocation check: %v", ErrAuthentication, err)
	}
	if revoked {
		return "", fmt.Errorf("%w: token revoked", ErrAuthentication)
	}

	return claims.Subject, nil
}
