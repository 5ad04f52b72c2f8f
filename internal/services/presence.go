package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:user:"
	// PresenceTTL is refreshed by client pings; absence of pings marks the
	// user offline via expiry, so a dropped connection needs no cleanup.
	PresenceTTL = 90 * time.Second
)

// PresenceService tracks online users in Redis with TTL-based expiry.
type PresenceService struct {
	client *redis.Client
}

func NewPresenceService(client *redis.Client) *PresenceService {
	return &PresenceService{client: client}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

// SetOnline marks the user online, refreshing the TTL.
func (p *PresenceService) SetOnline(ctx context.Context, userID string) {
	if p.client == nil {
		return
	}
	_ = p.client.Set(ctx, presenceKey(userID), "online", PresenceTTL).Err()
}

// SetOffline removes the presence key immediately (clean disconnect).
func (p *PresenceService) SetOffline(ctx context.Context, userID string) {
	if p.client == nil {
		return
	}
	_ = p.client.Del(ctx, presenceKey(userID)).Err()
}

// IsOnline reports whether the user has an unexpired presence key.
func (p *PresenceService) IsOnline(ctx context.Context, userID string) bool {
	if p.client == nil {
		return false
	}
	n, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	return err == nil && n > 0
}
