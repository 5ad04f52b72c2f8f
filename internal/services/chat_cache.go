package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

const (
	recentKeyPrefix = "chat:room:"
	recentKeySuffix = ":recent"
	recentMaxLen    = DefaultRecentLimit
	recentTTL       = 1 * time.Hour
)

// RecentCache keeps the newest messages of a room in a Redis list (newest at
// head) in front of the Mongo recent query. Best effort: every operation
// tolerates Redis being down.
type RecentCache struct {
	client *redis.Client
}

func NewRecentCache(client *redis.Client) *RecentCache {
	return &RecentCache{client: client}
}

func recentKey(key models.RoomKey) string {
	return recentKeyPrefix + string(key) + recentKeySuffix
}

// Push adds a freshly appended message at the head of an existing window and
// trims to the window size. LPushX keeps an absent or expired key absent: the
// window is only ever (re)created by Warm from a full store read, so a cache
// hit never holds fewer messages than the store's recent window.
func (c *RecentCache) Push(key models.RoomKey, msg *models.StoredMessage) {
	if c.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	k := recentKey(key)
	pipe := c.client.Pipeline()
	pipe.LPushX(ctx, k, data)
	pipe.LTrim(ctx, k, 0, recentMaxLen-1)
	pipe.Expire(ctx, k, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("recent cache: push failed for room %s: %v", key, err)
	}
}

// Get returns the cached window newest-first. (nil, false) on miss.
func (c *RecentCache) Get(ctx context.Context, key models.RoomKey) ([]models.StoredMessage, bool) {
	if c.client == nil {
		return nil, false
	}

	raw, err := c.client.LRange(ctx, recentKey(key), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	msgs := make([]models.StoredMessage, 0, len(raw))
	for _, item := range raw {
		var m models.StoredMessage
		if json.Unmarshal([]byte(item), &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, len(msgs) > 0
}

// Warm replaces the cached window with a Mongo fetch result (newest-first).
func (c *RecentCache) Warm(ctx context.Context, key models.RoomKey, msgs []models.StoredMessage) {
	if c.client == nil || len(msgs) == 0 {
		return
	}

	k := recentKey(key)
	pipe := c.client.Pipeline()
	pipe.Del(ctx, k)
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		pipe.LPush(ctx, k, data)
	}
	pipe.LTrim(ctx, k, 0, recentMaxLen-1)
	pipe.Expire(ctx, k, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("recent cache: warm failed for room %s: %v", key, err)
	}
}

// Invalidate drops the cached window (e.g. after an edit).
func (c *RecentCache) Invalidate(ctx context.Context, key models.RoomKey) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, recentKey(key)).Err(); err != nil {
		log.Printf("recent cache: invalidate failed for room %s: %v", key, err)
	}
}
