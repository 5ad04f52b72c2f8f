package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zackyviriot/study-buddy-backend/internal/models"
)

const (
	messagesCollection = "messages"

	// DefaultRecentLimit is the fixed recent-window size for room history.
	DefaultRecentLimit = 50
)

// SenderResolver resolves sender IDs to display info. Implemented by
// UserService against the users collection.
type SenderResolver interface {
	ResolveSenders(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.SenderInfo, error)
}

// MessageStore is the durable message log, keyed by (roomType, roomId).
// Messages are appended, flagged read, and edited; never deleted.
type MessageStore struct {
	db      *mongo.Database
	senders SenderResolver
	cache   *RecentCache // optional; nil disables caching
}

func NewMessageStore(db *mongo.Database, senders SenderResolver, cache *RecentCache) *MessageStore {
	return &MessageStore{db: db, senders: senders, cache: cache}
}

func (s *MessageStore) col() *mongo.Collection {
	return s.db.Collection(messagesCollection)
}

// EnsureMessageIndexes configures the compound index backing the recent
// query. Called on startup after Mongo has connected.
func (s *MessageStore) EnsureMessageIndexes(ctx context.Context) error {
	_, err := s.col().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "room_type", Value: 1},
			{Key: "room_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_room_created"),
	})
	return err
}

// ValidateMessage checks the message invariants: non-empty content, known
// room type, non-empty room ID, and a set sender.
func ValidateMessage(msg *models.Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if !models.ValidRoomType(msg.RoomType) {
		return fmt.Errorf("%w: roomType must be either %q or %q", ErrValidation, models.RoomTypeTeam, models.RoomTypeStudyGroup)
	}
	if strings.TrimSpace(msg.RoomID) == "" {
		return fmt.Errorf("%w: roomId must not be empty", ErrValidation)
	}
	if msg.SenderID.IsZero() {
		return fmt.Errorf("%w: invalid senderId", ErrValidation)
	}
	return nil
}

// Append validates and persists a message, assigning its ID and timestamps,
// and returns the stored form enriched with sender display attributes.
// Nothing is written when validation fails, and a persistence failure leaves
// no partial state, so the identical call may be retried.
func (s *MessageStore) Append(ctx context.Context, msg *models.Message) (*models.StoredMessage, error) {
	if err := ValidateMessage(msg); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg.ID = primitive.NewObjectID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.IsEdited = false
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}

	if _, err := s.col().InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	stored := &models.StoredMessage{Message: *msg}
	senders, err := s.senders.ResolveSenders(ctx, []primitive.ObjectID{msg.SenderID})
	if err == nil {
		stored.Sender = senders[msg.SenderID]
	} else {
		// The message is durable; enrichment failure only loses display
		// attributes for this delivery.
		stored.Sender = models.SenderInfo{ID: msg.SenderID}
	}

	if s.cache != nil {
		s.cache.Push(models.MakeRoomKey(msg.RoomType, msg.RoomID), stored)
	}
	return stored, nil
}

// Recent returns up to limit messages for a room, newest-first, each
// enriched with sender display attributes. No side effects beyond warming
// the recent cache; safe to call repeatedly.
func (s *MessageStore) Recent(ctx context.Context, roomType, roomID string, limit int64) ([]models.StoredMessage, error) {
	if !models.ValidRoomType(roomType) {
		return nil, fmt.Errorf("%w: roomType must be either %q or %q", ErrValidation, models.RoomTypeTeam, models.RoomTypeStudyGroup)
	}
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("%w: roomId must not be empty", ErrValidation)
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultRecentLimit
	}

	key := models.MakeRoomKey(roomType, roomID)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			if int64(len(cached)) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := s.col().Find(ctx, bson.M{"room_type": roomType, "room_id": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	stored, err := s.enrich(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(stored) > 0 {
		s.cache.Warm(ctx, key, stored)
	}
	return stored, nil
}

// MarkRead appends readerID to the message's readBy set. Idempotent: marking
// an already-read message again changes nothing.
func (s *MessageStore) MarkRead(ctx context.Context, messageID, readerID string) error {
	mid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return fmt.Errorf("%w: invalid message id", ErrValidation)
	}
	rid, err := primitive.ObjectIDFromHex(readerID)
	if err != nil {
		return fmt.Errorf("%w: invalid reader id", ErrValidation)
	}

	res, err := s.col().UpdateByID(ctx, mid, bson.M{
		"$addToSet": bson.M{"read_by": rid},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return nil
}

// Edit replaces the message content and marks it edited. The caller is
// expected to have authorized the edit.
func (s *MessageStore) Edit(ctx context.Context, messageID, content string) (*models.StoredMessage, error) {
	mid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid message id", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}

	var updated models.Message
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.col().FindOneAndUpdate(ctx, bson.M{"_id": mid}, bson.M{
		"$set": bson.M{
			"content":    content,
			"is_edited":  true,
			"updated_at": time.Now().UTC(),
		},
	}, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Cached copies are stale now
	if s.cache != nil {
		s.cache.Invalidate(ctx, models.MakeRoomKey(updated.RoomType, updated.RoomID))
	}

	stored, err := s.enrich(ctx, []models.Message{updated})
	if err != nil || len(stored) == 0 {
		return &models.StoredMessage{Message: updated, Sender: models.SenderInfo{ID: updated.SenderID}}, nil
	}
	return &stored[0], nil
}

// enrich attaches sender display info to messages with one batched lookup.
func (s *MessageStore) enrich(ctx context.Context, msgs []models.Message) ([]models.StoredMessage, error) {
	if len(msgs) == 0 {
		return []models.StoredMessage{}, nil
	}

	seen := make(map[primitive.ObjectID]struct{}, len(msgs))
	var ids []primitive.ObjectID
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}

	senders, err := s.senders.ResolveSenders(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		info, ok := senders[m.SenderID]
		if !ok {
			info = models.SenderInfo{ID: m.SenderID}
		}
		out = append(out, models.StoredMessage{Message: m, Sender: info})
	}
	return out, nil
}
