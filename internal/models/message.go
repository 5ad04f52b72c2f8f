package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Room types partition chat rooms by the entity that owns them. Team and
// study-group IDs come from different collections and may collide, so the
// type is always part of the room identity.
const (
	RoomTypeTeam       = "team"
	RoomTypeStudyGroup = "study-group"
)

// ValidRoomType reports whether s is one of the known room types.
func ValidRoomType(s string) bool {
	return s == RoomTypeTeam || s == RoomTypeStudyGroup
}

// RoomKey identifies one broadcast room: "<roomType>:<roomId>".
type RoomKey string

// MakeRoomKey builds the composite key for a room. The same roomID under
// different room types yields distinct keys.
func MakeRoomKey(roomType, roomID string) RoomKey {
	return RoomKey(roomType + ":" + roomID)
}

// Message is stored in MongoDB and represents a single room message.
// One document per message; messages are never physically deleted.
type Message struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Content     string               `bson:"content" json:"content"`
	SenderID    primitive.ObjectID   `bson:"sender_id" json:"senderId"`
	RoomID      string               `bson:"room_id" json:"roomId"`
	RoomType    string               `bson:"room_type" json:"roomType"`
	IsEdited    bool                 `bson:"is_edited" json:"isEdited"`
	ReadBy      []primitive.ObjectID `bson:"read_by,omitempty" json:"readBy,omitempty"`
	Attachments []string             `bson:"attachments" json:"attachments"`
	CreatedAt   time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updated_at" json:"updatedAt"`
}

// SenderInfo is the display projection of the message sender, resolved from
// the users collection when messages are read or appended.
type SenderInfo struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	Username       string             `bson:"username" json:"username"`
	Firstname      string             `bson:"firstname" json:"firstname"`
	Lastname       string             `bson:"lastname" json:"lastname"`
	ProfilePicture string             `bson:"profile_picture" json:"profilePicture"`
}

// StoredMessage is the persisted message enriched with sender display
// attributes. This is the shape broadcast over the websocket and returned
// from the history endpoint.
type StoredMessage struct {
	Message `bson:",inline"`
	Sender  SenderInfo `bson:"sender" json:"sender"`
}
