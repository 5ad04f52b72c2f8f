package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	Email     string `bson:"email" json:"email"`
	Username  string `bson:"username" json:"username"`
	Firstname string `bson:"firstname" json:"firstname"`
	Lastname  string `bson:"lastname" json:"lastname"`
	Password  string `bson:"password" json:"-"` // Don't return password in JSON

	// Profile fields
	ProfilePicture string `bson:"profile_picture,omitempty" json:"profile_picture,omitempty"`
	Bio            string `bson:"bio,omitempty" json:"bio,omitempty"`
	School         string `bson:"school,omitempty" json:"school,omitempty"`
	Major          string `bson:"major,omitempty" json:"major,omitempty"`
	Year           string `bson:"year,omitempty" json:"year,omitempty"`

	// Tokens invalidated before their natural expiry (logout). Checked on
	// every credential verification.
	BlacklistedTokens []string `bson:"blacklisted_tokens,omitempty" json:"-"`
}

// Sender returns the display projection used when enriching messages.
func (u *User) Sender() SenderInfo {
	return SenderInfo{
		ID:             u.ID,
		Username:       u.Username,
		Firstname:      u.Firstname,
		Lastname:       u.Lastname,
		ProfilePicture: u.ProfilePicture,
	}
}
