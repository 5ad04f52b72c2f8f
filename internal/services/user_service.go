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
	"github.com/zackyviriot/study-buddy-backend/pkg/utils"
)

const usersCollection = "users"

// UserService is the identity store: account creation, credential checks,
// sender display lookup, and the per-user token revocation list.
type UserService struct {
	db *mongo.Database
}

func NewUserService(db *mongo.Database) *UserService {
	return &UserService{db: db}
}

func (s *UserService) col() *mongo.Collection {
	return s.db.Collection(usersCollection)
}

// EnsureUserIndexes configures the unique email index. Called on startup.
func (s *UserService) EnsureUserIndexes(ctx context.Context) error {
	_, err := s.col().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_email_unique").SetUnique(true),
	})
	return err
}

// Create registers a new user. Fails with ErrConflict when the email is
// already taken.
func (s *UserService) Create(ctx context.Context, firstname, lastname, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	count, err := s.col().CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: user with this email already exists", ErrConflict)
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        primitive.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
		Email:     email,
		Username:  usernameFromEmail(email),
		Firstname: firstname,
		Lastname:  lastname,
		Password:  hashed,
	}

	if _, err := s.col().InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: user with this email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return user, nil
}

// Authenticate verifies email + password and returns the user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.col().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: invalid email or password", ErrAuthentication)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	ok, err := utils.VerifyPassword(password, user.Password)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: invalid email or password", ErrAuthentication)
	}
	return &user, nil
}

// FindByID loads a user by hex ObjectID.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}

	var user models.User
	err = s.col().FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &user, nil
}

// RevokeToken appends a token to the user's revocation list. Idempotent.
func (s *UserService) RevokeToken(ctx context.Context, userID, token string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%w: invalid user id", ErrValidation)
	}

	res, err := s.col().UpdateByID(ctx, oid, bson.M{
		"$addToSet": bson.M{"blacklisted_tokens": token},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

// IsTokenRevoked reports whether the token is on the user's revocation list.
// Implements TokenRevocations for the credential verifier.
func (s *UserService) IsTokenRevoked(ctx context.Context, userID, token string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, fmt.Errorf("%w: invalid user id", ErrValidation)
	}

	count, err := s.col().CountDocuments(ctx, bson.M{
		"_id":                oid,
		"blacklisted_tokens": token,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return count > 0, nil
}

// ResolveSenders returns display info for the given sender IDs in one query.
// Unknown IDs are simply absent from the result.
func (s *UserService) ResolveSenders(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.SenderInfo, error) {
	out := make(map[primitive.ObjectID]models.SenderInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.M{
		"_id":             1,
		"username":        1,
		"firstname":       1,
		"lastname":        1,
		"profile_picture": 1,
	})
	cur, err := s.col().Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var info models.SenderInfo
		if err := cur.Decode(&info); err != nil {
			continue
		}
		out[info.ID] = info
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return out, nil
}

// usernameFromEmail derives a default username from the local part of the
// email; the user can change it later from their profile.
func usernameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
