package tourguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	mongoEmailIndex    = "users_email"
	mongoProviderIndex = "users_provider_subject"
	mongoResetIndex    = "users_reset_token"
)

// MongoStore keeps users in the "users" collection using the field names of
// the existing Natours documents, so it can run against that data as is.
type MongoStore struct {
	users *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{users: db.Collection("users")}
}

// mongoUser is the stored document. Optional fields are omitted rather than
// stored empty so the partial unique indexes only see real values.
type mongoUser struct {
	ID                   bson.ObjectID `bson:"_id"`
	Name                 string        `bson:"name"`
	Email                string        `bson:"email"`
	Role                 string        `bson:"role"`
	Photo                string        `bson:"photo,omitempty"`
	Provider             string        `bson:"provider,omitempty"`
	ProviderSubject      string        `bson:"providerSubject,omitempty"`
	Password             string        `bson:"password,omitempty"`
	PasswordChangedAt    *time.Time    `bson:"passwordChangedAt,omitempty"`
	PasswordResetToken   string        `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires *time.Time    `bson:"passwordResetExpires,omitempty"`
	CreatedAt            time.Time     `bson:"createdAt"`
	UpdatedAt            time.Time     `bson:"updatedAt"`
}

func toMongoUser(u *User) mongoUser {
	return mongoUser{
		Name:                 u.Name,
		Email:                u.Email,
		Role:                 string(u.Role),
		Photo:                u.AvatarURL,
		Provider:             u.Provider,
		ProviderSubject:      u.ProviderSubject,
		Password:             u.PasswordHash,
		PasswordChangedAt:    timePtr(u.PasswordChangedAt),
		PasswordResetToken:   u.ResetTicketHash,
		PasswordResetExpires: timePtr(u.ResetExpiresAt),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func (d *mongoUser) user() *User {
	u := &User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		Role:            Role(d.Role),
		AvatarURL:       d.Photo,
		Provider:        d.Provider,
		ProviderSubject: d.ProviderSubject,
		PasswordHash:    d.Password,
		ResetTicketHash: d.PasswordResetToken,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.PasswordChangedAt != nil {
		u.PasswordChangedAt = *d.PasswordChangedAt
	}
	if d.PasswordResetExpires != nil {
		u.ResetExpiresAt = *d.PasswordResetExpires
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return u
}

// EnsureIndexes creates the unique indexes the store relies on. Safe to call
// on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(mongoEmailIndex).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "providerSubject", Value: 1}},
			Options: options.Index().SetName(mongoProviderIndex).SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "providerSubject", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			Keys: bson.D{{Key: "passwordResetToken", Value: 1}},
			Options: options.Index().SetName(mongoResetIndex).SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "passwordResetToken", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: NormalizeEmail(email)}})
}

func (s *MongoStore) GetUserByProvider(ctx context.Context, provider, subject string) (*User, error) {
	return s.findOne(ctx, bson.D{{Key: "provider", Value: provider}, {Key: "providerSubject", Value: subject}})
}

func (s *MongoStore) GetUserByResetTicket(ctx context.Context, ticketHash string, now time.Time) (*User, error) {
	return s.findOne(ctx, resetTicketFilter(bson.D{}, ticketHash, now))
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*User, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.user(), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	doc := toMongoUser(u)
	doc.ID = bson.NewObjectID()
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return mongoWriteError(err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	u.UpdatedAt = time.Now().UTC()
	return s.updateByID(ctx, u.ID, nil, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "name", Value: u.Name},
			{Key: "email", Value: u.Email},
			{Key: "photo", Value: u.AvatarURL},
			{Key: "updatedAt", Value: u.UpdatedAt},
		}},
	})
}

func (s *MongoStore) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	return s.updateByID(ctx, userID, nil, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "provider", Value: provider},
			{Key: "providerSubject", Value: subject},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}},
	})
}

func (s *MongoStore) SetResetTicket(ctx context.Context, userID, ticketHash string, expiresAt time.Time) error {
	return s.updateByID(ctx, userID, nil, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "passwordResetToken", Value: ticketHash},
			{Key: "passwordResetExpires", Value: expiresAt},
		}},
	})
}

func (s *MongoStore) ClearResetTicket(ctx context.Context, userID string) error {
	err := s.updateByID(ctx, userID, nil, unsetResetTicket)
	if errors.Is(err, ErrPreconditionFailed) {
		return nil
	}
	return err
}

var unsetResetTicket = bson.D{
	{Key: "$unset", Value: bson.D{
		{Key: "passwordResetToken", Value: ""},
		{Key: "passwordResetExpires", Value: ""},
	}},
}

// ChangePassword matches on the id and the precondition in one UpdateOne, so
// of two concurrent consumers of the same ticket only one matches.
func (s *MongoStore) ChangePassword(ctx context.Context, c PasswordChange) error {
	var cond bson.D
	if c.ExpectedTicketHash != "" {
		cond = resetTicketFilter(cond, c.ExpectedTicketHash, c.Now)
	} else {
		cond = bson.D{{Key: "password", Value: c.ExpectedHash}}
	}

	update := append(bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password", Value: c.PasswordHash},
			{Key: "passwordChangedAt", Value: c.PasswordChangedAt},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}},
	}, unsetResetTicket...)
	return s.updateByID(ctx, c.UserID, cond, update)
}

func (s *MongoStore) updateByID(ctx context.Context, id string, cond, update bson.D) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrPreconditionFailed
	}
	filter := append(bson.D{{Key: "_id", Value: oid}}, cond...)

	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return mongoWriteError(err)
	}
	if res.MatchedCount == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func resetTicketFilter(filter bson.D, ticketHash string, now time.Time) bson.D {
	return append(filter,
		bson.E{Key: "passwordResetToken", Value: ticketHash},
		bson.E{Key: "passwordResetExpires", Value: bson.D{{Key: "$gt", Value: now}}},
	)
}

func mongoWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		switch {
		case strings.Contains(err.Error(), mongoEmailIndex):
			return ErrDuplicateEmail
		case strings.Contains(err.Error(), mongoProviderIndex):
			return ErrDuplicateLinkage
		}
	}
	return fmt.Errorf("write user: %w", err)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
