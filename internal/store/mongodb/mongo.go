// Package mongodb implements the store contracts on MongoDB. Each conversation is a
// single document whose history array only ever grows through $push.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

const (
	usersCollection         = "users"
	conversationsCollection = "chats"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type turnDoc struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

type conversationDoc struct {
	UserID      string    `bson:"user_id"`
	ChatHistory []turnDoc `bson:"chat_history"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type Store struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures the unique indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("chats user index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return errs.ErrDuplicateAccount
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*store.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &store.User{ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt}, nil
}

func (s *Store) GetConversation(ctx context.Context, userID string) (*store.Conversation, error) {
	var d conversationDoc
	if err := s.conversations.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return fromDoc(d)
}

// AppendTurns pushes all turns in one update. The upsert creates the document on the
// first message; a racing creator loses on the unique index and is retried once as a
// plain push.
func (s *Store) AppendTurns(ctx context.Context, userID string, turns ...store.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	update := appendUpdate(turns, time.Now().UTC())
	filter := bson.D{{Key: "user_id", Value: userID}}
	_, err := s.conversations.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.conversations.UpdateOne(ctx, filter, update)
	}
	return err
}

func appendUpdate(turns []store.Turn, now time.Time) bson.D {
	docs := make([]turnDoc, 0, len(turns))
	for _, t := range turns {
		docs = append(docs, turnDoc{Role: t.Role.String(), Content: t.Content, CreatedAt: t.CreatedAt})
	}
	return bson.D{
		{Key: "$push", Value: bson.D{{Key: "chat_history", Value: bson.D{{Key: "$each", Value: docs}}}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: now}}},
	}
}

func fromDoc(d conversationDoc) (*store.Conversation, error) {
	conv := &store.Conversation{
		UserID:    d.UserID,
		Turns:     make([]store.Turn, 0, len(d.ChatHistory)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, t := range d.ChatHistory {
		role, err := store.ParseRole(t.Role)
		if err != nil {
			return nil, err
		}
		conv.Turns = append(conv.Turns, store.Turn{Role: role, Content: t.Content, CreatedAt: t.CreatedAt})
	}
	return conv, nil
}
