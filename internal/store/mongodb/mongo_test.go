package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

func TestAppendUpdate_PushesAllTurnsInOrder(t *testing.T) {
	now := time.Now().UTC()
	update := appendUpdate([]store.Turn{
		store.NewTurn(store.RoleUser, "q"),
		store.NewTurn(store.RoleModel, "a"),
	}, now)

	require.Len(t, update, 3)
	assert.Equal(t, "$push", update[0].Key)

	push := update[0].Value.(bson.D)
	each := push[0].Value.(bson.D)
	docs := each[0].Value.([]turnDoc)
	require.Len(t, docs, 2)
	assert.Equal(t, "user", docs[0].Role)
	assert.Equal(t, "model", docs[1].Role)
}

func TestFromDoc(t *testing.T) {
	conv, err := fromDoc(conversationDoc{
		UserID:      "u1",
		ChatHistory: []turnDoc{{Role: "user", Content: "q"}, {Role: "system", Content: "s"}},
	})
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, store.RoleSystem, conv.Turns[1].Role)

	_, err = fromDoc(conversationDoc{ChatHistory: []turnDoc{{Role: "bot"}}})
	require.ErrorIs(t, err, store.ErrInvalidRole)
}

// TestStore_Live runs against a real server when MONGO_TEST_URI is set.
func TestStore_Live(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, uri, "assistant_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.users.Database().Drop(context.Background())
		_ = s.Close()
	})

	email := uuid.NewString() + "@x.com"
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: uuid.NewString(), Name: "a", Email: email, PasswordHash: "h"}))
	err = s.CreateUser(ctx, &store.User{ID: uuid.NewString(), Name: "b", Email: email, PasswordHash: "h"})
	require.ErrorIs(t, err, errs.ErrDuplicateAccount)

	conv, err := s.GetConversation(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, conv)

	require.NoError(t, s.AppendTurns(ctx, "u1", store.NewTurn(store.RoleUser, "q"), store.NewTurn(store.RoleModel, "a")))
	require.NoError(t, s.AppendTurns(ctx, "u1", store.NewTurn(store.RoleUser, "q2"), store.NewTurn(store.RoleModel, "a2")))

	conv, err = s.GetConversation(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 4)
	assert.Equal(t, "a2", conv.Turns[3].Content)
}
