package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/store"
)

func TestSendMessage_AppendsUserAndModelTurns(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "Refunds take 5 days."}
	retriever := &fakeRetriever{snippets: []Snippet{{Text: "Refunds: 5 days", Rank: 1}}}
	svc := NewChatService(convs, retriever, completer, 10, zap.NewNop())

	reply, err := svc.SendMessage(context.Background(), "u1", "How long do refunds take?")
	require.NoError(t, err)

	assert.Equal(t, "Refunds take 5 days.", reply.Content)
	require.Len(t, reply.History, 2)
	assert.Equal(t, store.RoleUser, reply.History[0].Role)
	assert.Equal(t, "How long do refunds take?", reply.History[0].Content)
	assert.Equal(t, store.RoleModel, reply.History[1].Role)
	assert.Equal(t, ContextPreamble+"\n\nRefunds: 5 days\n\nUser Query: How long do refunds take?", completer.gotPrompt)
	assert.Len(t, convs.turns("u1"), 2)

	_, err = svc.SendMessage(context.Background(), "u1", "Thanks")
	require.NoError(t, err)
	assert.Len(t, convs.turns("u1"), 4)
	assert.Len(t, completer.gotHistory, 2, "prior turns are sent as context")
}

func TestSendMessage_HistoryIsBounded(t *testing.T) {
	convs := newFakeConversations()
	require.NoError(t, convs.AppendTurns(context.Background(), "u1", turns(12)...))
	completer := &fakeCompleter{reply: "ok"}
	svc := NewChatService(convs, &fakeRetriever{}, completer, 4, zap.NewNop())

	reply, err := svc.SendMessage(context.Background(), "u1", "next")
	require.NoError(t, err)

	assert.Len(t, completer.gotHistory, 4)
	assert.Len(t, reply.History, 14, "the returned history is never truncated")
}

func TestSendMessage_CompletionFailurePersistsNothing(t *testing.T) {
	convs := newFakeConversations()
	svc := NewChatService(convs, &fakeRetriever{}, &fakeCompleter{err: errs.ErrCompletion}, 10, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "u1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRequestFailed)
	assert.ErrorIs(t, err, errs.ErrCompletion)
	assert.Empty(t, convs.turns("u1"))
}

func TestSendMessage_RetrievalFailureDegrades(t *testing.T) {
	convs := newFakeConversations()
	completer := &fakeCompleter{reply: "plain answer"}
	svc := NewChatService(convs, &fakeRetriever{err: errs.ErrEmbedding}, completer, 10, zap.NewNop())

	reply, err := svc.SendMessage(context.Background(), "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "plain answer", reply.Content)
	assert.Equal(t, "hello", completer.gotPrompt)
	assert.Len(t, convs.turns("u1"), 2)
}

func TestSendMessage_PersistenceFailure(t *testing.T) {
	convs := newFakeConversations()
	convs.appendErr = errBoom
	svc := NewChatService(convs, &fakeRetriever{}, &fakeCompleter{reply: "x"}, 10, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "u1", "hello")
	assert.ErrorIs(t, err, errs.ErrPersistence)
}

func TestSendMessage_Validation(t *testing.T) {
	completer := &fakeCompleter{reply: "x"}
	svc := NewChatService(newFakeConversations(), &fakeRetriever{}, completer, 10, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), "", "hello")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	_, err = svc.SendMessage(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
	assert.Zero(t, completer.invocations)
}

func TestHistory(t *testing.T) {
	convs := newFakeConversations()
	svc := NewChatService(convs, &fakeRetriever{}, &fakeCompleter{}, 10, zap.NewNop())

	got, err := svc.History(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, convs.AppendTurns(context.Background(), "u1", turns(3)...))
	got, err = svc.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	convs.getErr = errBoom
	_, err = svc.History(context.Background(), "u1")
	assert.ErrorIs(t, err, errs.ErrPersistence)

	_, err = svc.History(context.Background(), " ")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}
