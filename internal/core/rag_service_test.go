package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
	"gwi.com/rag-assistant/internal/vectorindex"
)

func TestRetrieve_KeepsIndexOrderAndDropsEmptyText(t *testing.T) {
	idx := &fakeIndex{matches: []vectorindex.Match{
		{ID: "a", Score: 0.9, Text: "first"},
		{ID: "b", Score: 0.8, Text: ""},
		{ID: "c", Score: 0.7, Text: "  "},
		{ID: "d", Score: 0.6, Text: "second"},
	}}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{1, 0}}, idx, zap.NewNop())

	got, err := svc.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []Snippet{{Text: "first", Rank: 1}, {Text: "second", Rank: 2}}, got)
	assert.Equal(t, NumRelevantChunks, idx.gotTopK)
}

func TestRetrieve_NoMatchesIsNotAnError(t *testing.T) {
	svc := NewRAGService(&fakeEmbedder{vec: []float32{1}}, &fakeIndex{}, zap.NewNop())

	got, err := svc.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		svc := NewRAGService(&fakeEmbedder{err: errs.ErrEmbedding}, &fakeIndex{}, zap.NewNop())
		_, err := svc.Retrieve(context.Background(), "q")
		assert.ErrorIs(t, err, errs.ErrEmbedding)
	})
	t.Run("index", func(t *testing.T) {
		svc := NewRAGService(&fakeEmbedder{vec: []float32{1}}, &fakeIndex{err: errBoom}, zap.NewNop())
		_, err := svc.Retrieve(context.Background(), "q")
		assert.ErrorIs(t, err, errs.ErrVectorIndex)
		assert.ErrorIs(t, err, errBoom)
	})
}
