package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/rag-assistant/internal/store"
)

func turns(n int) []store.Turn {
	out := make([]store.Turn, n)
	for i := range out {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleModel
		}
		out[i] = store.Turn{Role: role, Content: fmt.Sprintf("t%d", i)}
	}
	return out
}

func TestAssemblePrompt_NoSnippetsUsesMessageVerbatim(t *testing.T) {
	p := AssemblePrompt("What is the refund policy?", nil, nil, 10)
	assert.Equal(t, "What is the refund policy?", p.Text)
	assert.Empty(t, p.History)
}

func TestAssemblePrompt_SnippetsInOrder(t *testing.T) {
	p := AssemblePrompt("Q?", []string{"A", "B"}, nil, 10)

	assert.Equal(t, ContextPreamble+"\n\nA\nB\n\nUser Query: Q?", p.Text)
}

func TestAssemblePrompt_HistoryLimit(t *testing.T) {
	prior := turns(15)

	p := AssemblePrompt("hi", nil, turns(16), 10)
	require.Len(t, p.History, 10)
	assert.Equal(t, "t6", p.History[0].Content)
	assert.Equal(t, "t15", p.History[9].Content)

	p = AssemblePrompt("hi", nil, prior, 0)
	assert.Len(t, p.History, 15, "zero keeps the full history")

	p = AssemblePrompt("hi", nil, turns(3), 10)
	assert.Len(t, p.History, 3)
}

func TestAssemblePrompt_HistoryWindowStartsWithUser(t *testing.T) {
	prior := turns(12)

	p := AssemblePrompt("hi", nil, prior, 3)
	require.Len(t, p.History, 2)
	assert.Equal(t, store.RoleUser, p.History[0].Role)
	assert.Equal(t, "t10", p.History[0].Content)

	p = AssemblePrompt("hi", nil, prior, 4)
	require.Len(t, p.History, 4)
	assert.Equal(t, store.RoleUser, p.History[0].Role)
	assert.Equal(t, "t8", p.History[0].Content)

	p = AssemblePrompt("hi", nil, prior, 1)
	assert.Empty(t, p.History, "a lone model turn is dropped")
}
