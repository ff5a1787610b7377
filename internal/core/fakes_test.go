package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"gwi.com/rag-assistant/internal/cache"
	"gwi.com/rag-assistant/internal/store"
	"gwi.com/rag-assistant/internal/vectorindex"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) GetEmbedding(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeIndex struct {
	matches []vectorindex.Match
	err     error
	gotTopK int
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int) ([]vectorindex.Match, error) {
	f.gotTopK = topK
	return f.matches, f.err
}

func (f *fakeIndex) Upsert(_ context.Context, _ []vectorindex.Record) error { return nil }

type fakeRetriever struct {
	snippets []Snippet
	err      error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string) ([]Snippet, error) {
	return f.snippets, f.err
}

type fakeCompleter struct {
	reply       string
	err         error
	gotPrompt   string
	gotHistory  []store.Turn
	invocations int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, history []store.Turn) (string, error) {
	f.invocations++
	f.gotPrompt = prompt
	f.gotHistory = history
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeConversations struct {
	mu        sync.Mutex
	convs     map[string]*store.Conversation
	getErr    error
	appendErr error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: map[string]*store.Conversation{}}
}

func (f *fakeConversations) GetConversation(_ context.Context, userID string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.convs[userID]
	if !ok {
		return nil, nil
	}
	cpy := *c
	cpy.Turns = append([]store.Turn(nil), c.Turns...)
	return &cpy, nil
}

func (f *fakeConversations) AppendTurns(_ context.Context, userID string, turns ...store.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	c, ok := f.convs[userID]
	if !ok {
		c = &store.Conversation{UserID: userID}
		f.convs[userID] = c
	}
	c.Turns = append(c.Turns, turns...)
	return nil
}

func (f *fakeConversations) turns(userID string) []store.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[userID]; ok {
		return c.Turns
	}
	return nil
}

type mapCache struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	sets   int
}

func newMapCache() *mapCache { return &mapCache{data: map[string]string{}} }

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mapCache) Close() error { return nil }

var errBoom = errors.New("boom")
