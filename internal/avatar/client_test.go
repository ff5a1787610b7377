package avatar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
)

// fakeDID serves POST /talks and answers GET /talks/{id} from statuses in order,
// repeating the last one.
type fakeDID struct {
	statuses  []string
	checks    atomic.Int32
	submits   atomic.Int32
	submitFn  func(w http.ResponseWriter)
	lastInput atomic.Value
}

func (f *fakeDID) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /talks", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req talkRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			f.lastInput.Store(req.Script.Input)
			assert.Equal(t, "microsoft", req.Script.Provider.Type)
			assert.Equal(t, "Sara", req.Script.Provider.VoiceID)
			assert.True(t, req.Config.Fluent)
		}
		if f.submitFn != nil {
			f.submitFn(w)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tlk_1","status":"created"}`))
	})
	mux.HandleFunc("GET /talks/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.checks.Add(1)) - 1
		if n >= len(f.statuses) {
			n = len(f.statuses) - 1
		}
		resp := talkResponse{ID: r.PathValue("id"), Status: f.statuses[n]}
		if resp.Status == "done" {
			resp.ResultURL = "https://cdn.example.com/tlk_1.mp4"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestClient(url string, attempts int, timeout time.Duration) *Client {
	return NewClient(Options{
		APIKey:          "secret",
		BaseURL:         url,
		SourceURL:       "https://example.com/face.png",
		Timeout:         timeout,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, zap.NewNop())
}

func TestGenerate_PollsUntilDone(t *testing.T) {
	did := &fakeDID{statuses: []string{"created", "started", "done"}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	url, err := newTestClient(srv.URL, 30, 5*time.Second).Generate(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/tlk_1.mp4", url)
	assert.EqualValues(t, 3, did.checks.Load())
	assert.EqualValues(t, 1, did.submits.Load())
}

func TestGenerate_StopsAtAttemptCap(t *testing.T) {
	did := &fakeDID{statuses: []string{"started"}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 4, 5*time.Second).Generate(context.Background(), "Hello")
	assert.ErrorIs(t, err, errs.ErrAvatarTimeout)
	assert.EqualValues(t, 4, did.checks.Load())
}

func TestGenerate_HardDeadline(t *testing.T) {
	did := &fakeDID{statuses: []string{"started"}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL, 1_000_000, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Generate(context.Background(), "Hello")
	assert.ErrorIs(t, err, errs.ErrAvatarTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerate_ProcessingError(t *testing.T) {
	did := &fakeDID{statuses: []string{"started", "error"}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 30, 5*time.Second).Generate(context.Background(), "Hello")
	assert.ErrorIs(t, err, errs.ErrAvatar)
	assert.NotErrorIs(t, err, errs.ErrAvatarTimeout)
	assert.EqualValues(t, 2, did.checks.Load())
}

func TestGenerate_SubmitFailureIsNotRetried(t *testing.T) {
	did := &fakeDID{statuses: []string{"done"}, submitFn: func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"kind":"InternalServerError"}`))
	}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 30, 5*time.Second).Generate(context.Background(), "Hello")
	assert.ErrorIs(t, err, errs.ErrAvatar)
	assert.EqualValues(t, 1, did.submits.Load())
	assert.Zero(t, did.checks.Load())
}

func TestGenerate_TruncatesScript(t *testing.T) {
	did := &fakeDID{statuses: []string{"done"}}
	srv := httptest.NewServer(did.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 30, 5*time.Second).Generate(context.Background(), strings.Repeat("ü", 1500))
	require.NoError(t, err)
	input, _ := did.lastInput.Load().(string)
	assert.Equal(t, MaxScriptRunes, utf8.RuneCountInString(input))
}

func TestGenerate_EmptyScript(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0", 1, time.Second).Generate(context.Background(), "  ")
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "hi", truncateRunes("hi", 4))
	assert.Equal(t, "", truncateRunes("abc", 0))
}
