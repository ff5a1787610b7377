// Package avatar turns a text script into a talking-avatar video through the D-ID talks API.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gwi.com/rag-assistant/internal/errs"
)

const (
	// MaxScriptRunes caps the script sent for synthesis.
	MaxScriptRunes = 1000

	defaultBaseURL         = "https://api.d-id.com"
	defaultTimeout         = 60 * time.Second
	defaultMaxAttempts     = 30
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 5 * time.Second
)

// State is the lifecycle of a synthesis job.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateDone      State = "done"
	StateError     State = "error"
	StateTimedOut  State = "timed-out"
)

// Options configures Client. Zero durations and attempts fall back to defaults.
type Options struct {
	APIKey          string
	BaseURL         string
	SourceURL       string
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	opts Options
	http *http.Client
	log  *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{opts: opts, http: hc, log: log}
}

type talkRequest struct {
	SourceURL string     `json:"source_url"`
	Script    talkScript `json:"script"`
	Config    talkConfig `json:"config"`
}

type talkScript struct {
	Type      string       `json:"type"`
	Subtitles bool         `json:"subtitles"`
	Provider  talkProvider `json:"provider"`
	Input     string       `json:"input"`
	SSML      bool         `json:"ssml"`
}

type talkProvider struct {
	Type    string `json:"type"`
	VoiceID string `json:"voice_id"`
}

type talkConfig struct {
	Fluent       bool   `json:"fluent"`
	ResultFormat string `json:"result_format"`
}

type talkResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ResultURL   string `json:"result_url"`
	Description string `json:"description"`
}

// job tracks one synthesis through its states.
type job struct {
	id    string
	state State
	log   *zap.Logger
}

func (j *job) transition(s State) {
	j.log.Debug("avatar job state changed",
		zap.String("talkId", j.id),
		zap.String("from", string(j.state)),
		zap.String("to", string(s)),
	)
	j.state = s
}

var errPending = errors.New("talk not ready")

// Generate submits script and waits for the rendered video, returning its URL. The
// submission is sent once; only status checks are retried, with exponential backoff,
// until MaxAttempts checks or Timeout elapse, whichever comes first.
func (c *Client) Generate(ctx context.Context, script string) (string, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", fmt.Errorf("%w: message is required", errs.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	id, err := c.submit(ctx, truncateRunes(script, MaxScriptRunes))
	if err != nil {
		return "", err
	}
	j := &job{id: id, state: StateSubmitted, log: c.log}
	j.transition(StatePolling)

	var videoURL string
	check := func() error {
		talk, err := c.status(ctx, id)
		if err != nil {
			return err
		}
		switch talk.Status {
		case "done":
			if talk.ResultURL == "" {
				return backoff.Permanent(fmt.Errorf("%w: talk %s finished without a result url", errs.ErrAvatar, id))
			}
			videoURL = talk.ResultURL
			return nil
		case "error", "rejected":
			return backoff.Permanent(fmt.Errorf("%w: processing failed for talk %s: %s", errs.ErrAvatar, id, talk.Description))
		default:
			return errPending
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)

	err = backoff.Retry(check, policy)
	switch {
	case err == nil:
		j.transition(StateDone)
		c.log.Info("avatar video ready", zap.String("talkId", id))
		return videoURL, nil
	case errors.Is(err, errs.ErrAvatar):
		j.transition(StateError)
		c.log.Error("avatar generation failed", zap.String("talkId", id), zap.Error(err))
		return "", err
	case errors.Is(err, context.Canceled):
		j.transition(StateError)
		return "", fmt.Errorf("%w: %w", errs.ErrAvatar, err)
	default:
		j.transition(StateTimedOut)
		c.log.Warn("avatar generation timed out", zap.String("talkId", id), zap.Error(err))
		return "", fmt.Errorf("%w: talk %s: %w", errs.ErrAvatarTimeout, id, err)
	}
}

func (c *Client) submit(ctx context.Context, script string) (string, error) {
	body, err := json.Marshal(talkRequest{
		SourceURL: c.opts.SourceURL,
		Script: talkScript{
			Type:     "text",
			Provider: talkProvider{Type: "microsoft", VoiceID: "Sara"},
			Input:    script,
		},
		Config: talkConfig{Fluent: true, ResultFormat: "mp4"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode talk request: %w", errs.ErrAvatar, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/talks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var talk talkResponse
	if err := c.do(req, &talk); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: submit talk: %w", errs.ErrAvatarTimeout, err)
		}
		return "", fmt.Errorf("%w: submit talk: %w", errs.ErrAvatar, err)
	}
	if talk.ID == "" {
		return "", fmt.Errorf("%w: submit talk: response carried no id", errs.ErrAvatar)
	}
	return talk.ID, nil
}

// status fetches the talk. Client-side HTTP errors are permanent; everything else may be retried.
func (c *Client) status(ctx context.Context, id string) (*talkResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/talks/"+id, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	var talk talkResponse
	if err := c.do(req, &talk); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			return nil, backoff.Permanent(fmt.Errorf("%w: check talk %s: %w", errs.ErrAvatar, id, err))
		}
		return nil, err
	}
	return &talk, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", errs.ErrAvatar, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("d-id returned status %d: %s", e.code, e.body)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
