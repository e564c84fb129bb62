package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agriguardian/agriguardian/internal/config"
)

type fakeTally struct {
	n atomic.Int64
}

func (f *fakeTally) Increment() int64 { return f.n.Add(1) }

func newTestClient(url string, tally Tally) *Client {
	return NewClient(config.OpenRouterConfig{
		APIKey:  "sk-or-test",
		BaseURL: url,
		Model:   "deepseek/deepseek-r1-0528:free",
		Referer: "https://agriguardian-app.com",
		Title:   "AgriGuardian",
	}, tally, nil)
}

func asCallError(t *testing.T, err error) *CallError {
	t.Helper()
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	return ce
}

func TestComplete_Success(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-or-test" {
			t.Errorf("authorization header: got %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://agriguardian-app.com" {
			t.Errorf("referer header: got %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "AgriGuardian" {
			t.Errorf("title header: got %q", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: got %q", r.URL.Path)
		}

		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("request body not JSON: %v", err)
		}
		msgs := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("messages: got %d, want 2", len(msgs))
		}
		if _, ok := req["max_tokens"]; ok {
			t.Error("sampling params present without Sampling option")
		}

		json.NewEncoder(w).Encode(Reply{Choices: []Choice{{
			Message: ReplyMessage{Role: "assistant", Content: "  Water deeply twice a week.  "},
		}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, tally)
	reply, err := c.Complete(context.Background(), "system", "user", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(reply.Choices) != 1 {
		t.Fatalf("choices: got %d", len(reply.Choices))
	}
	if tally.n.Load() != 1 {
		t.Errorf("tally: got %d, want 1", tally.n.Load())
	}
}

func TestComplete_SamplingParams(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		json.NewEncoder(w).Encode(Reply{Choices: []Choice{{Message: ReplyMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &fakeTally{})
	_, err := c.Complete(context.Background(), "s", "u", &Sampling{
		MaxTokens:   600,
		Temperature: 0.3,
		TopP:        0.9,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotBody["max_tokens"].(float64) != 600 {
		t.Errorf("max_tokens: got %v", gotBody["max_tokens"])
	}
	if gotBody["temperature"].(float64) != 0.3 {
		t.Errorf("temperature: got %v", gotBody["temperature"])
	}
	// Explicit zeros must be present on the wire.
	if v, ok := gotBody["frequency_penalty"]; !ok || v.(float64) != 0 {
		t.Errorf("frequency_penalty: got %v (present=%v)", v, ok)
	}
	if v, ok := gotBody["presence_penalty"]; !ok || v.(float64) != 0 {
		t.Errorf("presence_penalty: got %v (present=%v)", v, ok)
	}
}

func TestComplete_MissingCredential(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")
	tally := &fakeTally{}
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(config.OpenRouterConfig{BaseURL: srv.URL, Model: "m"}, tally, nil)
	_, err := c.Complete(context.Background(), "s", "u", nil)

	ce := asCallError(t, err)
	if ce.Kind != ErrMissingCredential {
		t.Errorf("kind: got %v", ce.Kind)
	}
	if called {
		t.Error("network call made despite missing credential")
	}
	if tally.n.Load() != 0 {
		t.Errorf("tally incremented: %d", tally.n.Load())
	}
}

func TestComplete_RateLimited(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, tally)
	_, err := c.Complete(context.Background(), "s", "u", nil)

	ce := asCallError(t, err)
	if ce.Kind != ErrRateLimited {
		t.Errorf("kind: got %v, want ErrRateLimited", ce.Kind)
	}
	if ce.Status != 429 {
		t.Errorf("status: got %d", ce.Status)
	}
	// Error-shaped JSON body still counts as a completed call.
	if tally.n.Load() != 1 {
		t.Errorf("tally: got %d, want 1", tally.n.Load())
	}
}

func TestComplete_HTTPErrorNonJSONBodyDoesNotCount(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, tally)
	_, err := c.Complete(context.Background(), "s", "u", nil)

	ce := asCallError(t, err)
	if ce.Kind != ErrHTTP {
		t.Errorf("kind: got %v, want ErrHTTP", ce.Kind)
	}
	if tally.n.Load() != 0 {
		t.Errorf("tally: got %d, want 0 for non-JSON error body", tally.n.Load())
	}
}

func TestComplete_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &fakeTally{})
	_, err := c.Complete(context.Background(), "s", "u", nil)

	if ce := asCallError(t, err); ce.Kind != ErrUnauthorized {
		t.Errorf("kind: got %v, want ErrUnauthorized", ce.Kind)
	}
}

func TestComplete_ConnectionFailure(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so dialing fails

	c := newTestClient(srv.URL, tally)
	_, err := c.Complete(context.Background(), "s", "u", nil)

	if ce := asCallError(t, err); ce.Kind != ErrConnection {
		t.Errorf("kind: got %v, want ErrConnection", ce.Kind)
	}
	if tally.n.Load() != 0 {
		t.Errorf("tally incremented on transport failure: %d", tally.n.Load())
	}
}

func TestComplete_Timeout(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(Reply{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, tally)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "s", "u", nil)

	if ce := asCallError(t, err); ce.Kind != ErrTimeout {
		t.Errorf("kind: got %v, want ErrTimeout", ce.Kind)
	}
	if tally.n.Load() != 0 {
		t.Errorf("tally incremented on timeout: %d", tally.n.Load())
	}
}

func TestComplete_MalformedReply(t *testing.T) {
	tally := &fakeTally{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, tally)
	_, err := c.Complete(context.Background(), "s", "u", nil)

	if ce := asCallError(t, err); ce.Kind != ErrMalformedReply {
		t.Errorf("kind: got %v, want ErrMalformedReply", ce.Kind)
	}
	if tally.n.Load() != 0 {
		t.Errorf("tally incremented on malformed body: %d", tally.n.Load())
	}
}

func TestErrorKind_String(t *testing.T) {
	kinds := map[ErrorKind]string{
		ErrMissingCredential: "missing_credential",
		ErrRateLimited:       "rate_limited",
		ErrUnauthorized:      "unauthorized",
		ErrHTTP:              "http_error",
		ErrConnection:        "connection_failure",
		ErrTimeout:           "timeout",
		ErrMalformedReply:    "malformed_reply",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
	if !strings.Contains((&CallError{Kind: ErrRateLimited, Status: 429, Detail: "x"}).Error(), "429") {
		t.Error("CallError.Error missing status")
	}
}
