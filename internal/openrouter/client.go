package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/agriguardian/agriguardian/internal/config"
	"github.com/agriguardian/agriguardian/internal/httpkit"
)

// Tally counts completed model calls. The advice package's Counter
// implements it; the client increments it exactly once for every HTTP
// response whose body parsed as JSON (success or error-shaped), and
// never for transport failures or malformed bodies.
type Tally interface {
	Increment() int64
}

// errorBodyLimit caps how much of a non-2xx body is kept for logging.
const errorBodyLimit = 4096

// Client issues chat-completion requests to an OpenRouter-compatible
// endpoint. One synchronous POST per advice request; timeout control is
// the caller's context deadline.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	referer    string
	title      string
	httpClient *http.Client
	tally      Tally
	logger     *slog.Logger
}

// NewClient creates a model client from configuration. The credential
// may be empty; Complete then fails with ErrMissingCredential before
// touching the network.
func NewClient(cfg config.OpenRouterConfig, tally Tally, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  cfg.ResolveAPIKey(),
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		referer: cfg.Referer,
		title:   cfg.Title,
		tally:   tally,
		logger:  logger.With("provider", "openrouter"),
		// No client-level timeout — each call carries its variant's
		// deadline on the context.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool { return c.apiKey != "" }

// SetCredential replaces the API key (interactive console entry).
func (c *Client) SetCredential(key string) { c.apiKey = key }

// Complete sends one chat-completion request with the given system and
// user instructions. sampling is optional; when set, explicit sampling
// parameters are included in the payload (low-latency variant).
//
// On failure the returned error is always a *CallError; the caller maps
// its Kind to a fixed user-facing message. A fault never propagates in
// any other shape.
func (c *Client) Complete(ctx context.Context, system, user string, sampling *Sampling) (*Reply, error) {
	if c.apiKey == "" {
		return nil, &CallError{Kind: ErrMissingCredential, Detail: "no API key configured"}
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Sampling: sampling,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		// Pure in-memory marshal of strings; cannot realistically fail.
		return nil, &CallError{Kind: ErrMalformedReply, Detail: "marshal request: " + err.Error()}
	}

	c.logger.Debug("sending completion request",
		"model", c.model,
		"system_len", len(system),
		"user_len", len(user),
		"sampling", sampling != nil,
	)
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: ErrConnection, Detail: "create request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := ErrConnection
		if isTimeout(ctx, err) {
			kind = ErrTimeout
		}
		c.logger.Warn("completion request failed", "kind", kind.String(), "error", err)
		return nil, &CallError{Kind: kind, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.logger.Warn("completion reply not parseable", "error", err)
		return nil, &CallError{Kind: ErrMalformedReply, Detail: err.Error()}
	}

	// A parsed reply counts against the daily budget even if the
	// normalizer later rejects its content.
	n := c.increment()

	c.logger.Debug("completion reply received",
		"choices", len(reply.Choices),
		"request_count", n,
	)
	return &reply, nil
}

// statusError maps a non-2xx response to a CallError. The body is read
// for logging; if it parses as JSON the endpoint did answer, so the
// call still counts against the daily budget.
func (c *Client) statusError(resp *http.Response) *CallError {
	detail := httpkit.ReadErrorBody(resp.Body, errorBodyLimit)
	if json.Valid([]byte(detail)) {
		c.increment()
	}

	kind := ErrHTTP
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	case http.StatusUnauthorized:
		kind = ErrUnauthorized
	}

	c.logger.Error("completion endpoint error",
		"status", resp.StatusCode,
		"kind", kind.String(),
		"body", detail,
	)
	return &CallError{Kind: kind, Status: resp.StatusCode, Detail: detail}
}

func (c *Client) increment() int64 {
	if c.tally == nil {
		return 0
	}
	return c.tally.Increment()
}

// isTimeout distinguishes deadline expiry from other transport failures.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
