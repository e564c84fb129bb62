// Package openrouter implements the chat-completion model client.
package openrouter

import "fmt"

// Message is one turn of the outbound chat payload.
type Message struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

// Sampling holds explicit sampling parameters for the low-latency
// variant. All fields are marshalled, including zeros — the endpoint
// treats an absent penalty differently from an explicit zero.
type Sampling struct {
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// chatRequest is the wire format of the outbound POST body.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	*Sampling
}

// Reply is the parsed chat-completion response body.
type Reply struct {
	Choices []Choice `json:"choices"`
}

// Choice is one completion alternative. Only the first is ever used.
type Choice struct {
	Message ReplyMessage `json:"message"`
}

// ReplyMessage carries the answer text. Reasoning-tuned models sometimes
// return an empty content field and put their output in reasoning; the
// normalizer handles that fallback.
type ReplyMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ErrorKind classifies a failed model call. Every kind maps to a fixed
// user-facing message in the advice pipeline; the kind itself is for
// logging, metrics, and tests.
type ErrorKind int

const (
	// ErrMissingCredential means no API key is configured. Detected
	// before any network activity.
	ErrMissingCredential ErrorKind = iota

	// ErrRateLimited is an HTTP 429 from the endpoint.
	ErrRateLimited

	// ErrUnauthorized is an HTTP 401 (bad or revoked credential).
	ErrUnauthorized

	// ErrHTTP is any other non-2xx status.
	ErrHTTP

	// ErrConnection means the transport could not reach the endpoint.
	ErrConnection

	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout

	// ErrMalformedReply means the body did not parse as a chat reply.
	ErrMalformedReply
)

// String returns the kind's stable label, used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case ErrMissingCredential:
		return "missing_credential"
	case ErrRateLimited:
		return "rate_limited"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrHTTP:
		return "http_error"
	case ErrConnection:
		return "connection_failure"
	case ErrTimeout:
		return "timeout"
	case ErrMalformedReply:
		return "malformed_reply"
	default:
		return "unknown"
	}
}

// CallError is the typed failure of a model call. Detail carries the
// underlying cause for logs; it is never shown to farmers directly.
type CallError struct {
	Kind   ErrorKind
	Status int // HTTP status, when applicable
	Detail string
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model call failed (%s, status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("model call failed (%s): %s", e.Kind, e.Detail)
}
