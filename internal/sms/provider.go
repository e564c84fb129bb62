// Package sms implements the text-message gateway: an inbound webhook
// for farmer questions and an outbound HTTP provider client for
// replies.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agriguardian/agriguardian/internal/config"
	"github.com/agriguardian/agriguardian/internal/httpkit"
)

// Sender delivers one outbound text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// sendTimeout bounds one provider API call.
const sendTimeout = 15 * time.Second

// outboundMessage is the provider API request body.
type outboundMessage struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// Client sends messages through an HTTP SMS provider.
type Client struct {
	url        string
	token      string
	senderID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client from configuration.
func NewClient(cfg config.SMSConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        cfg.ProviderURL,
		token:      cfg.Token,
		senderID:   cfg.SenderID,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(sendTimeout)),
		logger:     logger.With("component", "sms"),
	}
}

// Send posts one message to the provider API.
func (c *Client) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(outboundMessage{
		To:      to,
		From:    c.senderID,
		Message: body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := httpkit.ReadErrorBody(resp.Body, 1024)
		resp.Body.Close()
		return fmt.Errorf("sms provider status %d: %s", resp.StatusCode, detail)
	}
	httpkit.DrainAndClose(resp.Body, 1024)

	c.logger.Debug("sms sent", "to", to, "len", len(body))
	return nil
}
