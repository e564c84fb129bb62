package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agriguardian/agriguardian/internal/config"
)

func TestClientSend(t *testing.T) {
	var got outboundMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.SMSConfig{
		ProviderURL: srv.URL,
		Token:       "tok-123",
		SenderID:    "AgrGuard",
	}, nil)

	if err := c.Send(context.Background(), "+254700000001", "advice text"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("authorization: %q", auth)
	}
	if got.To != "+254700000001" || got.From != "AgrGuard" || got.Message != "advice text" {
		t.Errorf("payload: %+v", got)
	}
}

func TestClientSend_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClient(config.SMSConfig{ProviderURL: srv.URL}, nil)
	err := c.Send(context.Background(), "+254700000001", "text")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error missing status: %v", err)
	}
}
