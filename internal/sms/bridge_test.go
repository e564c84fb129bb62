package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/farmstore"
	"github.com/agriguardian/agriguardian/internal/openrouter"
	"github.com/agriguardian/agriguardian/internal/sensors"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	to     []string
	err    error
}

func (f *fakeSender) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeSender) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeModel struct {
	mu       sync.Mutex
	calls    int
	lastUser string
	reply    *openrouter.Reply
	err      error
}

func (f *fakeModel) Complete(ctx context.Context, system, user string, sampling *openrouter.Sampling) (*openrouter.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastUser = user
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func modelReply(text string) *openrouter.Reply {
	return &openrouter.Reply{Choices: []openrouter.Choice{{
		Message: openrouter.ReplyMessage{Role: "assistant", Content: text},
	}}}
}

const testAnswer = "Water at dawn, mulch 2in, shade rows 11am-3pm. Recheck soil moisture in 2 days."

type bridgeOpts struct {
	store     FarmerDirectory
	counter   *advice.Counter
	rateLimit int
	sender    *fakeSender
	model     *fakeModel
}

func newTestBridge(t *testing.T, opts bridgeOpts) (*Bridge, *fakeModel, *fakeSender) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.model == nil {
		opts.model = &fakeModel{reply: modelReply(testAnswer)}
	}
	if opts.sender == nil {
		opts.sender = &fakeSender{}
	}
	pipeline := advice.NewPipeline(opts.model, opts.counter, advice.SMSVariant(), nil, logger)
	b := NewBridge(BridgeConfig{
		Sender:    opts.sender,
		Pipeline:  pipeline,
		Store:     opts.store,
		Sensors:   sensors.NewSeededSimulator(7, func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }),
		Logger:    logger,
		RateLimit: opts.rateLimit,
	})
	return b, opts.model, opts.sender
}

func postInboundJSON(t *testing.T, b *Bridge, from, body string) (*httptest.ResponseRecorder, webhookResponse) {
	t.Helper()
	payload, _ := json.Marshal(inboundMessage{From: from, Body: body})
	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	var decoded webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	return rec, decoded
}

func TestInbound_JSON(t *testing.T) {
	b, model, sender := newTestBridge(t, bridgeOpts{})

	rec, resp := postInboundJSON(t, b, "+254700000001", "When should I water my maize?")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if resp.Message != "Success" {
		t.Errorf("message: %q", resp.Message)
	}
	if resp.Response != testAnswer {
		t.Errorf("response: %q", resp.Response)
	}
	if sender.lastSent() != testAnswer {
		t.Errorf("sms body: %q", sender.lastSent())
	}
	model.mu.Lock()
	defer model.mu.Unlock()
	if !strings.Contains(model.lastUser, "FARMER QUESTION: When should I water my maize?") {
		t.Errorf("question missing from prompt: %q", model.lastUser)
	}
}

func TestInbound_Form(t *testing.T) {
	b, _, sender := newTestBridge(t, bridgeOpts{})

	form := url.Values{"From": {"+254700000002"}, "Body": {"My beans look pale"}}
	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", rec.Code, rec.Body.String())
	}
	if sender.lastSent() != testAnswer {
		t.Errorf("sms body: %q", sender.lastSent())
	}
	if got := sender.to[len(sender.to)-1]; got != "+254700000002" {
		t.Errorf("recipient: %q", got)
	}
}

func TestInbound_MissingFields(t *testing.T) {
	b, model, sender := newTestBridge(t, bridgeOpts{})

	rec, _ := postInboundJSON(t, b, "", "question without sender")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d, want 400", rec.Code)
	}
	rec, _ = postInboundJSON(t, b, "+254700000003", "   ")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: %d, want 400", rec.Code)
	}
	if model.calls != 0 || len(sender.sent) != 0 {
		t.Error("pipeline or sender invoked on invalid input")
	}
}

func TestInbound_RateLimit(t *testing.T) {
	b, _, _ := newTestBridge(t, bridgeOpts{rateLimit: 1})

	rec, _ := postInboundJSON(t, b, "+254700000004", "first")
	if rec.Code != http.StatusOK {
		t.Fatalf("first message rejected: %d", rec.Code)
	}
	rec, _ = postInboundJSON(t, b, "+254700000004", "second")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second message status: %d, want 429", rec.Code)
	}

	// Other senders are unaffected.
	rec, _ = postInboundJSON(t, b, "+254700000005", "hello")
	if rec.Code != http.StatusOK {
		t.Errorf("other sender rejected: %d", rec.Code)
	}
}

func TestInbound_QuotaGate(t *testing.T) {
	counter := advice.NewCounter(2)
	counter.Increment()
	counter.Increment()
	b, model, sender := newTestBridge(t, bridgeOpts{counter: counter})

	rec, resp := postInboundJSON(t, b, "+254700000006", "anything")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if resp.Response != quotaMessage {
		t.Errorf("response: %q", resp.Response)
	}
	if sender.lastSent() != quotaMessage {
		t.Errorf("sms body: %q", sender.lastSent())
	}
	if model.calls != 0 {
		t.Error("model called past the budget")
	}
}

func TestInbound_FarmerPersonalization(t *testing.T) {
	store, err := farmstore.NewStore(filepath.Join(t.TempDir(), "sms.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	phone := "+254700000007"
	if err := store.Upsert(&farmstore.Farmer{
		PhoneNumber: phone,
		Location:    "Eldoret",
		Crops:       "wheat",
		GrowthStage: "tillering",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.RecordInteraction(phone, "earlier question", "earlier answer"); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}

	b, model, _ := newTestBridge(t, bridgeOpts{store: store})
	postInboundJSON(t, b, phone, "Do I need nitrogen now?")

	model.mu.Lock()
	got := model.lastUser
	model.mu.Unlock()
	if !strings.Contains(got, "- Main crops: wheat") {
		t.Errorf("crops missing: %q", got)
	}
	if !strings.Contains(got, "- Location: Eldoret") {
		t.Errorf("location missing: %q", got)
	}
	if !strings.Contains(got, "FARMER: earlier question") {
		t.Errorf("history missing: %q", got)
	}

	// The new exchange lands in the interaction log.
	recent, err := store.RecentInteractions(phone, 5)
	if err != nil {
		t.Fatalf("RecentInteractions: %v", err)
	}
	last := recent[len(recent)-1]
	if last.Message != "Do I need nitrogen now?" || last.Response != testAnswer {
		t.Errorf("interaction not recorded: %+v", last)
	}
}

type failingStore struct{}

func (failingStore) Get(string) (*farmstore.Farmer, error) { return nil, errors.New("db down") }
func (failingStore) RecordInteraction(string, string, string) error {
	return errors.New("db down")
}
func (failingStore) RecentInteractions(string, int) ([]farmstore.Interaction, error) {
	return nil, errors.New("db down")
}

func TestInbound_StoreFailureStillAnswers(t *testing.T) {
	b, _, sender := newTestBridge(t, bridgeOpts{store: failingStore{}})

	rec, resp := postInboundJSON(t, b, "+254700000008", "Is my soil too wet?")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if resp.Response != testAnswer {
		t.Errorf("response degraded: %q", resp.Response)
	}
	if sender.lastSent() != testAnswer {
		t.Errorf("sms not sent: %q", sender.lastSent())
	}
}

func TestInbound_SendFailureStillResponds(t *testing.T) {
	sender := &fakeSender{err: errors.New("provider down")}
	b, _, _ := newTestBridge(t, bridgeOpts{sender: sender})

	rec, resp := postInboundJSON(t, b, "+254700000009", "question")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if resp.Response != testAnswer {
		t.Errorf("response missing: %q", resp.Response)
	}
}
