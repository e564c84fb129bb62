package sms

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/farmstore"
	"github.com/agriguardian/agriguardian/internal/metrics"
	"github.com/agriguardian/agriguardian/internal/prompt"
	"github.com/agriguardian/agriguardian/internal/sensors"
)

// handleTimeout bounds processing of one inbound message, model call
// and outbound send included.
const handleTimeout = 3 * time.Minute

// rateWindow is the sliding window for per-sender rate limiting.
const rateWindow = time.Minute

// cleanupInterval controls how often stale rate-limit entries are
// evicted.
const cleanupInterval = 10 * time.Minute

// quotaMessage is sent when the daily budget is already spent. The
// question never reaches the model in that case.
const quotaMessage = "Daily quota exceeded. Please try again tomorrow."

// FarmerDirectory is the profile store surface the bridge uses. All
// calls are best-effort: an unknown or unreachable store degrades to
// unpersonalized answers, never to a dropped message.
type FarmerDirectory interface {
	Get(phone string) (*farmstore.Farmer, error)
	RecordInteraction(phone, message, response string) error
	RecentInteractions(phone string, limit int) ([]farmstore.Interaction, error)
}

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Sender    Sender
	Pipeline  *advice.Pipeline
	Store     FarmerDirectory // may be nil
	Sensors   sensors.Provider
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	RateLimit int // per sender per minute; 0 = unlimited
}

// Bridge receives inbound text messages via webhook, answers them
// through the advice pipeline, and replies through the provider.
type Bridge struct {
	sender    Sender
	pipeline  *advice.Pipeline
	store     FarmerDirectory
	sensors   sensors.Provider
	metrics   *metrics.Collector
	logger    *slog.Logger
	rateLimit int

	mu          sync.Mutex
	senderTimes map[string][]time.Time
	lastCleanup time.Time
}

// NewBridge creates an SMS bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		sender:      cfg.Sender,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		sensors:     cfg.Sensors,
		metrics:     cfg.Metrics,
		logger:      logger.With("component", "sms"),
		rateLimit:   cfg.RateLimit,
		senderTimes: make(map[string][]time.Time),
	}
}

// inboundMessage is the webhook payload. Providers that post form
// fields use From/Body names too, so both encodings map here.
type inboundMessage struct {
	From string `json:"From"`
	Body string `json:"Body"`
}

// webhookResponse is the webhook reply body.
type webhookResponse struct {
	Message  string `json:"message"`
	Response string `json:"response,omitempty"`
}

// Handler returns the inbound webhook handler. Mount at POST
// /sms/inbound.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(b.handleInbound)
}

func (b *Bridge) handleInbound(w http.ResponseWriter, r *http.Request) {
	msg, err := parseInbound(r)
	if err != nil {
		b.writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "Invalid request"})
		return
	}
	if msg.From == "" || strings.TrimSpace(msg.Body) == "" {
		b.writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "Missing sender or message body"})
		return
	}

	b.metrics.SMSMessage("inbound")

	if !b.allowSender(msg.From) {
		b.logger.Warn("sms rate-limited", "sender", msg.From)
		b.writeJSON(w, http.StatusTooManyRequests, webhookResponse{Message: "Rate limited"})
		return
	}

	reply := b.handleMessage(r.Context(), msg.From, strings.TrimSpace(msg.Body))
	b.writeJSON(w, http.StatusOK, webhookResponse{Message: "Success", Response: reply})
}

// handleMessage answers one farmer question and sends the reply. The
// returned text is also echoed in the webhook response for providers
// that deliver it themselves.
func (b *Bridge) handleMessage(ctx context.Context, phone, question string) string {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	b.logger.Info("sms message received", "sender", phone, "message_len", len(question))

	if b.pipeline.Counter().Exceeded() {
		b.send(ctx, phone, quotaMessage)
		return quotaMessage
	}

	farmerCtx, history := b.farmerContext(phone)

	resp := b.pipeline.Ask(ctx, advice.Request{
		Question: question,
		Reading:  b.sensors.Reading(phone),
		Context:  farmerCtx,
		History:  history,
	})

	// History write is best-effort. The farmer gets the full reply even
	// when the log write fails.
	if b.store != nil {
		if err := b.store.RecordInteraction(phone, question, resp.Text); err != nil {
			b.logger.Warn("sms interaction record failed", "sender", phone, "error", err)
		}
	}

	b.send(ctx, phone, resp.Text)

	b.logger.Info("sms reply handled",
		"sender", phone,
		"response_len", len(resp.Text),
		"fallback", resp.Fallback,
		"request_count", resp.Count,
	)
	return resp.Text
}

// farmerContext loads the sender's profile and recent history. Lookup
// failures degrade to an anonymous question.
func (b *Bridge) farmerContext(phone string) (prompt.Context, []prompt.Turn) {
	if b.store == nil {
		return prompt.Context{}, nil
	}

	var pctx prompt.Context
	farmer, err := b.store.Get(phone)
	if err != nil {
		b.logger.Warn("sms farmer lookup failed", "sender", phone, "error", err)
	} else if farmer != nil {
		pctx = prompt.Context{
			Crops:    farmer.Crops,
			Stage:    farmer.GrowthStage,
			Issues:   farmer.Issues,
			Location: farmer.Location,
			FarmSize: farmer.FarmSize,
		}
	}

	limit := b.pipeline.Variant().Prompt.HistoryLimit / 2
	past, err := b.store.RecentInteractions(phone, limit)
	if err != nil {
		b.logger.Warn("sms history lookup failed", "sender", phone, "error", err)
		return pctx, nil
	}

	var history []prompt.Turn
	for _, it := range past {
		history = append(history,
			prompt.Turn{Role: "user", Content: it.Message},
			prompt.Turn{Role: "assistant", Content: it.Response},
		)
	}
	return pctx, history
}

func (b *Bridge) send(ctx context.Context, to, body string) {
	if err := b.sender.Send(ctx, to, body); err != nil {
		b.logger.Error("sms send failed", "sender", to, "error", err)
		return
	}
	b.metrics.SMSMessage("outbound")
}

func (b *Bridge) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logger.Debug("failed to write webhook response", "error", err)
	}
}

// parseInbound accepts either a JSON body or provider form fields.
func parseInbound(r *http.Request) (inboundMessage, error) {
	var msg inboundMessage

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		err := json.NewDecoder(r.Body).Decode(&msg)
		return msg, err
	}

	if err := r.ParseForm(); err != nil {
		return msg, err
	}
	msg.From = r.PostFormValue("From")
	msg.Body = r.PostFormValue("Body")
	return msg, nil
}

// allowSender checks whether the sender is within the per-minute rate
// limit. Returns true if the message should be processed.
func (b *Bridge) allowSender(phone string) bool {
	if b.rateLimit <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeCleanupLocked(now)

	timestamps := b.senderTimes[phone]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= b.rateLimit {
		b.senderTimes[phone] = valid
		return false
	}

	b.senderTimes[phone] = append(valid, now)
	return true
}

// maybeCleanupLocked evicts stale sender entries. Must be called with
// b.mu held.
func (b *Bridge) maybeCleanupLocked(now time.Time) {
	if now.Sub(b.lastCleanup) < cleanupInterval {
		return
	}
	b.lastCleanup = now

	cutoff := now.Add(-2 * rateWindow)
	for phone, timestamps := range b.senderTimes {
		if len(timestamps) == 0 {
			delete(b.senderTimes, phone)
			continue
		}
		if timestamps[len(timestamps)-1].Before(cutoff) {
			delete(b.senderTimes, phone)
		}
	}
}
