package advice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agriguardian/agriguardian/internal/metrics"
	"github.com/agriguardian/agriguardian/internal/openrouter"
	"github.com/agriguardian/agriguardian/internal/prompt"
	"github.com/agriguardian/agriguardian/internal/sensors"
)

// Request carries everything one advice question needs: the question
// itself, the sensor snapshot it should be answered against, and
// whatever farmer context and conversation history the surface holds.
type Request struct {
	Question string
	Reading  sensors.Reading
	Context  prompt.Context
	History  []prompt.Turn
}

// Response is the pipeline's answer. Fallback reports that the canned
// answer was substituted for the model's output. Count is the daily
// request count after this call.
type Response struct {
	Text     string
	Fallback bool
	Count    int64
}

// Completer is the model client surface the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string, sampling *openrouter.Sampling) (*openrouter.Reply, error)
}

// ErrorStyle selects how a variant presents model-call failures.
type ErrorStyle int

const (
	// DetailedErrors returns descriptive error strings, including the
	// underlying detail for unclassified HTTP failures. Console use.
	DetailedErrors ErrorStyle = iota

	// CannedErrors hides faults behind the canned advice text, except
	// for the rate-limit and timeout cases which get their own copy.
	// Web use.
	CannedErrors

	// TerseErrors collapses every failure to one short message. SMS
	// use, where there is no room for diagnostics.
	TerseErrors
)

// Variant bundles the per-surface knobs: prompt shape, sampling,
// deadline, fallback text, and error presentation.
type Variant struct {
	Name     string
	Prompt   prompt.Options
	Sampling *openrouter.Sampling
	Timeout  time.Duration
	Fallback string
	Errors   ErrorStyle
}

// ConsoleVariant answers interactive terminal sessions: full prompt
// with worked examples, four turns of history, and detailed errors.
func ConsoleVariant() Variant {
	return Variant{
		Name: "console",
		Prompt: prompt.Options{
			System:          prompt.VerboseSystemPrompt(),
			HistoryLimit:    4,
			IncludeExamples: true,
		},
		Timeout:  60 * time.Second,
		Fallback: FallbackAdvice,
		Errors:   DetailedErrors,
	}
}

// WebVariant answers the browser UI and HTTP API: same full prompt as
// the console, tighter deadline, faults hidden behind canned advice.
func WebVariant() Variant {
	return Variant{
		Name: "web",
		Prompt: prompt.Options{
			System:          prompt.VerboseSystemPrompt(),
			HistoryLimit:    4,
			IncludeExamples: true,
		},
		Timeout:  30 * time.Second,
		Fallback: FallbackAdvice,
		Errors:   CannedErrors,
	}
}

// SMSVariant answers text messages: terse prompt targeting 160
// characters, two turns of truncated history, explicit sampling
// parameters, and a long deadline since delivery is already async.
func SMSVariant() Variant {
	return Variant{
		Name: "sms",
		Prompt: prompt.Options{
			System:         prompt.SMSSystemPrompt(),
			HistoryLimit:   2,
			TurnCharBudget: 300,
		},
		Sampling: &openrouter.Sampling{
			MaxTokens:   600,
			Temperature: 0.7,
			TopP:        0.9,
		},
		Timeout:  120 * time.Second,
		Fallback: FallbackAdvice,
		Errors:   TerseErrors,
	}
}

// errorText maps a failed model call to the variant's user-facing
// message. The bool reports a fallback substitution.
func (v Variant) errorText(ce *openrouter.CallError) (string, bool) {
	switch v.Errors {
	case CannedErrors:
		switch ce.Kind {
		case openrouter.ErrRateLimited:
			return "Daily quota exceeded. Please try again tomorrow.", false
		case openrouter.ErrTimeout:
			return "The AI service is experiencing high demand. Here's some general advice based on your conditions:\n\n" + v.Fallback, true
		default:
			return v.Fallback, true
		}
	case TerseErrors:
		return "Error processing your request. Please try again later.", false
	default:
		switch ce.Kind {
		case openrouter.ErrMissingCredential:
			return "Error: OpenRouter API key not configured. Please set the OPENROUTER_API_KEY environment variable.", false
		case openrouter.ErrUnauthorized:
			return "Error: Invalid API key. Please check your OpenRouter API key and try again.", false
		case openrouter.ErrRateLimited:
			return "Error: API rate limit exceeded. Please try again later.", false
		case openrouter.ErrConnection:
			return "Error: Failed to connect to the API service. Please check your internet connection.", false
		case openrouter.ErrTimeout:
			return "Error: Request timed out. The AI service is taking too long to respond.", false
		case openrouter.ErrMalformedReply:
			return "Error: Unexpected response format from the AI service.", false
		default:
			return "Error: HTTP error occurred: " + ce.Detail, false
		}
	}
}

// Pipeline orchestrates one surface's advice flow end to end. Faults
// of any kind come back as fixed advice-shaped text; Ask never returns
// an error.
type Pipeline struct {
	client  Completer
	counter *Counter
	variant Variant
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewPipeline wires a pipeline for one surface. counter is shared
// across surfaces; metrics may be nil.
func NewPipeline(client Completer, counter *Counter, variant Variant, mc *metrics.Collector, logger *slog.Logger) *Pipeline {
	if counter == nil {
		counter = NewCounter(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:  client,
		counter: counter,
		variant: variant,
		metrics: mc,
		logger:  logger.With("surface", variant.Name),
	}
}

// Counter exposes the shared request counter so front-ends can apply
// the budget gate before calling Ask.
func (p *Pipeline) Counter() *Counter { return p.counter }

// Variant returns the surface configuration the pipeline runs with.
func (p *Pipeline) Variant() Variant { return p.variant }

// Ask answers one question. The variant's timeout is layered onto ctx;
// the caller may pass a tighter deadline of its own.
func (p *Pipeline) Ask(ctx context.Context, req Request) Response {
	start := time.Now()

	system, user := prompt.Build(req.Question, req.Reading, req.Context, req.History, p.variant.Prompt)

	callCtx := ctx
	if p.variant.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.variant.Timeout)
		defer cancel()
	}

	reply, err := p.client.Complete(callCtx, system, user, p.variant.Sampling)
	if err != nil {
		var ce *openrouter.CallError
		if !errors.As(err, &ce) {
			ce = &openrouter.CallError{Kind: openrouter.ErrHTTP, Detail: err.Error()}
		}
		p.logger.Warn("advice request failed",
			"kind", ce.Kind.String(),
			"error", err,
		)
		p.metrics.ModelError(ce.Kind.String())

		text, fb := p.variant.errorText(ce)
		return p.finish(text, fb, "error", start)
	}

	text, fb := Normalizer{Fallback: p.variant.Fallback}.Normalize(reply)
	outcome := "ok"
	if fb {
		outcome = "fallback"
		p.logger.Info("substituted canned advice", "reason", "unusable or generic reply")
	}
	return p.finish(text, fb, outcome, start)
}

func (p *Pipeline) finish(text string, fallback bool, outcome string, start time.Time) Response {
	count := p.counter.Count()
	p.metrics.ObserveAdvice(p.variant.Name, outcome, time.Since(start), fallback)
	p.metrics.SetBudgetUsed(count)
	return Response{Text: text, Fallback: fallback, Count: count}
}
