// Package prompt builds the system and user instructions sent to the
// chat-completion endpoint.
//
// Prompt construction is pure string composition in a fixed field order:
// question, sensor readings with unit suffixes, current month, optional
// crop context, optional bounded conversation history, optional worked
// examples. Free-text fields are interpolated verbatim — the instruction
// is plain natural language, not a structured format, so no escaping is
// performed. This is a deliberate property of the design.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agriguardian/agriguardian/internal/sensors"
)

// Turn is one entry of a caller-owned conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Context carries optional farmer and crop personalization fields.
// Zero-value fields are omitted from the prompt.
type Context struct {
	Crops    string `json:"crops"`
	Stage    string `json:"stage"`
	Issues   string `json:"issues,omitempty"`
	Location string `json:"location,omitempty"`
	FarmSize string `json:"farm_size,omitempty"` // hectares, free text
}

// Empty reports whether the context carries no usable fields.
func (c Context) Empty() bool {
	return c.Crops == "" && c.Stage == "" && c.Issues == "" && c.Location == "" && c.FarmSize == ""
}

// Options select the per-variant knobs of prompt construction. The
// system instruction itself is a static string chosen by the caller.
type Options struct {
	// System is the variant's static system instruction.
	System string

	// HistoryLimit keeps only the most recent N turns. Zero drops the
	// history entirely. Truncation happens here, at the call boundary;
	// the caller's history is never mutated.
	HistoryLimit int

	// TurnCharBudget truncates each rendered turn's content to this
	// many characters. Zero means unlimited.
	TurnCharBudget int

	// IncludeExamples appends the worked-examples block and the
	// detailed closing instruction (verbose variants only).
	IncludeExamples bool

	// Now supplies the wall clock for the month field. Nil uses time.Now.
	Now func() time.Time
}

// Build assembles the (system, user) instruction pair for one question.
// It is pure string composition and cannot fail.
func Build(question string, reading sensors.Reading, ctx Context, history []Turn, opts Options) (system, user string) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "FARMER QUESTION: %s\n\n", question)

	sb.WriteString("CURRENT FARM CONDITIONS:\n")
	fmt.Fprintf(&sb, "- Temperature: %s°C\n", formatNumber(reading.Temperature))
	fmt.Fprintf(&sb, "- Humidity: %s%%\n", formatNumber(reading.Humidity))
	fmt.Fprintf(&sb, "- Soil Moisture: %s%%\n", formatNumber(reading.SoilMoisture))
	fmt.Fprintf(&sb, "- Light Level: %s Lux\n", formatNumber(reading.LightLevel))
	fmt.Fprintf(&sb, "- Rainfall (Last 24h): %smm\n", formatNumber(reading.RainfallLast24h))
	fmt.Fprintf(&sb, "- Current Month: %s\n", now().Month().String())
	fmt.Fprintf(&sb, "- Date/Time: %s\n", reading.Timestamp)

	if !ctx.Empty() {
		sb.WriteString("\nCROP INFORMATION:\n")
		if ctx.Crops != "" {
			fmt.Fprintf(&sb, "- Main crops: %s\n", ctx.Crops)
		}
		if ctx.Stage != "" {
			fmt.Fprintf(&sb, "- Growth stage: %s\n", ctx.Stage)
		}
		if ctx.Issues != "" {
			fmt.Fprintf(&sb, "- Reported issues: %s\n", ctx.Issues)
		}
		if ctx.Location != "" {
			fmt.Fprintf(&sb, "- Location: %s\n", ctx.Location)
		}
		if ctx.FarmSize != "" {
			fmt.Fprintf(&sb, "- Farm size: %s hectares\n", ctx.FarmSize)
		}
	}

	if trimmed := trimHistory(history, opts.HistoryLimit); len(trimmed) > 0 {
		sb.WriteString("\nPREVIOUS CONVERSATION:\n")
		for _, turn := range trimmed {
			role := "ASSISTANT"
			if turn.Role == "user" {
				role = "FARMER"
			}
			fmt.Fprintf(&sb, "%s: %s\n\n", role, truncate(turn.Content, opts.TurnCharBudget))
		}
	}

	if opts.IncludeExamples {
		sb.WriteString("\n")
		sb.WriteString(workedExamples)
		sb.WriteString("\n\n")
		sb.WriteString(detailedClosing)
	} else {
		sb.WriteString("\n")
		sb.WriteString(briefClosing)
	}

	return opts.System, sb.String()
}

// trimHistory returns the most recent limit turns without mutating the
// caller's slice. A limit of zero drops the history.
func trimHistory(history []Turn, limit int) []Turn {
	if limit <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

// truncate shortens s to at most budget runes. Zero budget is unlimited.
func truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget]) + "..."
}

// formatNumber renders a sensor value without trailing zeros, so a
// whole-number humidity reads "65" and a fractional one "32.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
