package advice

import (
	"strings"
	"unicode/utf8"

	"github.com/agriguardian/agriguardian/internal/openrouter"
)

const (
	// MaxAdviceChars caps normalized output length.
	MaxAdviceChars = 1500

	// genericTextFloor is the length below which a reply matching a
	// generic phrase is discarded. Longer replies keep their text even
	// when a guarded phrase appears, since they carry enough substance
	// around it.
	genericTextFloor = 200

	// reasoningPrefixChars bounds how much raw reasoning text is kept
	// when no extraction marker is found.
	reasoningPrefixChars = 1200
)

// Lead-ins prepended to text recovered from the reasoning field.
const (
	actionLeadIn = "Here's what you should do based on your current conditions:\n\n"
	assessLeadIn = "Based on your farm conditions, here's my assessment:\n\n"
)

// genericPhrases mark evasive answers. Matched case-insensitively, so
// entries are lowercase.
var genericPhrases = []string{
	"monitor your crops closely",
	"provide more details",
	"for more specific advice",
	"i need more information",
	"provide details about your crop",
}

// reasoningRules are tried in order against the reasoning field. The
// first marker present wins; nested markers narrow the slice further
// when the outer marker introduces analysis rather than instructions.
type reasoningRule struct {
	marker string
	nested []string
}

var reasoningRules = []reasoningRule{
	{marker: "Actionable steps:"},
	{marker: "Analysis:", nested: []string{
		"Solution:", "Actions:", "Recommendations:", "Steps:", "What to do:",
	}},
}

// actionMarkers identify instruction-bearing sections when an overlong
// reply needs condensing.
var actionMarkers = []string{
	"Actionable steps:",
	"Immediate Actions",
	"Actions:",
	"Recommendations:",
	"Steps:",
	"Solution:",
	"What to do:",
}

// Normalizer turns a raw model reply into farmer-facing advice text.
// The zero value works but substitutes an empty fallback; callers set
// Fallback to their variant's canned answer.
type Normalizer struct {
	Fallback string
}

// Normalize extracts, bounds, and quality-checks the reply. The second
// return value reports whether the canned fallback was substituted. It
// never returns an empty string and never panics, whatever shape the
// reply has.
func (n Normalizer) Normalize(reply *openrouter.Reply) (string, bool) {
	text := extract(reply)
	if text == "" {
		return n.Fallback, true
	}
	text = capLength(text)
	if tooGeneric(text) {
		return n.Fallback, true
	}
	return text, false
}

// extract pulls usable text out of the first choice, falling back to
// the reasoning field when content is empty.
func extract(reply *openrouter.Reply) string {
	if reply == nil || len(reply.Choices) == 0 {
		return ""
	}
	msg := reply.Choices[0].Message
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text
	}
	return fromReasoning(strings.TrimSpace(msg.Reasoning))
}

// fromReasoning slices instruction text out of a reasoning dump. With
// no recognized marker it keeps a bounded prefix under a generic
// lead-in rather than dropping the answer entirely.
func fromReasoning(reasoning string) string {
	if reasoning == "" {
		return ""
	}
	for _, rule := range reasoningRules {
		idx := strings.Index(reasoning, rule.marker)
		if idx < 0 {
			continue
		}
		rest := reasoning[idx+len(rule.marker):]
		for _, nested := range rule.nested {
			if j := strings.Index(rest, nested); j >= 0 {
				rest = rest[j+len(nested):]
				break
			}
		}
		return actionLeadIn + strings.TrimSpace(rest)
	}
	return assessLeadIn + truncateRunes(reasoning, reasoningPrefixChars)
}

// capLength enforces MaxAdviceChars. Overlong replies first collapse to
// just their action-oriented sections; with none present the text is
// hard-truncated with an ellipsis.
func capLength(text string) string {
	if utf8.RuneCountInString(text) <= MaxAdviceChars {
		return text
	}
	if sections := actionSections(text); sections != "" {
		return truncateRunes(sections, MaxAdviceChars)
	}
	return truncateRunes(text, MaxAdviceChars)
}

// actionSections joins the paragraphs introduced by a known action
// marker, dropping the surrounding analysis.
func actionSections(text string) string {
	var kept []string
	for _, para := range strings.Split(text, "\n\n") {
		for _, marker := range actionMarkers {
			if strings.Contains(para, marker) {
				kept = append(kept, strings.TrimSpace(para))
				break
			}
		}
	}
	return strings.Join(kept, "\n\n")
}

// tooGeneric reports whether a short reply is an evasive non-answer.
func tooGeneric(text string) bool {
	if utf8.RuneCountInString(text) >= genericTextFloor {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range genericPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
