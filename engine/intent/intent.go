// Package intent implements the intent classifier named in spec §4.5: a
// rule-based fast path over fixed regex catalogues, falling back to an LLM
// call when confidence is below the 0.75 threshold.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Intent is the routing decision the agent graph dispatches on.
type Intent string

const (
	Greeting      Intent = "greeting"
	DocumentQuery Intent = "document_query"
	FollowUp      Intent = "follow_up"
	Clarification Intent = "clarification"
	OutOfScope    Intent = "out_of_scope"
)

// LLMThreshold is the confidence floor below which the rule-based fast path
// defers to the LLM fallback.
const LLMThreshold = 0.75

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|good\s*(morning|afternoon|evening)|greetings)(\s+there)?[\s!.,]*$`),
	regexp.MustCompile(`(?i)^(how\s+are\s+you|what'?s\s+up|howdy)[\s!?,]*$`),
	regexp.MustCompile(`(?i)^((thanks?|thank\s+you|bye|goodbye|see\s+you)[\s!.,]*)+$`),
}

var followUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(what|which|how|where|when|why|who)\s+(about|is|are|was|were)\s+(it|this|that|these|those)`),
	regexp.MustCompile(`(?i)^(tell\s+me\s+more|more\s+details|explain|elaborate)`),
	regexp.MustCompile(`(?i)^(and|also|additionally|furthermore)`),
	regexp.MustCompile(`(?i)^(can\s+you|could\s+you)\s+(also|explain|show)`),
}

var outOfScopePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(weather|news|joke|song|music|movie|game|sport)`),
	regexp.MustCompile(`(?i)(write\s+code|python|javascript|programming)`),
	regexp.MustCompile(`(?i)(recipe|cook|food|restaurant)`),
}

// LLMClassifier is the minimal surface this package needs from a
// generator — kept separate from engine/generate.Generator so intent has
// no dependency on the generation package's full interface.
type LLMClassifier interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClassifyRuleBased is the fast path: regex matching only, no network call.
func ClassifyRuleBased(query string, hasHistory bool) (Intent, float64) {
	q := strings.ToLower(strings.TrimSpace(query))

	for _, p := range greetingPatterns {
		if p.MatchString(q) {
			return Greeting, 0.95
		}
	}

	if hasHistory {
		for _, p := range followUpPatterns {
			if p.MatchString(q) {
				return FollowUp, 0.85
			}
		}
		if len(strings.Fields(q)) <= 3 {
			return FollowUp, 0.7
		}
	}

	for _, p := range outOfScopePatterns {
		if p.MatchString(q) {
			return OutOfScope, 0.8
		}
	}

	return DocumentQuery, 0.9
}

// ClassifyLLM asks the generator to name the intent when the rule-based
// pass is uncertain, falling back to the rule-based result if the call
// fails, and to document_query at 0.6 confidence if the response names no
// known intent.
func ClassifyLLM(ctx context.Context, llm LLMClassifier, query string, history []string) (Intent, float64) {
	historyContext := "(No history)"
	if len(history) > 0 {
		start := 0
		if len(history) > 3 {
			start = len(history) - 3
		}
		historyContext = strings.Join(history[start:], "\n")
	}

	prompt := fmt.Sprintf(`Classify the user's intent into exactly one of these categories:
- GREETING: Simple greetings, thanks, or farewells
- DOCUMENT_QUERY: Questions about vehicle documents, test reports, specifications
- FOLLOW_UP: Continuation or clarification of previous conversation
- OUT_OF_SCOPE: Questions unrelated to vehicle documentation

Conversation history:
%s

User message: %s

Respond with ONLY the category name (e.g., DOCUMENT_QUERY):`, historyContext, query)

	response, err := llm.Complete(ctx, prompt)
	if err != nil {
		return ClassifyRuleBased(query, len(history) > 0)
	}

	upper := strings.ToUpper(strings.TrimSpace(response))
	for _, candidate := range []Intent{Greeting, DocumentQuery, FollowUp, Clarification, OutOfScope} {
		if strings.Contains(upper, strings.ToUpper(string(candidate))) {
			return candidate, 0.9
		}
	}
	return DocumentQuery, 0.6
}

// Classify runs the rule-based fast path, escalating to the LLM fallback
// only when confidence is below LLMThreshold (spec §4.5).
func Classify(ctx context.Context, llm LLMClassifier, query string, history []string) (Intent, float64) {
	result, confidence := ClassifyRuleBased(query, len(history) > 0)
	if confidence < LLMThreshold {
		return ClassifyLLM(ctx, llm, query, history)
	}
	return result, confidence
}
