package generate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// IntentClassifierAdapter satisfies engine/intent.LLMClassifier by routing
// its single-prompt Complete call through a Generator, so the intent
// package never imports engine/generate directly (spec §9's dynamic
// dispatch: the two packages are wired together only at composition time).
type IntentClassifierAdapter struct {
	Gen Generator
}

func (a IntentClassifierAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.Gen.Complete(ctx, Request{UserPrompt: prompt})
}

// CrossEncoderAdapter satisfies engine/retrieve.CrossEncoder by asking the
// Generator for a 0-1 relevance score in a structured prompt. No Go
// cross-encoder model exists in the example pack (see DESIGN.md); this
// LLM-prompted scorer is the concrete implementation the retrieve package's
// interface was built to accept.
type CrossEncoderAdapter struct {
	Gen Generator
}

func (a CrossEncoderAdapter) Score(ctx context.Context, query, chunkText string) (float32, error) {
	prompt := fmt.Sprintf(
		"Rate how relevant the following passage is to the query, on a scale from 0.0 (irrelevant) to 1.0 (directly answers it). Reply with only the number.\n\nQuery: %s\n\nPassage:\n%s",
		query, chunkText,
	)
	raw, err := a.Gen.Complete(ctx, Request{UserPrompt: prompt})
	if err != nil {
		return 0, fmt.Errorf("generate: cross-encoder score: %w", err)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
	if err != nil {
		return 0, fmt.Errorf("generate: cross-encoder score: unparseable response %q: %w", raw, err)
	}
	return float32(score), nil
}
