// Package agent implements the Agent graph named in spec §4.8: a
// deterministic state machine compiled once per process, restructuring a
// linear embed→search→chat pipeline into classify_intent →
// {greeting, out_of_scope, extract_filters → retrieve → generate}. Nodes
// are pkg/fn Stage[State, State] values composed with fn.Pipeline/
// fn.TracedStage rather than ad hoc control flow.
package agent

import (
	"context"
	"time"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/generate"
	"github.com/brightloom-labs/docrag/engine/intent"
	"github.com/brightloom-labs/docrag/engine/queryfilter"
	"github.com/brightloom-labs/docrag/engine/retrieve"
	"github.com/brightloom-labs/docrag/pkg/fn"
)

// MaxHistoryTurns is how many past turns are appended to the generation
// prompt, per spec §4.8 ("the last five history turns").
const MaxHistoryTurns = 5

// HistoryTurn is one prior conversation turn, rendered as "ROLE: content".
type HistoryTurn struct {
	Role    domain.MessageRole
	Content string
}

// State is carried through every node of the graph (spec §4.8's field
// list, unchanged in meaning).
type State struct {
	Query              string
	SessionID          string
	UserID             int64
	GroupID            int64
	AccessibleGroupIDs []int64
	GroupProfile       domain.GroupProfile
	History            []HistoryTurn

	Intent     intent.Intent
	Confidence float64

	Filters       queryfilter.Filters
	EnhancedQuery string

	Chunks  []retrieve.Hit
	Sources []domain.Source

	Response string

	RetrievalLatencyMS  int64
	GenerationLatencyMS int64
}

// Graph holds the dependencies every node needs. It is compiled once per
// process and reused across requests/sessions — nodes are pure functions of
// State plus these fixed collaborators.
type Graph struct {
	Classifier intent.LLMClassifier
	Retriever  *retrieve.Retriever
	Generator  generate.Generator
}

// Run executes the full graph for one query and returns the final state.
// Streaming callers should use RunStreaming instead, which copies generation
// deltas into out as they arrive.
func (g *Graph) Run(ctx context.Context, state State) (State, error) {
	return g.run(ctx, state, nil)
}

// RunStreaming is Run's streaming counterpart: the generate node copies each
// delta into out before returning, per spec §4.8's "on streaming mode it
// copies each delta into the agent's output channel" requirement. out is
// closed by this call before it returns.
func (g *Graph) RunStreaming(ctx context.Context, state State, out chan<- generate.Delta) (State, error) {
	defer close(out)
	return g.run(ctx, state, out)
}

// run dispatches on classify_intent's result, then — for the else branch —
// composes extract_filters → retrieve → generate as a single fn.Pipeline.
// out is nil for the buffered path; non-nil activates streaming generation.
func (g *Graph) run(ctx context.Context, state State, out chan<- generate.Delta) (State, error) {
	classified := fn.TracedStage("classify_intent", g.classifyIntentStage())(ctx, state)
	state, err := classified.Unwrap()
	if err != nil {
		return state, err
	}

	switch state.Intent {
	case intent.Greeting:
		state.Response = generate.GreetingResponse(state.Query)
		if out != nil {
			out <- generate.Delta{Text: state.Response}
		}
		return state, nil
	case intent.OutOfScope:
		state.Response = handleRefusal()
		if out != nil {
			out <- generate.Delta{Text: state.Response}
		}
		return state, nil
	}

	pipeline := fn.Pipeline(
		fn.TracedStage("extract_filters", extractFiltersStage),
		fn.TracedStage("retrieve", g.retrieveStage()),
		fn.TracedStage("generate", g.generateStage(out)),
	)
	result := pipeline(ctx, state)
	return result.Unwrap()
}

func (g *Graph) classifyIntentStage() fn.Stage[State, State] {
	return func(ctx context.Context, state State) fn.Result[State] {
		history := make([]string, len(state.History))
		for i, h := range state.History {
			history[i] = h.Content
		}
		in, conf := intent.Classify(ctx, g.Classifier, state.Query, history)
		state.Intent = in
		state.Confidence = conf
		return fn.Ok(state)
	}
}

func extractFiltersStage(_ context.Context, state State) fn.Result[State] {
	state.Filters = queryfilter.Extract(state.Query)
	state.EnhancedQuery = queryfilter.BuildEnhancedQuery(state.Query, state.Filters)
	return fn.Ok(state)
}

func (g *Graph) retrieveStage() fn.Stage[State, State] {
	return func(ctx context.Context, state State) fn.Result[State] {
		groups := state.AccessibleGroupIDs
		if len(groups) == 0 {
			groups = []int64{state.GroupID}
		}

		start := time.Now()
		hits, err := g.Retriever.Search(ctx, state.EnhancedQuery, groups, state.Filters.Any(), retrieve.CandidatePoolSize)
		state.RetrievalLatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			return fn.Err[State](err)
		}

		state.Chunks = hits
		state.Sources = make([]domain.Source, len(hits))
		for i, h := range hits {
			state.Sources[i] = sourceFromHit(h)
		}
		return fn.Ok(state)
	}
}

func sourceFromHit(h retrieve.Hit) domain.Source {
	src := domain.Source{Score: h.Score, TextSnippet: snippet(h.Content, 240), FullText: h.Content}
	if name, ok := h.Payload["filename"].(string); ok {
		src.Filename = name
	}
	if path, ok := h.Payload["file_path"].(string); ok {
		src.FilePath = path
	}
	if section, ok := h.Payload["section"].(string); ok {
		src.Section = section
	}
	if gid, ok := h.Payload["group_id"].(int64); ok {
		src.GroupID = gid
	}
	if page, ok := h.Payload["page_number"].(int64); ok {
		p := int(page)
		src.PageNumber = &p
	}
	return src
}

func snippet(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}

func handleRefusal() string {
	return "I can only answer questions about the vehicle test documentation you've uploaded. Could you ask something related to that?"
}
