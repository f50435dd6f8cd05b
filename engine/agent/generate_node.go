package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/generate"
	"github.com/brightloom-labs/docrag/pkg/fn"
)

// generateStage formats the retrieved chunks and recent history into a
// prompt and invokes the Generator, per spec §4.8: "formats context by
// concatenating `Source [name, Page n, section]: <text>` blocks, appends
// the last five history turns as `ROLE: content`". If out is non-nil the
// call streams and copies every delta into it; otherwise it buffers.
func (g *Graph) generateStage(out chan<- generate.Delta) fn.Stage[State, State] {
	return func(ctx context.Context, state State) fn.Result[State] {
		if len(state.Chunks) == 0 {
			state.Response = generate.NotAvailableResponse
			if out != nil {
				out <- generate.Delta{Text: state.Response}
			}
			return fn.Ok(state)
		}

		contextText := formatContext(state.Sources)
		history := formatHistory(state.History)
		req := generate.BuildPrompt(state.GroupProfile, contextText, state.Query, history)

		start := time.Now()
		if out == nil {
			text, err := g.Generator.Complete(ctx, req)
			state.GenerationLatencyMS = time.Since(start).Milliseconds()
			if err != nil {
				return fn.Err[State](err)
			}
			state.Response = text
			return fn.Ok(state)
		}

		deltas, err := g.Generator.Stream(ctx, req)
		if err != nil {
			state.GenerationLatencyMS = time.Since(start).Milliseconds()
			return fn.Err[State](err)
		}

		var sb strings.Builder
		for d := range deltas {
			if d.Err != nil {
				state.GenerationLatencyMS = time.Since(start).Milliseconds()
				return fn.Err[State](d.Err)
			}
			sb.WriteString(d.Text)
			out <- d
		}
		state.GenerationLatencyMS = time.Since(start).Milliseconds()
		state.Response = sb.String()
		return fn.Ok(state)
	}
}

// formatContext renders each retrieved chunk as "Source [name, Page n,
// section]: <text>". The section segment is omitted entirely when the
// chunk carries none.
func formatContext(sources []domain.Source) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		page := 0
		if s.PageNumber != nil {
			page = *s.PageNumber
		}
		name := s.Filename
		if name == "" {
			name = "document"
		}
		label := fmt.Sprintf("%s, Page %d", name, page)
		if s.Section != "" {
			label += ", " + s.Section
		}
		blocks[i] = fmt.Sprintf("Source [%s]: %s", label, s.FullText)
	}
	return strings.Join(blocks, "\n\n")
}

func formatHistory(turns []HistoryTurn) string {
	if len(turns) == 0 {
		return ""
	}
	start := 0
	if len(turns) > MaxHistoryTurns {
		start = len(turns) - MaxHistoryTurns
	}
	lines := make([]string, 0, len(turns)-start)
	for _, t := range turns[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(t.Role)), t.Content))
	}
	return strings.Join(lines, "\n")
}
