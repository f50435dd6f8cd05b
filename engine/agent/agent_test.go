package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/embed"
	"github.com/brightloom-labs/docrag/engine/generate"
	"github.com/brightloom-labs/docrag/engine/retrieve"
)

type stubClassifier struct{}

func (stubClassifier) Complete(_ context.Context, _ string) (string, error) { return "DOCUMENT_QUERY", nil }

type stubSearcher struct{ hits []retrieve.Hit }

func (s stubSearcher) SearchDense(_ context.Context, _ []float32, _ int, _ retrieve.Filters) ([]retrieve.Hit, error) {
	return s.hits, nil
}
func (s stubSearcher) SearchSparse(_ context.Context, _ []float32, _ []uint32, _ int, _ retrieve.Filters) ([]retrieve.Hit, error) {
	return nil, nil
}

type stubDense struct{}

func (stubDense) Embed(_ context.Context, _ string) ([]float32, error) { return []float32{0.1}, nil }
func (stubDense) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type stubSparse struct{}

func (stubSparse) EmbedSparse(_ context.Context, _ string) (embed.SparseVector, error) {
	return embed.SparseVector{}, nil
}

type stubGenerator struct{ response string }

func (s stubGenerator) Complete(_ context.Context, _ generate.Request) (string, error) {
	return s.response, nil
}
func (s stubGenerator) Stream(_ context.Context, _ generate.Request) (<-chan generate.Delta, error) {
	out := make(chan generate.Delta, 2)
	out <- generate.Delta{Text: "hel"}
	out <- generate.Delta{Text: "lo"}
	close(out)
	return out, nil
}

func newTestGraph(hits []retrieve.Hit, genResponse string) *Graph {
	retriever := retrieve.NewRetriever(stubSearcher{hits: hits}, stubDense{}, stubSparse{}, nil)
	return &Graph{
		Classifier: stubClassifier{},
		Retriever:  retriever,
		Generator:  stubGenerator{response: genResponse},
	}
}

func TestGraph_Run_GreetingSkipsRetrievalAndGeneration(t *testing.T) {
	g := newTestGraph(nil, "should not be used")
	state, err := g.Run(context.Background(), State{Query: "hello there"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Intent != "greeting" {
		t.Fatalf("intent = %s, want greeting", state.Intent)
	}
	if state.Response == "" || state.Chunks != nil {
		t.Errorf("greeting should produce a canned response with no retrieval, got %+v", state)
	}
}

func TestGraph_Run_OutOfScopeReturnsRefusal(t *testing.T) {
	g := newTestGraph(nil, "should not be used")
	state, err := g.Run(context.Background(), State{Query: "tell me a joke"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Intent != "out_of_scope" {
		t.Fatalf("intent = %s, want out_of_scope", state.Intent)
	}
	if state.Chunks != nil {
		t.Errorf("out-of-scope should skip retrieval")
	}
}

func TestGraph_Run_DocumentQueryRetrievesAndGenerates(t *testing.T) {
	hits := []retrieve.Hit{{ID: "a", Content: "the brake torque is 825 Nm", Payload: map[string]any{"filename": "report.pdf"}}}
	g := newTestGraph(hits, "the torque is 825 Nm [Page 0, report.pdf]")

	state, err := g.Run(context.Background(), State{Query: "what is the brake torque", GroupID: 1, GroupProfile: domain.ProfileTechnical})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.Sources) != 1 || state.Sources[0].Filename != "report.pdf" {
		t.Errorf("expected one source carrying the filename, got %+v", state.Sources)
	}
	if state.Response == "" {
		t.Errorf("expected a generated response")
	}
}

func TestGraph_Run_EmptyRetrievalReturnsNotAvailableResponse(t *testing.T) {
	g := newTestGraph(nil, "unused")
	state, err := g.Run(context.Background(), State{Query: "what is the brake torque", GroupID: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Response != generate.NotAvailableResponse {
		t.Errorf("response = %q, want the not-available refusal", state.Response)
	}
}

func TestGraph_RunStreaming_CopiesDeltasToChannel(t *testing.T) {
	hits := []retrieve.Hit{{ID: "a", Content: "some long chunk text here"}}
	g := newTestGraph(hits, "unused")

	out := make(chan generate.Delta, 8)
	state, err := g.RunStreaming(context.Background(), State{Query: "what is the brake torque", GroupID: 1}, out)
	if err != nil {
		t.Fatalf("RunStreaming: %v", err)
	}

	var got string
	for d := range out {
		got += d.Text
	}
	if got != "hello" {
		t.Errorf("streamed deltas = %q, want hello", got)
	}
	if state.Response != "hello" {
		t.Errorf("state.Response = %q, want hello", state.Response)
	}
}

func TestFormatHistory_TruncatesToLastFiveTurns(t *testing.T) {
	turns := make([]HistoryTurn, 8)
	for i := range turns {
		turns[i] = HistoryTurn{Role: domain.RoleUser, Content: string(rune('a' + i))}
	}
	out := formatHistory(turns)
	if strings.Count(out, "\n") != MaxHistoryTurns-1 {
		t.Errorf("expected exactly %d lines, got %q", MaxHistoryTurns, out)
	}
	if strings.Contains(out, ": a\n") || strings.HasSuffix(out, ": a") {
		t.Errorf("history should drop the earliest turn, got %q", out)
	}
}

func TestSourceFromHit_ReadsSectionFromPayload(t *testing.T) {
	hit := retrieve.Hit{
		Content: "brake torque 825 Nm",
		Payload: map[string]any{
			"filename":    "report.pdf",
			"group_id":    int64(4),
			"page_number": int64(2),
			"section":     "Test Results",
		},
	}

	src := sourceFromHit(hit)

	if src.Section != "Test Results" {
		t.Errorf("section = %q, want %q", src.Section, "Test Results")
	}
	if src.Filename != "report.pdf" || src.GroupID != 4 {
		t.Errorf("unexpected source = %+v", src)
	}
}

func TestRetrieveStage_FallsBackToStateGroupIDWhenAccessibleGroupsEmpty(t *testing.T) {
	hit := retrieve.Hit{Content: "text"}
	g := newTestGraph([]retrieve.Hit{hit}, "answer")

	state, err := g.Run(context.Background(), State{Query: "what is the brake torque", GroupID: 9})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.Chunks) != 1 {
		t.Errorf("want 1 retrieved chunk using the fallback group id, got %d", len(state.Chunks))
	}
}
