package retrieve

import (
	"context"
	"testing"

	"github.com/brightloom-labs/docrag/engine/embed"
)

type stubDense struct{ vec []float32 }

func (d stubDense) Embed(_ context.Context, _ string) ([]float32, error) { return d.vec, nil }
func (d stubDense) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = d.vec
	}
	return out, nil
}

type stubSparse struct{ vec embed.SparseVector }

func (s stubSparse) EmbedSparse(_ context.Context, _ string) (embed.SparseVector, error) {
	return s.vec, nil
}

type stubSearcher struct {
	dense, sparse []Hit
	gotFilters    []Filters
}

func (s *stubSearcher) SearchDense(_ context.Context, _ []float32, _ int, f Filters) ([]Hit, error) {
	s.gotFilters = append(s.gotFilters, f)
	return s.dense, nil
}

func (s *stubSearcher) SearchSparse(_ context.Context, _ []float32, _ []uint32, _ int, f Filters) ([]Hit, error) {
	s.gotFilters = append(s.gotFilters, f)
	return s.sparse, nil
}

func TestRetriever_Search_FusesDenseAndSparse(t *testing.T) {
	searcher := &stubSearcher{
		dense:  []Hit{{ID: "a", Content: longText("alpha", 20)}, {ID: "b", Content: longText("bravo", 20)}},
		sparse: []Hit{{ID: "b", Content: longText("bravo", 20)}},
	}
	r := NewRetriever(searcher, stubDense{vec: []float32{0.1, 0.2}}, stubSparse{}, nil)

	hits, err := r.Search(context.Background(), "brake test for Pro5000", []int64{42}, false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 fused hits, got %d", len(hits))
	}
	// b appears in both lists so it should rank first.
	if hits[0].ID != "b" {
		t.Errorf("top hit = %s, want b (present in both dense and sparse)", hits[0].ID)
	}
}

func TestRetriever_Search_ScopesEveryCallToGroupIDs(t *testing.T) {
	searcher := &stubSearcher{dense: []Hit{{ID: "a"}}, sparse: []Hit{{ID: "a"}}}
	r := NewRetriever(searcher, stubDense{}, stubSparse{}, nil)

	_, err := r.Search(context.Background(), "plain query", []int64{7, 9}, false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, f := range searcher.gotFilters {
		if len(f.GroupIDs) != 2 || f.GroupIDs[0] != 7 || f.GroupIDs[1] != 9 {
			t.Errorf("filter.GroupIDs = %v, want [7 9] on every search call", f.GroupIDs)
		}
	}
}

func TestRetriever_Search_SkipsRerankWhenNoCrossEncoder(t *testing.T) {
	searcher := &stubSearcher{dense: []Hit{{ID: "a"}}, sparse: nil}
	r := NewRetriever(searcher, stubDense{}, stubSparse{}, nil)

	hits, err := r.Search(context.Background(), "query", []int64{1}, false, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("expected fused-only result without reranking, got %+v", hits)
	}
}
