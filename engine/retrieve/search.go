package retrieve

import (
	"context"
	"fmt"

	"github.com/brightloom-labs/docrag/engine/embed"
	"github.com/brightloom-labs/docrag/engine/queryfilter"
)

// CandidatePoolSize is how many hits each of the dense and sparse searches
// contributes to fusion before reranking narrows the result down, matching
// retrieval.py's over-fetch-then-fuse-then-rerank pipeline.
const CandidatePoolSize = 40

// VectorSearcher is the subset of *Store the Retriever depends on, narrowed
// so tests can exercise the fuse/rerank orchestration with an in-memory
// double instead of a live Qdrant connection.
type VectorSearcher interface {
	SearchDense(ctx context.Context, vector []float32, limit int, f Filters) ([]Hit, error)
	SearchSparse(ctx context.Context, sparse []float32, indices []uint32, limit int, f Filters) ([]Hit, error)
}

// Retriever is the spec §4.6 entry point: it extracts query filters, embeds
// the query densely and sparsely, searches both Qdrant vector spaces,
// fuses the two ranked lists with RRF, and reranks the fused candidates
// down to the caller's requested k.
type Retriever struct {
	Store       VectorSearcher
	Dense       embed.Dense
	Sparse      embed.Sparse
	CrossEnc    CrossEncoder
	RRFConstant int
}

func NewRetriever(store VectorSearcher, dense embed.Dense, sparse embed.Sparse, ce CrossEncoder) *Retriever {
	return &Retriever{Store: store, Dense: dense, Sparse: sparse, CrossEnc: ce, RRFConstant: DefaultRRFConstant}
}

// Search runs the full retrieve pipeline for one user query, scoped to
// groupIDs (every group the caller can access), and returns the top k
// reranked hits. query-filter extraction only enriches the embedded query
// text (BuildEnhancedQuery); it feeds Filters' scalar fields too, but those
// are only enforced as hard constraints when the caller sets StrictFilters
// (see Open Question (a) in DESIGN.md).
func (r *Retriever) Search(ctx context.Context, query string, groupIDs []int64, strictFilters bool, k int) ([]Hit, error) {
	extracted := queryfilter.Extract(query)
	enhanced := queryfilter.BuildEnhancedQuery(query, extracted)

	filters := Filters{
		GroupIDs:      groupIDs,
		DocID:         extracted.DocID,
		VehicleModel:  extracted.VehicleModel,
		ChassisNo:     extracted.ChassisNo,
		TestType:      extracted.TestType,
		StrictFilters: strictFilters,
	}

	denseVec, err := r.Dense.Embed(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed dense query: %w", err)
	}
	sparseVec, err := r.Sparse.EmbedSparse(ctx, enhanced)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed sparse query: %w", err)
	}

	denseHits, err := r.Store.SearchDense(ctx, denseVec, CandidatePoolSize, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: dense search: %w", err)
	}
	sparseHits, err := r.Store.SearchSparse(ctx, sparseVec.Values, sparseVec.Indices, CandidatePoolSize, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieve: sparse search: %w", err)
	}

	fused := Fuse(r.RRFConstant, denseHits, sparseHits)
	if r.CrossEnc == nil {
		return truncate(fused, k), nil
	}
	return Rerank(ctx, r.CrossEnc, query, fused, k), nil
}
