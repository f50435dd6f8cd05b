// Package retrieve implements the Retriever named in spec §4.6: a hybrid
// dense+sparse Qdrant-backed vector store with client-side Reciprocal Rank
// Fusion, metadata filtering, and cross-encoder reranking. The collection
// holds Qdrant's named dense ("dense") and sparse ("sparse") vector spaces
// (768-dim cosine dense, BM25-style sparse).
//
// Fusion runs client-side rather than through Qdrant's native Prefetch +
// FusionQuery(RRF), so the RRF formula is a plain, independently testable
// Go function instead of an opaque server call (spec §8's testable
// property 7 requires exactly this).
package retrieve

import "github.com/brightloom-labs/docrag/engine/embed"

const (
	// DenseVectorSpace and SparseVectorSpace name Qdrant's named vector
	// spaces, matching retrieval.py's ensure_collection config.
	DenseVectorSpace  = "dense"
	SparseVectorSpace = "sparse"

	// DenseDims is nomic-embed-text's output dimension.
	DenseDims = 768
)

// Record is a single chunk's vectors plus its payload, ready to upsert.
type Record struct {
	ID       string
	Dense    []float32
	Sparse   embed.SparseVector
	Payload  map[string]any
}

// Hit is a single ranked retrieval result.
type Hit struct {
	ID      string
	Score   float32
	Content string
	Payload map[string]any
}

// Filters are the mandatory and optional payload-level constraints applied
// to a search. GroupIDs is never optional — every query is scoped to the
// set of groups the caller can access, matched as metadata.group_id ∈
// GroupIDs rather than a single equality test, so a caller with several
// accessible groups searches all of them in one pass. The rest apply only
// when StrictFilters is set, per the Open Question (a) decision in
// DESIGN.md: by default extracted metadata only enriches the query string,
// since extraction is imperfect enough that a hard MUST filter can zero out
// results the keyword boost would otherwise have found.
type Filters struct {
	GroupIDs      []int64
	DocID         string
	VehicleModel  string
	ChassisNo     string
	TestType      string
	StrictFilters bool
}
