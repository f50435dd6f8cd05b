// Package embed implements the embedding adapters named in spec §4.1: dense
// vectors for arbitrary text, sparse (BM25-style) vectors for the same text,
// and a pass-through to the vision-OCR/captioning model used by the
// extractor. Adapters are interchangeable per spec §9's "dynamic dispatch"
// design note.
package embed

import "context"

// Dense produces a continuous embedding vector for text, one call per text
// and one batched call per slice of texts.
type Dense interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SparseVector is a (indices, values) lexical term vector, the wire shape
// Qdrant's sparse vector space expects.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Sparse produces a BM25-style sparse vector for text.
type Sparse interface {
	EmbedSparse(ctx context.Context, text string) (SparseVector, error)
}

// Vision captions an embedded raster image and, separately, transcribes a
// page image via OCR. OllamaVision bounds OCR by OCRTimeout (600s) and
// Caption by CaptionTimeout (300s).
type Vision interface {
	Caption(ctx context.Context, imageBytes []byte) (string, error)
	OCR(ctx context.Context, imageBytes []byte) (string, error)
}
