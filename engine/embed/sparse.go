package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// HashingSparse is a BM25-flavored sparse embedder: terms are hashed into a
// fixed index space (so the sparse vector space has a stable dimension
// without a persisted vocabulary), weighted by log-scaled term frequency.
// No Go BM25/fastembed equivalent exists in the example pack (see
// DESIGN.md); this is the one component built on the standard library by
// necessity rather than preference.
type HashingSparse struct {
	// Buckets bounds the hashed index space.
	Buckets uint32
}

func NewHashingSparse() *HashingSparse {
	return &HashingSparse{Buckets: 1 << 18}
}

func (s *HashingSparse) EmbedSparse(_ context.Context, text string) (SparseVector, error) {
	terms := tokenRe.FindAllString(strings.ToLower(text), -1)
	if len(terms) == 0 {
		return SparseVector{}, nil
	}

	counts := make(map[uint32]int, len(terms))
	order := make([]uint32, 0, len(terms))
	for _, term := range terms {
		idx := s.bucket(term)
		if _, ok := counts[idx]; !ok {
			order = append(order, idx)
		}
		counts[idx]++
	}

	indices := make([]uint32, len(order))
	values := make([]float32, len(order))
	for i, idx := range order {
		tf := float64(counts[idx])
		// 1 + log(tf) is the standard BM25-style term-frequency dampening;
		// the idf term is omitted since this adapter has no corpus-wide
		// document frequency statistics to draw on.
		values[i] = float32(1 + math.Log(tf))
		indices[i] = idx
	}
	return SparseVector{Indices: indices, Values: values}, nil
}

func (s *HashingSparse) bucket(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32() % s.Buckets
}
