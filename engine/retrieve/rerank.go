package retrieve

import (
	"context"
	"sort"
	"strings"
)

// MinWordsForRerank is the word-count floor below which a chunk is
// dropped after scoring — short fragments (page numbers, footers) rarely
// carry enough signal to be worth a retrieval slot. Table and
// image-caption chunks are exempt (spec §4.6).
const MinWordsForRerank = 15

// CrossEncoder scores how well a chunk answers a query. No off-the-shelf
// Go cross-encoder model exists (see DESIGN.md), so this package takes the
// scorer as an interface and the caller backs it with an LLM-prompted
// score or a future dedicated reranking service.
type CrossEncoder interface {
	Score(ctx context.Context, query, chunkText string) (float32, error)
}

// Rerank scores every hit against query, drops chunks under
// MinWordsForRerank (unless table/image-exempt), sorts by score
// descending, and returns the top k. If filtering would remove every
// result, the filter is skipped rather than returning nothing. If scoring
// itself fails, Rerank falls back to the hits' original order truncated
// to k — fail-open, since a broken reranker should never zero out
// retrieval entirely.
func Rerank(ctx context.Context, ce CrossEncoder, query string, hits []Hit, k int) []Hit {
	if len(hits) == 0 {
		return nil
	}

	scored := make([]Hit, len(hits))
	copy(scored, hits)
	for i := range scored {
		score, err := ce.Score(ctx, query, scored[i].Content)
		if err != nil {
			return truncate(hits, k)
		}
		scored[i].Score = score
	}

	filtered := make([]Hit, 0, len(scored))
	for _, h := range scored {
		if isRerankExempt(h.Content) || wordCount(h.Content) >= MinWordsForRerank {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		filtered = scored
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	return truncate(filtered, k)
}

func truncate(hits []Hit, k int) []Hit {
	if k > 0 && k < len(hits) {
		return hits[:k]
	}
	return hits
}

// isRerankExempt short-circuits the word-count floor for table or
// captioned-image chunks, which stay eligible regardless of length since
// tables especially are information-dense per word.
func isRerankExempt(text string) bool {
	return strings.Contains(text, "[Image") ||
		strings.Contains(text, "[TABLE") ||
		strings.Contains(text, "|")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
