package retrieve

import "sort"

// DefaultRRFConstant is the k in 1/(k+rank); 60 is the standard RRF
// constant used across the literature and the value Qdrant's own
// FusionQuery(RRF) defaults to.
const DefaultRRFConstant = 60

// Fuse combines two ranked result lists (e.g. dense and sparse search
// hits, each already sorted best-first) via Reciprocal Rank Fusion:
// score(id) = sum over lists containing id of 1/(k + rank), rank 1-based.
// A hit present in both lists accumulates both terms. Ties are broken by
// the smaller rank in the first list (spec §8 testable property 7).
func Fuse(k int, lists ...[]Hit) []Hit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type accum struct {
		hit       Hit
		score     float64
		firstRank int
		sawFirst  bool
	}
	scores := make(map[string]*accum)
	var order []string

	for listIdx, list := range lists {
		for rank, hit := range list {
			a, ok := scores[hit.ID]
			if !ok {
				a = &accum{hit: hit, firstRank: 1<<31 - 1}
				scores[hit.ID] = a
				order = append(order, hit.ID)
			}
			a.score += 1.0 / float64(k+rank+1)
			if listIdx == 0 {
				a.firstRank = rank + 1
				a.sawFirst = true
			} else if !a.sawFirst && rank+1 < a.firstRank {
				a.firstRank = rank + 1
			}
			if a.hit.Content == "" && hit.Content != "" {
				a.hit.Content = hit.Content
			}
			if a.hit.Payload == nil {
				a.hit.Payload = hit.Payload
			}
		}
	}

	fused := make([]Hit, 0, len(order))
	ranks := make(map[string]int, len(order))
	for _, id := range order {
		a := scores[id]
		a.hit.Score = float32(a.score)
		fused = append(fused, a.hit)
		ranks[id] = a.firstRank
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return ranks[fused[i].ID] < ranks[fused[j].ID]
	})

	return fused
}
