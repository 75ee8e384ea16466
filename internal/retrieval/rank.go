package retrieval

import (
	"sort"

	"journalrag/internal/chunk"
)

// Score converts a store distance into a similarity.
func Score(distance float64) float64 {
	return 1 - distance
}

// ToHits scores candidates and keeps store order.
func ToHits(candidates []chunk.Candidate) []chunk.Hit {
	hits := make([]chunk.Hit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, chunk.Hit{
			ChunkID:     c.Chunk.ID,
			SourceDocID: c.Chunk.SourceDocID,
			Text:        c.Chunk.Text,
			Score:       Score(c.Distance),
		})
	}
	return hits
}

// Rank scores candidates, drops those below minScore, orders the rest by
// score descending (ties keep fetch order) and keeps at most k.
func Rank(candidates []chunk.Candidate, minScore float64, k int) []chunk.Hit {
	kept := make([]chunk.Hit, 0, len(candidates))
	for _, h := range ToHits(candidates) {
		if h.Score >= minScore {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	if k >= 0 && len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// IDs returns the chunk ids of hits in order.
func IDs(hits []chunk.Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	return ids
}
