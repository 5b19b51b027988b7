// Package retrieval holds the two first-stage retrievers used by search:
// a BM25 keyword retriever over chunked analyses and a pgvector nearest
// neighbour retriever. Both are scoped to a single owner.
package retrieval

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

const (
	SourceKeyword = "keyword"
	SourceVector  = "vector"
)

// Candidate is one ranked item. Rank starts at 1 within the list that
// produced it. Scores are only comparable inside that list.
type Candidate struct {
	ItemId uuid.UUID
	Score  float64
	Rank   int
	Source string
}

type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query string, k int, ownerId uuid.UUID) ([]Candidate, error)
}

// rank sorts by score descending with item id as the tie breaker, truncates
// to k and assigns ranks.
func rank(candidates []Candidate, k int) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ItemId.String() < candidates[j].ItemId.String()
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}
