// Package fusion merges ranked candidate lists with reciprocal rank fusion.
package fusion

import (
	"sort"
	"strings"

	"visual-search-be/pkg/rag/retrieval"

	"github.com/google/uuid"
)

const DefaultK = 60.0

type entry struct {
	itemId   uuid.UUID
	score    float64
	bestRank int
	sources  map[string]bool
}

// Fuse scores every item as the sum of 1/(k+rank) over the lists it appears
// in and returns the topK best. Ties break on best single-list rank, then on
// item id. The result does not depend on the order of lists.
//
// A candidate with Rank 0 is ranked by its position in its list. When an
// item occurs twice in one list only its best rank counts.
func Fuse(k float64, topK int, lists ...[]retrieval.Candidate) []retrieval.Candidate {
	if k <= 0 {
		k = DefaultK
	}

	entries := make(map[uuid.UUID]*entry)
	for _, list := range lists {
		perList := make(map[uuid.UUID]int, len(list))
		sources := make(map[uuid.UUID]string, len(list))
		for pos, c := range list {
			r := c.Rank
			if r <= 0 {
				r = pos + 1
			}
			if prev, ok := perList[c.ItemId]; !ok || r < prev {
				perList[c.ItemId] = r
				sources[c.ItemId] = c.Source
			}
		}
		for itemId, r := range perList {
			e, ok := entries[itemId]
			if !ok {
				e = &entry{itemId: itemId, bestRank: r, sources: make(map[string]bool)}
				entries[itemId] = e
			}
			e.score += 1 / (k + float64(r))
			if r < e.bestRank {
				e.bestRank = r
			}
			if src := sources[itemId]; src != "" {
				e.sources[src] = true
			}
		}
	}

	ordered := make([]*entry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		return a.itemId.String() < b.itemId.String()
	})
	if topK > 0 && len(ordered) > topK {
		ordered = ordered[:topK]
	}

	fused := make([]retrieval.Candidate, len(ordered))
	for i, e := range ordered {
		fused[i] = retrieval.Candidate{
			ItemId: e.itemId,
			Score:  e.score,
			Rank:   i + 1,
			Source: joinSources(e.sources),
		}
	}
	return fused
}

func joinSources(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s)
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}
