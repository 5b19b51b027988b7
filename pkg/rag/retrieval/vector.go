package retrieval

import (
	"context"
	"fmt"
	"strings"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/embedding"

	"github.com/google/uuid"
)

// VectorRetriever embeds the query in query mode and returns the owner's
// nearest items by cosine similarity.
type VectorRetriever struct {
	repoFactory unitofwork.RepositoryFactory
	embedder    embedding.EmbeddingProvider
	logger      logger.ILogger
}

func NewVectorRetriever(repoFactory unitofwork.RepositoryFactory, embedder embedding.EmbeddingProvider, log logger.ILogger) *VectorRetriever {
	return &VectorRetriever{
		repoFactory: repoFactory,
		embedder:    embedder,
		logger:      log,
	}
}

func (r *VectorRetriever) Name() string {
	return SourceVector
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, k int, ownerId uuid.UUID) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return []Candidate{}, nil
	}
	if k <= 0 {
		k = 10
	}

	res, err := r.embedder.Generate(ctx, query, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	// The repository returns one row per item, scored on its latest analysis.
	uow := r.repoFactory.NewUnitOfWork(ctx)
	scored, err := uow.EmbeddingRepository().SearchSimilarWithScore(ctx, res.Embedding.Values, k, ownerId)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	best := make(map[uuid.UUID]float64, len(scored))
	for _, s := range scored {
		if s.Embedding == nil || s.Embedding.OwnerId != ownerId {
			continue
		}
		sim := clampSimilarity(s.Similarity)
		if prev, ok := best[s.Embedding.ItemId]; !ok || sim > prev {
			best[s.Embedding.ItemId] = sim
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for itemId, sim := range best {
		candidates = append(candidates, Candidate{ItemId: itemId, Score: sim, Source: SourceVector})
	}
	candidates = rank(candidates, k)

	r.logger.Debug("VECTOR", "Vector retrieval finished", map[string]interface{}{
		"owner_id":   ownerId.String(),
		"model":      r.embedder.ModelName(),
		"rows":       len(scored),
		"candidates": len(candidates),
	})
	return candidates, nil
}

// clampSimilarity maps 1 - cosine distance into [0, 1]. Opposite directions
// carry no relevance, so negative similarities become 0.
func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
