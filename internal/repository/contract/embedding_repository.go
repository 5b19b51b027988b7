package contract

import (
	"context"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/specification"

	"github.com/google/uuid"
)

type EmbeddingRepository interface {
	// Upsert replaces the embedding stored for embedding.AnalysisId, if any.
	Upsert(ctx context.Context, embedding *entity.Embedding) error
	DeleteByItemId(ctx context.Context, itemId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Embedding, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Embedding, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchSimilarWithScore returns the nearest embeddings of one owner by
	// cosine distance, considering only the latest embedded analysis of each
	// item, so every returned row is a distinct item.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, ownerId uuid.UUID) ([]*entity.ScoredEmbedding, error)
}
