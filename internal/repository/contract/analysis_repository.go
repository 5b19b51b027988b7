package contract

import (
	"context"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/specification"

	"github.com/google/uuid"
)

type AnalysisRepository interface {
	// CreateNextVersion assigns analysis.Version = max(version for the item) + 1
	// and inserts the row. Concurrent callers for the same item get distinct,
	// contiguous versions.
	CreateNextVersion(ctx context.Context, analysis *entity.Analysis) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Analysis, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Analysis, error)
	// FindLatestByOwner returns the highest version analysis of every item the owner has.
	FindLatestByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Analysis, error)
	FindLatestByItemIds(ctx context.Context, itemIds []uuid.UUID) (map[uuid.UUID]*entity.Analysis, error)
	DeleteByItemId(ctx context.Context, itemId uuid.UUID) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
