package unitofwork

import (
	"context"

	"visual-search-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ItemRepository() contract.ItemRepository
	AnalysisRepository() contract.AnalysisRepository
	EmbeddingRepository() contract.EmbeddingRepository
}
