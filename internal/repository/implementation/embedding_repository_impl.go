package implementation

import (
	"context"
	"errors"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/mapper"
	"visual-search-be/internal/model"
	"visual-search-be/internal/repository/contract"
	"visual-search-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.EmbeddingMapper
}

func NewEmbeddingRepository(db *gorm.DB) contract.EmbeddingRepository {
	return &EmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewEmbeddingMapper(),
	}
}

func (r *EmbeddingRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *EmbeddingRepositoryImpl) Upsert(ctx context.Context, embedding *entity.Embedding) error {
	m := r.mapper.ToModel(embedding)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "analysis_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"vector", "model", "dimensions", "provenance", "document", "created_at",
			}),
		}).
		Create(m).Error
	if err != nil {
		return err
	}

	// On conflict postgres keeps the original primary key; re-read it
	var stored model.Embedding
	if err := r.db.WithContext(ctx).Where("analysis_id = ?", m.AnalysisId).First(&stored).Error; err != nil {
		return err
	}
	*embedding = *r.mapper.ToEntity(&stored)
	return nil
}

func (r *EmbeddingRepositoryImpl) DeleteByItemId(ctx context.Context, itemId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("item_id = ?", itemId).Delete(&model.Embedding{}).Error
}

func (r *EmbeddingRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Embedding, error) {
	var m model.Embedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *EmbeddingRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Embedding, error) {
	var models []*model.Embedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *EmbeddingRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Embedding{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *EmbeddingRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, ownerId uuid.UUID) ([]*entity.ScoredEmbedding, error) {
	if limit <= 0 {
		limit = 20
	}

	// pgvector cosine distance is 1 - cosine_similarity
	type result struct {
		model.Embedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	// One row per item: the embedding of its highest embedded analysis version
	latest := r.db.WithContext(ctx).
		Table("embeddings AS e").
		Select("DISTINCT ON (e.item_id) e.id").
		Joins("JOIN analyses a ON a.id = e.analysis_id").
		Where("e.owner_id = ?", ownerId).
		Order("e.item_id, a.version DESC")

	err := r.db.WithContext(ctx).
		Table("embeddings").
		Select("embeddings.*, 1 - (vector <=> ?) AS similarity", queryVector).
		Where("owner_id = ?", ownerId).
		Where("id IN (?)", latest).
		Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "vector <=> ?", Vars: []interface{}{queryVector}}}).
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredEmbedding, len(results))
	for i := range results {
		scored[i] = &entity.ScoredEmbedding{
			Embedding:  r.mapper.ToEntity(&results[i].Embedding),
			Similarity: results[i].Similarity,
		}
	}
	return scored, nil
}
