package implementation

import (
	"context"
	"errors"
	"fmt"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/mapper"
	"visual-search-be/internal/model"
	"visual-search-be/internal/repository/contract"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnalysisRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.AnalysisMapper
}

func NewAnalysisRepository(db *gorm.DB) contract.AnalysisRepository {
	return &AnalysisRepositoryImpl{
		db:     db,
		mapper: mapper.NewAnalysisMapper(),
	}
}

func (r *AnalysisRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// CreateNextVersion serialises version assignment per item by locking the
// parent items row. Two concurrent re-analyses of one item queue on that lock
// and end up with versions n+1 and n+2.
func (r *AnalysisRepositoryImpl) CreateNextVersion(ctx context.Context, analysis *entity.Analysis) error {
	m, err := r.mapper.ToModel(analysis)
	if err != nil {
		return apperrors.Input(fmt.Errorf("encode analysis result: %w", err))
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.Item
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", m.ItemId).
			First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Input(fmt.Errorf("item %s: %w", m.ItemId, apperrors.ErrNotFound))
			}
			return err
		}

		var current int
		if err := tx.Model(&model.Analysis{}).
			Where("item_id = ?", m.ItemId).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error; err != nil {
			return err
		}

		m.Version = current + 1
		return tx.Create(m).Error
	})
	if err != nil {
		return err
	}

	*analysis = *r.mapper.ToEntity(m)
	return nil
}

func (r *AnalysisRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Analysis, error) {
	var m model.Analysis
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *AnalysisRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Analysis, error) {
	var models []*model.Analysis
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *AnalysisRepositoryImpl) FindLatestByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Analysis, error) {
	var models []*model.Analysis
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (item_id) * FROM analyses WHERE owner_id = ? ORDER BY item_id, version DESC`, ownerId).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *AnalysisRepositoryImpl) FindLatestByItemIds(ctx context.Context, itemIds []uuid.UUID) (map[uuid.UUID]*entity.Analysis, error) {
	out := make(map[uuid.UUID]*entity.Analysis, len(itemIds))
	if len(itemIds) == 0 {
		return out, nil
	}

	var models []*model.Analysis
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (item_id) * FROM analyses WHERE item_id IN ? ORDER BY item_id, version DESC`, itemIds).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		out[m.ItemId] = r.mapper.ToEntity(m)
	}
	return out, nil
}

func (r *AnalysisRepositoryImpl) DeleteByItemId(ctx context.Context, itemId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("item_id = ?", itemId).Delete(&model.Analysis{}).Error
}

func (r *AnalysisRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Analysis{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
