package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/pkg/apperrors"

	"github.com/google/uuid"
)

type analysisRepository struct {
	s *Store
}

func (r *analysisRepository) CreateNextVersion(ctx context.Context, analysis *entity.Analysis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.items[analysis.ItemId]; !ok {
		return apperrors.Input(fmt.Errorf("item %s: %w", analysis.ItemId, apperrors.ErrNotFound))
	}

	current := 0
	for _, a := range r.s.analyses {
		if a.ItemId == analysis.ItemId && a.Version > current {
			current = a.Version
		}
	}

	analysis.Id = uuid.New()
	analysis.Version = current + 1
	analysis.Category = analysis.Result.Category
	analysis.Summary = analysis.Result.Summary
	analysis.CreatedAt = time.Now()
	r.s.analyses[analysis.Id] = *analysis
	return nil
}

func (r *analysisRepository) find(specs []specification.Specification) ([]*entity.Analysis, error) {
	f, err := newFilter(specs)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	var rows []*entity.Analysis
	for _, a := range r.s.analyses {
		if f.match(a.Id, a.OwnerId, a.ItemId, a.Id) {
			copied := a
			rows = append(rows, &copied)
		}
	}
	r.s.mu.Unlock()

	if f.orderField == "version" {
		sort.SliceStable(rows, func(i, j int) bool {
			if f.orderDesc {
				return rows[i].Version > rows[j].Version
			}
			return rows[i].Version < rows[j].Version
		})
	} else {
		sortByCreated(rows, func(a *entity.Analysis) int64 { return a.CreatedAt.UnixNano() }, f.orderDesc)
	}
	return page(f, rows), nil
}

func (r *analysisRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Analysis, error) {
	rows, err := r.find(specs)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *analysisRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Analysis, error) {
	return r.find(specs)
}

func (r *analysisRepository) latest(keep func(entity.Analysis) bool) map[uuid.UUID]*entity.Analysis {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make(map[uuid.UUID]*entity.Analysis)
	for _, a := range r.s.analyses {
		if !keep(a) {
			continue
		}
		if cur, ok := out[a.ItemId]; !ok || a.Version > cur.Version {
			copied := a
			out[a.ItemId] = &copied
		}
	}
	return out
}

func (r *analysisRepository) FindLatestByOwner(ctx context.Context, ownerId uuid.UUID) ([]*entity.Analysis, error) {
	byItem := r.latest(func(a entity.Analysis) bool { return a.OwnerId == ownerId })
	rows := make([]*entity.Analysis, 0, len(byItem))
	for _, a := range byItem {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ItemId.String() < rows[j].ItemId.String() })
	return rows, nil
}

func (r *analysisRepository) FindLatestByItemIds(ctx context.Context, itemIds []uuid.UUID) (map[uuid.UUID]*entity.Analysis, error) {
	wanted := make(map[uuid.UUID]bool, len(itemIds))
	for _, id := range itemIds {
		wanted[id] = true
	}
	return r.latest(func(a entity.Analysis) bool { return wanted[a.ItemId] }), nil
}

func (r *analysisRepository) DeleteByItemId(ctx context.Context, itemId uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, a := range r.s.analyses {
		if a.ItemId == itemId {
			delete(r.s.analyses, id)
		}
	}
	return nil
}

func (r *analysisRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	rows, err := r.find(specs)
	return int64(len(rows)), err
}
