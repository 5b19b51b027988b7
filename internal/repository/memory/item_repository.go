package memory

import (
	"context"
	"time"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/specification"

	"github.com/google/uuid"
)

type itemRepository struct {
	s *Store
}

func (r *itemRepository) Create(ctx context.Context, item *entity.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	r.s.items[item.Id] = *item
	return nil
}

func (r *itemRepository) Update(ctx context.Context, item *entity.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	item.UpdatedAt = &now
	r.s.items[item.Id] = *item
	return nil
}

func (r *itemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.items, id)
	return nil
}

func (r *itemRepository) find(specs []specification.Specification) ([]*entity.Item, error) {
	f, err := newFilter(specs)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	var rows []*entity.Item
	for _, it := range r.s.items {
		if f.match(it.Id, it.OwnerId, it.Id, uuid.Nil) {
			copied := it
			rows = append(rows, &copied)
		}
	}
	r.s.mu.Unlock()

	sortByCreated(rows, func(it *entity.Item) int64 { return it.CreatedAt.UnixNano() }, f.orderDesc)
	return page(f, rows), nil
}

func (r *itemRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Item, error) {
	rows, err := r.find(specs)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *itemRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Item, error) {
	return r.find(specs)
}

func (r *itemRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	rows, err := r.find(specs)
	return int64(len(rows)), err
}
