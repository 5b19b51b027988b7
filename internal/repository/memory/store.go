package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/contract"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Store is an in-process implementation of the repository contracts. It backs
// the pipeline and search tests and the EVENT_BUS=memory development mode.
type Store struct {
	mu         sync.Mutex
	items      map[uuid.UUID]entity.Item
	analyses   map[uuid.UUID]entity.Analysis
	embeddings map[uuid.UUID]entity.Embedding // keyed by analysis id
}

func NewStore() *Store {
	return &Store{
		items:      make(map[uuid.UUID]entity.Item),
		analyses:   make(map[uuid.UUID]entity.Analysis),
		embeddings: make(map[uuid.UUID]entity.Embedding),
	}
}

// filter is the in-memory reading of the gorm specifications.
type filter struct {
	id         *uuid.UUID
	ids        map[uuid.UUID]bool
	ownerID    *uuid.UUID
	itemID     *uuid.UUID
	analysisID *uuid.UUID
	orderField string
	orderDesc  bool
	limit      int
	offset     int
}

func newFilter(specs []specification.Specification) (filter, error) {
	f := filter{}
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			id := s.ID
			f.id = &id
		case specification.ByIDs:
			f.ids = make(map[uuid.UUID]bool, len(s.IDs))
			for _, id := range s.IDs {
				f.ids[id] = true
			}
		case specification.ByOwnerID:
			id := s.OwnerID
			f.ownerID = &id
		case specification.ByItemID:
			id := s.ItemID
			f.itemID = &id
		case specification.ByAnalysisID:
			id := s.AnalysisID
			f.analysisID = &id
		case specification.OrderBy:
			f.orderField = s.Field
			f.orderDesc = s.Desc
		case specification.Pagination:
			f.limit = s.Limit
			f.offset = s.Offset
		default:
			return f, fmt.Errorf("memory store: unsupported specification %T", spec)
		}
	}
	return f, nil
}

func (f filter) match(id, ownerID, itemID, analysisID uuid.UUID) bool {
	if f.id != nil && *f.id != id {
		return false
	}
	if f.ids != nil && !f.ids[id] {
		return false
	}
	if f.ownerID != nil && *f.ownerID != ownerID {
		return false
	}
	if f.itemID != nil && *f.itemID != itemID {
		return false
	}
	if f.analysisID != nil && *f.analysisID != analysisID {
		return false
	}
	return true
}

func page[T any](f filter, rows []T) []T {
	if f.offset > 0 {
		if f.offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[f.offset:]
	}
	if f.limit > 0 && f.limit < len(rows) {
		rows = rows[:f.limit]
	}
	return rows
}

func (s *Store) Items() contract.ItemRepository {
	return &itemRepository{s: s}
}

func (s *Store) Analyses() contract.AnalysisRepository {
	return &analysisRepository{s: s}
}

func (s *Store) Embeddings() contract.EmbeddingRepository {
	return &embeddingRepository{s: s}
}

// NewUnitOfWork satisfies unitofwork.RepositoryFactory. Transactions are
// no-ops: every repository call already holds the store lock.
func (s *Store) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{s: s}
}

type unitOfWork struct {
	s      *Store
	active bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	u.active = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) Rollback() error {
	if !u.active {
		return fmt.Errorf("no transaction to rollback")
	}
	u.active = false
	return nil
}

func (u *unitOfWork) ItemRepository() contract.ItemRepository { return u.s.Items() }

func (u *unitOfWork) AnalysisRepository() contract.AnalysisRepository { return u.s.Analyses() }

func (u *unitOfWork) EmbeddingRepository() contract.EmbeddingRepository { return u.s.Embeddings() }

func sortByCreated[T any](rows []T, created func(T) int64, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return created(rows[i]) > created(rows[j])
		}
		return created(rows[i]) < created(rows[j])
	})
}
