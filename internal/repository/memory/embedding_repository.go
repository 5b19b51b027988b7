package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/specification"

	"github.com/google/uuid"
)

type embeddingRepository struct {
	s *Store
}

func (r *embeddingRepository) Upsert(ctx context.Context, embedding *entity.Embedding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.embeddings[embedding.AnalysisId]; ok {
		embedding.Id = existing.Id
	} else if embedding.Id == uuid.Nil {
		embedding.Id = uuid.New()
	}
	embedding.CreatedAt = time.Now()

	stored := *embedding
	stored.Vector = append([]float32(nil), embedding.Vector...)
	r.s.embeddings[embedding.AnalysisId] = stored
	return nil
}

func (r *embeddingRepository) DeleteByItemId(ctx context.Context, itemId uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for key, e := range r.s.embeddings {
		if e.ItemId == itemId {
			delete(r.s.embeddings, key)
		}
	}
	return nil
}

func (r *embeddingRepository) find(specs []specification.Specification) ([]*entity.Embedding, error) {
	f, err := newFilter(specs)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	var rows []*entity.Embedding
	for _, e := range r.s.embeddings {
		if f.match(e.Id, e.OwnerId, e.ItemId, e.AnalysisId) {
			copied := e
			rows = append(rows, &copied)
		}
	}
	r.s.mu.Unlock()

	sortByCreated(rows, func(e *entity.Embedding) int64 { return e.CreatedAt.UnixNano() }, f.orderDesc)
	return page(f, rows), nil
}

func (r *embeddingRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Embedding, error) {
	rows, err := r.find(specs)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *embeddingRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Embedding, error) {
	return r.find(specs)
}

func (r *embeddingRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	rows, err := r.find(specs)
	return int64(len(rows)), err
}

// SearchSimilarWithScore is an exact scan with the same scoring as pgvector's
// cosine distance operator, over each item's latest embedded analysis.
func (r *embeddingRepository) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, ownerId uuid.UUID) ([]*entity.ScoredEmbedding, error) {
	if limit <= 0 {
		limit = 20
	}

	r.s.mu.Lock()
	latest := make(map[uuid.UUID]entity.Embedding)
	versions := make(map[uuid.UUID]int)
	for _, e := range r.s.embeddings {
		if e.OwnerId != ownerId {
			continue
		}
		version := r.s.analyses[e.AnalysisId].Version
		if prev, ok := versions[e.ItemId]; ok && prev >= version {
			continue
		}
		versions[e.ItemId] = version
		latest[e.ItemId] = e
	}
	r.s.mu.Unlock()

	scored := make([]*entity.ScoredEmbedding, 0, len(latest))
	for _, e := range latest {
		copied := e
		scored = append(scored, &entity.ScoredEmbedding{
			Embedding:  &copied,
			Similarity: cosine(embedding, e.Vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Embedding.Id.String() < scored[j].Embedding.Id.String()
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
