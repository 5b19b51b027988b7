package retrieval

import (
	"context"
	"fmt"
	"time"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/chunker"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ownerIndex is the BM25 index of one owner's latest analyses. Keys are
// positions in itemIds.
type ownerIndex struct {
	bm25    *BM25Index
	itemIds []uuid.UUID
}

// KeywordRetriever ranks an owner's items by the best BM25 score of any chunk
// of their latest analysis. Indexes are built lazily per owner and cached
// for a short TTL, so newly ingested items become searchable after expiry.
type KeywordRetriever struct {
	repoFactory unitofwork.RepositoryFactory
	chunker     *chunker.Processor
	params      BM25Params
	indexes     *cache.Cache
	logger      logger.ILogger
}

func NewKeywordRetriever(
	repoFactory unitofwork.RepositoryFactory,
	processor *chunker.Processor,
	params BM25Params,
	indexTTL time.Duration,
	log logger.ILogger,
) *KeywordRetriever {
	var indexes *cache.Cache
	if indexTTL > 0 {
		indexes = cache.New(indexTTL, 2*indexTTL)
	}
	if processor == nil {
		processor = chunker.New()
	}
	return &KeywordRetriever{
		repoFactory: repoFactory,
		chunker:     processor,
		params:      params.withDefaults(),
		indexes:     indexes,
		logger:      log,
	}
}

func (r *KeywordRetriever) Name() string {
	return SourceKeyword
}

// Invalidate drops the cached index of an owner.
func (r *KeywordRetriever) Invalidate(ownerId uuid.UUID) {
	if r.indexes != nil {
		r.indexes.Delete(ownerId.String())
	}
}

func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, k int, ownerId uuid.UUID) ([]Candidate, error) {
	if len(Tokenize(query)) == 0 {
		return []Candidate{}, nil
	}

	idx, err := r.index(ctx, ownerId)
	if err != nil {
		return nil, err
	}

	scores := idx.bm25.Score(query)
	candidates := make([]Candidate, 0, len(scores))
	for key, score := range scores {
		candidates = append(candidates, Candidate{
			ItemId: idx.itemIds[key],
			Score:  score,
			Source: SourceKeyword,
		})
	}
	candidates = rank(candidates, k)

	r.logger.Debug("KEYWORD", "Keyword retrieval finished", map[string]interface{}{
		"owner_id":   ownerId.String(),
		"indexed":    len(idx.itemIds),
		"chunks":     idx.bm25.Len(),
		"candidates": len(candidates),
	})
	return candidates, nil
}

func (r *KeywordRetriever) index(ctx context.Context, ownerId uuid.UUID) (*ownerIndex, error) {
	if r.indexes != nil {
		if cached, ok := r.indexes.Get(ownerId.String()); ok {
			return cached.(*ownerIndex), nil
		}
	}

	uow := r.repoFactory.NewUnitOfWork(ctx)
	analyses, err := uow.AnalysisRepository().FindLatestByOwner(ctx, ownerId)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyses for keyword index: %w", err)
	}

	idx := r.build(ownerId, analyses)
	if r.indexes != nil {
		r.indexes.SetDefault(ownerId.String(), idx)
	}
	return idx, nil
}

func (r *KeywordRetriever) build(ownerId uuid.UUID, analyses []*entity.Analysis) *ownerIndex {
	idx := &ownerIndex{}
	var keys []int
	var texts []string

	for _, a := range analyses {
		if a.OwnerId != ownerId {
			continue
		}
		payload, err := a.Result.ToMap()
		if err != nil {
			r.logger.Warn("KEYWORD", "Skipping analysis that cannot be rendered", map[string]interface{}{
				"analysis_id": a.Id.String(),
				"error":       err.Error(),
			})
			continue
		}
		chunks := r.chunker.Process(chunker.Document{
			ItemId:  a.ItemId,
			OwnerId: a.OwnerId,
			Payload: payload,
		})
		if len(chunks) == 0 {
			continue
		}
		key := len(idx.itemIds)
		idx.itemIds = append(idx.itemIds, a.ItemId)
		for _, c := range chunks {
			keys = append(keys, key)
			texts = append(texts, c.Content)
		}
	}

	idx.bm25 = NewBM25Index(r.params, keys, texts)
	return idx
}
