package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"visual-search-be/internal/config"
	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/rag/response"
	"visual-search-be/pkg/rag/retrieval"
	"visual-search-be/pkg/rag/strategy"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ISearchService interface {
	Search(ctx context.Context, ownerId uuid.UUID, req *dto.SearchRequest) (*dto.SearchResponse, error)
}

// Searcher runs one retrieval strategy.
type Searcher interface {
	Select(ctx context.Context, query string, topK int, ownerId uuid.UUID, mode strategy.Mode) (*strategy.Outcome, error)
}

// AnswerGenerator writes a cited answer over ranked results.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, results []response.Evidence, modelRef string) (*response.Answer, error)
}

type searchService struct {
	uowFactory unitofwork.RepositoryFactory
	searcher   Searcher
	generator  AnswerGenerator
	cfg        config.RetrievalConfig
	logger     logger.ILogger
}

func NewSearchService(
	uowFactory unitofwork.RepositoryFactory,
	searcher Searcher,
	generator AnswerGenerator,
	cfg config.RetrievalConfig,
	log logger.ILogger,
) ISearchService {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 50
	}
	return &searchService{
		uowFactory: uowFactory,
		searcher:   searcher,
		generator:  generator,
		cfg:        cfg,
		logger:     log,
	}
}

func (s *searchService) Search(ctx context.Context, ownerId uuid.UUID, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.Input(fmt.Errorf("%w: query is required", apperrors.ErrInvalidInput))
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK < 0 || topK > s.cfg.MaxTopK {
		return nil, apperrors.Input(fmt.Errorf("%w: top_k must be between 1 and %d", apperrors.ErrInvalidInput, s.cfg.MaxTopK))
	}
	mode, err := strategy.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("search").Start(ctx, "search")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner_id", ownerId.String()),
		attribute.String("mode", string(mode)),
		attribute.Int("top_k", topK),
	)

	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome, err := s.searcher.Select(ctx, query, topK, ownerId, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results, err := s.hydrate(ctx, outcome.Candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &dto.SearchResponse{
		Results:         results,
		TotalResults:    len(results),
		RetrievalTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		Reasoning:       outcome.Reasoning,
	}
	for _, call := range outcome.ToolsUsed {
		res.ToolsUsed = append(res.ToolsUsed, dto.ToolUsage{Tool: call.Tool, Detail: call.Detail})
	}

	if req.IncludeAnswer {
		s.answer(ctx, query, req.AnswerModel, res)
	}

	span.SetAttributes(attribute.Int("results", res.TotalResults))
	s.logger.Info("SearchService", "Search completed", map[string]interface{}{
		"owner_id":          ownerId,
		"mode":              string(mode),
		"results":           res.TotalResults,
		"retrieval_time_ms": res.RetrievalTimeMs,
		"answered":          res.Answer != nil,
	})
	return res, nil
}

// hydrate attaches the display fields of each item's latest analysis.
// Candidates whose item vanished since indexing are dropped.
func (s *searchService) hydrate(ctx context.Context, candidates []retrieval.Candidate) ([]dto.SearchResult, error) {
	results := make([]dto.SearchResult, 0, len(candidates))
	if len(candidates) == 0 {
		return results, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemId
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	latest, err := uow.AnalysisRepository().FindLatestByItemIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load analyses for results: %w", err)
	}

	for _, c := range candidates {
		a, ok := latest[c.ItemId]
		if !ok {
			continue
		}
		results = append(results, dto.SearchResult{
			ItemId:   c.ItemId,
			Score:    c.Score,
			Category: a.Category,
			Headline: a.Result.Headline,
			Summary:  a.Summary,
		})
	}
	return results, nil
}

// answer fills the answer fields. A failed generation leaves them empty and
// the search still succeeds.
func (s *searchService) answer(ctx context.Context, query, modelRef string, res *dto.SearchResponse) {
	evidence := make([]response.Evidence, len(res.Results))
	for i, r := range res.Results {
		evidence[i] = response.Evidence{
			ItemId:   r.ItemId,
			Score:    r.Score,
			Category: r.Category,
			Headline: r.Headline,
			Summary:  r.Summary,
		}
	}

	answer, err := s.generator.Generate(ctx, query, evidence, modelRef)
	if err != nil {
		s.logger.Warn("SearchService", "Answer generation failed, returning results only", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	text := answer.Text
	confidence := answer.Confidence
	res.Answer = &text
	res.Citations = answer.Citations
	res.Confidence = &confidence
}
