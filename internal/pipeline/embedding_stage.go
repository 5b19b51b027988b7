package pipeline

import (
	"context"
	"fmt"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/embedding"
	"visual-search-be/pkg/events"
)

// EmbeddingStage embeds one analysis and replaces whatever vector was
// stored for it before.
type EmbeddingStage struct {
	uowFactory unitofwork.RepositoryFactory
	embedder   embedding.EmbeddingProvider
	dimensions int
	publisher  events.Publisher
	logger     logger.ILogger
}

// NewEmbeddingStage builds the stage. dimensions of 0 accepts any vector size.
func NewEmbeddingStage(
	uowFactory unitofwork.RepositoryFactory,
	embedder embedding.EmbeddingProvider,
	dimensions int,
	publisher events.Publisher,
	log logger.ILogger,
) *EmbeddingStage {
	return &EmbeddingStage{
		uowFactory: uowFactory,
		embedder:   embedder,
		dimensions: dimensions,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *EmbeddingStage) Name() string      { return "embedding-stage" }
func (s *EmbeddingStage) EventType() string { return events.TypeAnalysisReady }

func (s *EmbeddingStage) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := startSpan(ctx, s.Name(), env)

	var evt events.AnalysisReady
	if err := env.Into(&evt); err != nil {
		return finish(span, s.logger, "EMBEDDING_STAGE", err, map[string]interface{}{"event_id": env.Id})
	}
	details := map[string]interface{}{
		"item_id":     evt.ItemId.String(),
		"analysis_id": evt.AnalysisId.String(),
	}
	return finish(span, s.logger, "EMBEDDING_STAGE", s.process(ctx, evt), details)
}

func (s *EmbeddingStage) process(ctx context.Context, evt events.AnalysisReady) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	record, err := uow.AnalysisRepository().FindOne(ctx, specification.ByID{ID: evt.AnalysisId})
	if err != nil {
		return fmt.Errorf("load analysis: %w", err)
	}
	if record == nil {
		return apperrors.Input(fmt.Errorf("analysis %s: %w", evt.AnalysisId, apperrors.ErrNotFound))
	}
	if record.OwnerId != evt.OwnerId || record.ItemId != evt.ItemId {
		return apperrors.Input(fmt.Errorf("%w: analysis %s does not match event owner or item", apperrors.ErrInvalidInput, evt.AnalysisId))
	}

	document := record.Result.EmbeddingText()
	if document == "" {
		return apperrors.Input(fmt.Errorf("analysis %s: %w", evt.AnalysisId, apperrors.ErrEmptyDocument))
	}

	res, err := s.embedder.Generate(ctx, document, embedding.TaskDocument)
	if err != nil {
		return fmt.Errorf("embed analysis: %w", err)
	}
	vector := res.Embedding.Values
	if len(vector) == 0 {
		return fmt.Errorf("embedding provider %s returned an empty vector", s.embedder.ModelName())
	}
	if s.dimensions > 0 && len(vector) != s.dimensions {
		return fmt.Errorf("embedding provider %s returned %d dimensions, expected %d",
			s.embedder.ModelName(), len(vector), s.dimensions)
	}

	stored := &entity.Embedding{
		ItemId:     record.ItemId,
		AnalysisId: record.Id,
		OwnerId:    record.OwnerId,
		Vector:     vector,
		Model:      s.embedder.ModelName(),
		Dimensions: len(vector),
		Provenance: record.Result.Provenance(),
		Document:   document,
	}
	if err := uow.EmbeddingRepository().Upsert(ctx, stored); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	s.logger.Info("EMBEDDING_STAGE", "Embedding stored", map[string]interface{}{
		"item_id":      record.ItemId.String(),
		"analysis_id":  record.Id.String(),
		"embedding_id": stored.Id.String(),
		"model":        stored.Model,
		"dimensions":   stored.Dimensions,
	})

	next := events.EmbeddingReady{
		ItemId:      record.ItemId,
		AnalysisId:  record.Id,
		EmbeddingId: stored.Id,
		OwnerId:     record.OwnerId,
	}
	if err := s.publisher.Publish(ctx, next); err != nil {
		return fmt.Errorf("publish %s: %w", next.EventType(), err)
	}
	return nil
}
