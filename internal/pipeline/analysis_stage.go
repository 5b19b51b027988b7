package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"visual-search-be/internal/constant"
	"visual-search-be/internal/entity"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/analysis"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/llm"

	"go.opentelemetry.io/otel/trace"
)

// VisionResolver returns the vision backend for an optional provider and
// model override.
type VisionResolver interface {
	Resolve(provider, model string) (llm.LLMProvider, string, error)
}

// AnalysisStage asks a vision model to interpret the preview and stores the
// result as the item's next analysis version.
type AnalysisStage struct {
	uowFactory unitofwork.RepositoryFactory
	blobs      blob.ObjectStore
	vision     VisionResolver
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewAnalysisStage(
	uowFactory unitofwork.RepositoryFactory,
	blobs blob.ObjectStore,
	vision VisionResolver,
	publisher events.Publisher,
	log logger.ILogger,
) *AnalysisStage {
	return &AnalysisStage{
		uowFactory: uowFactory,
		blobs:      blobs,
		vision:     vision,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *AnalysisStage) Name() string      { return "analysis-stage" }
func (s *AnalysisStage) EventType() string { return events.TypeAssetReady }

func (s *AnalysisStage) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := startSpan(ctx, s.Name(), env)

	var evt events.AssetReady
	if err := env.Into(&evt); err != nil {
		return finish(span, s.logger, "ANALYSIS_STAGE", err, map[string]interface{}{"event_id": env.Id})
	}
	details := map[string]interface{}{
		"item_id":  evt.ItemId.String(),
		"provider": evt.Provider,
		"model":    evt.Model,
	}
	return finish(span, s.logger, "ANALYSIS_STAGE", s.process(ctx, evt), details)
}

func (s *AnalysisStage) process(ctx context.Context, evt events.AssetReady) error {
	image, err := s.fetchImage(ctx, evt)
	if err != nil {
		return err
	}

	provider, model, err := s.vision.Resolve(evt.Provider, evt.Model)
	if err != nil {
		return fmt.Errorf("resolve vision provider: %w", err)
	}

	messages := []llm.Message{{
		Role:    constant.ChatMessageRoleUser,
		Content: constant.AnalysisPromptV1,
		Images:  []llm.Image{image},
	}}
	raw, err := provider.Chat(ctx, messages, llm.WithModel(model), llm.WithJSON(), llm.WithTemperature(0.1))
	if err != nil {
		return fmt.Errorf("vision call to %s/%s: %w", provider.Name(), model, err)
	}

	result, err := analysis.Parse(raw)
	if err != nil {
		s.logger.Debug("ANALYSIS_STAGE", "Unparseable model output", map[string]interface{}{
			"item_id": evt.ItemId.String(),
			"raw":     truncate(raw, 512),
		})
		return err
	}

	record := &entity.Analysis{
		ItemId:   evt.ItemId,
		OwnerId:  evt.OwnerId,
		Result:   *result,
		Provider: provider.Name(),
		Model:    model,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		record.TraceId = sc.TraceID().String()
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.AnalysisRepository().CreateNextVersion(ctx, record); err != nil {
		return fmt.Errorf("persist analysis: %w", err)
	}
	s.logger.Info("ANALYSIS_STAGE", "Analysis stored", map[string]interface{}{
		"item_id":     evt.ItemId.String(),
		"analysis_id": record.Id.String(),
		"version":     record.Version,
		"category":    record.Category,
		"provider":    record.Provider,
		"model":       record.Model,
	})

	next := events.AnalysisReady{
		ItemId:     evt.ItemId,
		AnalysisId: record.Id,
		OwnerId:    evt.OwnerId,
		Version:    record.Version,
	}
	if err := s.publisher.Publish(ctx, next); err != nil {
		return fmt.Errorf("publish %s: %w", next.EventType(), err)
	}
	return nil
}

// fetchImage prefers the bounded preview and falls back to the original.
func (s *AnalysisStage) fetchImage(ctx context.Context, evt events.AssetReady) (llm.Image, error) {
	obj, err := s.blobs.Get(ctx, evt.Bucket, evt.PreviewKey)
	if err == nil {
		return llm.Image{Data: obj.Data, MimeType: obj.ContentType}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return llm.Image{}, fmt.Errorf("fetch preview: %w", err)
	}

	obj, err = s.blobs.Get(ctx, evt.Bucket, evt.OriginalKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return llm.Image{}, apperrors.Input(fmt.Errorf("no image for item %s: %w", evt.ItemId, err))
		}
		return llm.Image{}, fmt.Errorf("fetch original: %w", err)
	}
	s.logger.Warn("ANALYSIS_STAGE", "Preview missing, analysing original", map[string]interface{}{
		"item_id": evt.ItemId.String(),
	})
	return llm.Image{Data: obj.Data, MimeType: obj.ContentType}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
