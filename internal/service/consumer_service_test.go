package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/pipeline"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/testutil"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/imaging"
	"visual-search-be/pkg/membus"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSubscriber struct {
	handlers map[string]events.Handler
	durables map[string]string
}

func newCaptureSubscriber() *captureSubscriber {
	return &captureSubscriber{handlers: map[string]events.Handler{}, durables: map[string]string{}}
}

func (c *captureSubscriber) Subscribe(ctx context.Context, eventType string, durable string, handler events.Handler) error {
	if _, dup := c.handlers[eventType]; dup {
		return fmt.Errorf("duplicate subscription for %s", eventType)
	}
	c.handlers[eventType] = handler
	c.durables[eventType] = durable
	return nil
}

func (c *captureSubscriber) Close() error { return nil }

type funcStage struct {
	name      string
	eventType string
	handle    func(ctx context.Context, env *events.Envelope) error
}

func (s funcStage) Name() string      { return s.name }
func (s funcStage) EventType() string { return s.eventType }
func (s funcStage) Handle(ctx context.Context, env *events.Envelope) error {
	return s.handle(ctx, env)
}

func TestConsumer_SubscribesEachStageDurably(t *testing.T) {
	sub := newCaptureSubscriber()
	noop := func(ctx context.Context, env *events.Envelope) error { return nil }
	cs := NewConsumerService(sub, time.Second, nil, logger.NewNopLogger(),
		funcStage{"image-stage", events.TypeAssetUploaded, noop},
		funcStage{"analysis-stage", events.TypeAssetReady, noop},
	)

	require.NoError(t, cs.Consume(context.Background()))
	assert.Equal(t, "image-stage", sub.durables[events.TypeAssetUploaded])
	assert.Equal(t, "analysis-stage", sub.durables[events.TypeAssetReady])
}

func TestConsumer_TimeoutIsRetryable(t *testing.T) {
	sub := newCaptureSubscriber()
	slow := funcStage{"analysis-stage", events.TypeAssetReady, func(ctx context.Context, env *events.Envelope) error {
		<-ctx.Done()
		return fmt.Errorf("vision call: %w", ctx.Err())
	}}
	cs := NewConsumerService(sub, 20*time.Millisecond, nil, logger.NewNopLogger(), slow)
	require.NoError(t, cs.Consume(context.Background()))

	env := envelopeOf(t, events.AssetReady{
		ItemId: uuid.New(), OwnerId: uuid.New(), Bucket: "b", OriginalKey: "k", PreviewKey: "p",
	})
	err := sub.handlers[events.TypeAssetReady](context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, apperrors.IsInput(err))
}

func TestConsumer_InputErrorsReportFailedProgress(t *testing.T) {
	sub := newCaptureSubscriber()
	progress := newProgressRecorder()
	notifier := NewProgressService(sub, progress, logger.NewNopLogger())
	stage := funcStage{"embedding-stage", events.TypeAnalysisReady, func(ctx context.Context, env *events.Envelope) error {
		return apperrors.Input(apperrors.ErrEmptyDocument)
	}}
	cs := NewConsumerService(sub, time.Second, notifier, logger.NewNopLogger(), stage)
	require.NoError(t, cs.Consume(context.Background()))

	owner := uuid.New()
	item := uuid.New()
	env := envelopeOf(t, events.AnalysisReady{ItemId: item, AnalysisId: uuid.New(), OwnerId: owner})
	err := sub.handlers[events.TypeAnalysisReady](context.Background(), env)
	require.Error(t, err)

	sent := progress.forOwner(owner)
	require.Len(t, sent, 1)
	assert.Equal(t, item, sent[0].ItemId)
	assert.Equal(t, "embedding", sent[0].Stage)
	assert.Equal(t, dto.ProgressFailed, sent[0].Status)
	assert.Contains(t, sent[0].Detail, "nothing to embed")
}

func TestProgress_ForwardsEveryEventType(t *testing.T) {
	sub := newCaptureSubscriber()
	progress := newProgressRecorder()
	require.NoError(t, NewProgressService(sub, progress, logger.NewNopLogger()).Start(context.Background()))
	assert.Len(t, sub.handlers, 4)

	owner := uuid.New()
	item := uuid.New()
	ctx := context.Background()
	require.NoError(t, sub.handlers[events.TypeAssetUploaded](ctx, envelopeOf(t, events.AssetUploaded{
		ItemId: item, OwnerId: owner, Bucket: "b", OriginalKey: "k",
	})))
	require.NoError(t, sub.handlers[events.TypeEmbeddingReady](ctx, envelopeOf(t, events.EmbeddingReady{
		ItemId: item, AnalysisId: uuid.New(), EmbeddingId: uuid.New(), OwnerId: owner,
	})))

	assert.True(t, progress.has(owner, "upload", dto.ProgressCompleted))
	assert.True(t, progress.has(owner, "embedding", dto.ProgressCompleted))
	assert.Empty(t, progress.forOwner(uuid.New()))
}

func TestPipeline_UploadBecomesSearchable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.NewNopLogger()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	bus := membus.New(membus.Config{RedeliveryDelay: time.Millisecond}, log)
	defer bus.Close()

	vision := &chatStub{reply: furnitureAnalysis}
	progress := newProgressRecorder()
	progressSvc := NewProgressService(bus, progress, log)
	require.NoError(t, progressSvc.Start(ctx))

	consumer := NewConsumerService(bus, 5*time.Second, progressSvc, log,
		pipeline.NewImageStage(store, blobs, bus, imaging.DefaultOptions(), pipeline.DefaultPreviewPrefix, log),
		pipeline.NewAnalysisStage(store, blobs, vision, bus, log),
		pipeline.NewEmbeddingStage(store, &testutil.HashEmbedder{}, testutil.HashDimensions, bus, log),
	)
	require.NoError(t, consumer.Consume(ctx))

	owner := uuid.New()
	items := NewItemService(store, blobs, bus, nil, 1<<20, log)
	uploaded, err := items.Upload(ctx, owner, &dto.UploadItemRequest{Filename: "sofa.png", Data: pngBytes(t, 64, 48)})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return progress.has(owner, "embedding", dto.ProgressCompleted)
	}, 5*time.Second, 10*time.Millisecond)

	for _, stage := range []string{"upload", "image", "analysis"} {
		stage := stage
		assert.Eventually(t, func() bool {
			return progress.has(owner, stage, dto.ProgressCompleted)
		}, time.Second, 10*time.Millisecond, stage)
	}

	item, err := store.Items().FindOne(ctx, specification.ByID{ID: uploaded.Id})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, pipeline.PreviewKey(pipeline.DefaultPreviewPrefix, uploaded.StorageKey), item.PreviewKey)

	count, err := store.Embeddings().Count(ctx, specification.ByItemID{ItemID: uploaded.Id})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	res, err := newSearchService(store, &chatStub{}).Search(ctx, owner, &dto.SearchRequest{Query: "modern sofa"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, uploaded.Id, res.Results[0].ItemId)
	assert.Equal(t, "Modern walnut sofa", res.Results[0].Headline)
}
