package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"unicode/utf8"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/testutil"
	"visual-search-be/pkg/analysis"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/embedding"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/imaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageOpts() imaging.Options {
	opts := imaging.DefaultOptions()
	opts.MaxEdge = 32
	return opts
}

func TestPreviewKey(t *testing.T) {
	assert.Equal(t, "previews/originals/a/b.png.jpg", PreviewKey("previews/", "originals/a/b.png"))
	assert.Equal(t, "previews/x.webp.jpg", PreviewKey("previews/", "/x.webp"))
}

func TestImageStage_StoresPreviewAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	pub := &recordingPublisher{}
	owner := uuid.New()
	item := seedItem(t, store, owner, "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", item.StorageKey, transparentPNG(t, 80, 40), "image/png", nil))

	stage := NewImageStage(store, blobs, pub, imageOpts(), "previews/", logger.NewNopLogger())
	err := stage.Handle(ctx, envelope(t, events.AssetUploaded{
		ItemId: item.Id, OwnerId: owner, Bucket: "media", OriginalKey: item.StorageKey,
	}))
	require.NoError(t, err)

	preview, err := blobs.Get(ctx, "media", "previews/originals/chair.png.jpg")
	require.NoError(t, err)
	assert.Equal(t, imaging.ContentType, preview.ContentType)

	decoded, err := jpeg.Decode(bytes.NewReader(preview.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), decoded.Bounds())
	// Transparent half was flattened onto white.
	r, g, b, _ := decoded.At(30, 8).RGBA()
	assert.Greater(t, r>>8, uint32(230))
	assert.Greater(t, g>>8, uint32(230))
	assert.Greater(t, b>>8, uint32(230))

	published := pub.published()
	require.Len(t, published, 1)
	ready := published[0].(events.AssetReady)
	assert.Equal(t, item.Id, ready.ItemId)
	assert.Equal(t, "previews/originals/chair.png.jpg", ready.PreviewKey)
	assert.Equal(t, item.StorageKey, ready.OriginalKey)

	stored, err := store.Items().FindOne(ctx, specification.ByID{ID: item.Id})
	require.NoError(t, err)
	assert.Equal(t, ready.PreviewKey, stored.PreviewKey)
}

func TestImageStage_RedeliveryReusesPreview(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	pub := &recordingPublisher{}
	owner := uuid.New()
	item := seedItem(t, store, owner, "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", item.StorageKey, transparentPNG(t, 20, 20), "image/png", nil))

	stage := NewImageStage(store, blobs, pub, imageOpts(), "", logger.NewNopLogger())
	env := envelope(t, events.AssetUploaded{ItemId: item.Id, OwnerId: owner, Bucket: "media", OriginalKey: item.StorageKey})

	require.NoError(t, stage.Handle(ctx, env))
	puts := blobs.Puts()
	require.NoError(t, stage.Handle(ctx, env))

	assert.Equal(t, puts, blobs.Puts())
	assert.Len(t, pub.published(), 2)
}

func TestImageStage_SkipsDerivedPreviews(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	blobs := blob.NewMemoryStore("media")
	stage := NewImageStage(memory.NewStore(), blobs, pub, imageOpts(), "previews/", logger.NewNopLogger())

	err := stage.Handle(ctx, envelope(t, events.AssetUploaded{
		ItemId: uuid.New(), OwnerId: uuid.New(), Bucket: "media", OriginalKey: "previews/originals/chair.png.jpg",
	}))
	require.NoError(t, err)
	assert.Empty(t, pub.published())
	assert.Zero(t, blobs.Puts())
}

func TestImageStage_CorruptImageIsInputError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	pub := &recordingPublisher{}
	owner := uuid.New()
	item := seedItem(t, store, owner, "originals/broken.png")
	require.NoError(t, blobs.Put(ctx, "media", item.StorageKey, []byte("definitely not a png"), "image/png", nil))

	stage := NewImageStage(store, blobs, pub, imageOpts(), "previews/", logger.NewNopLogger())
	err := stage.Handle(ctx, envelope(t, events.AssetUploaded{ItemId: item.Id, OwnerId: owner, Bucket: "media", OriginalKey: item.StorageKey}))

	require.Error(t, err)
	assert.True(t, apperrors.IsInput(err))
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedImage)
	assert.Empty(t, pub.published())
	_, err = blobs.Stat(ctx, "media", "previews/originals/broken.png.jpg")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestImageStage_RejectsForeignOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	stage := NewImageStage(store, blob.NewMemoryStore("media"), &recordingPublisher{}, imageOpts(), "previews/", logger.NewNopLogger())

	err := stage.Handle(ctx, envelope(t, events.AssetUploaded{ItemId: item.Id, OwnerId: uuid.New(), Bucket: "media", OriginalKey: item.StorageKey}))
	assert.True(t, apperrors.IsInput(err))
}

func assetReady(item *entity.Item) events.AssetReady {
	return events.AssetReady{
		ItemId:      item.Id,
		OwnerId:     item.OwnerId,
		Bucket:      item.Bucket,
		OriginalKey: item.StorageKey,
		PreviewKey:  PreviewKey("previews/", item.StorageKey),
	}
}

func TestAnalysisStage_PersistsVersionsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	pub := &recordingPublisher{}
	vision := &visionStub{reply: validAnalysis}
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", PreviewKey("previews/", item.StorageKey), []byte("jpeg-bytes"), imaging.ContentType, nil))

	stage := NewAnalysisStage(store, blobs, vision, pub, logger.NewNopLogger())
	require.NoError(t, stage.Handle(ctx, envelope(t, assetReady(item))))

	override := assetReady(item)
	override.Provider, override.Model = "ollama", "bakllava"
	require.NoError(t, stage.Handle(ctx, envelope(t, override)))

	versions, err := store.Analyses().FindAll(ctx, specification.ByItemID{ItemID: item.Id})
	require.NoError(t, err)
	require.Len(t, versions, 2)

	published := pub.published()
	require.Len(t, published, 2)
	first := published[0].(events.AnalysisReady)
	second := published[1].(events.AnalysisReady)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	latest, err := store.Analyses().FindOne(ctx, specification.ByID{ID: second.AnalysisId})
	require.NoError(t, err)
	assert.Equal(t, "furniture", latest.Category)
	assert.Equal(t, analysis.TextList{"EAMES"}, latest.Result.ExtractedText)
	assert.Equal(t, "bakllava", latest.Model)
	assert.Equal(t, [][2]string{{"", ""}, {"ollama", "bakllava"}}, vision.resolved)

	require.Len(t, vision.images, 2)
	assert.Equal(t, []byte("jpeg-bytes"), vision.images[0].Data)
	assert.Equal(t, imaging.ContentType, vision.images[0].MimeType)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "sofa", 10, "sofa"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cut inside two byte rune", "caf\u00e9 au lait", 4, "caf..."},
		{"cut inside emoji", "ok\U0001F6CB\uFE0F sofa", 4, "ok..."},
		{"boundary after rune", "\u00e9\u00e9\u00e9", 4, "\u00e9\u00e9..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestAnalysisStage_FallsBackToOriginal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	vision := &visionStub{reply: validAnalysis}
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", item.StorageKey, []byte("png-bytes"), "image/png", nil))

	stage := NewAnalysisStage(store, blobs, vision, &recordingPublisher{}, logger.NewNopLogger())
	require.NoError(t, stage.Handle(ctx, envelope(t, assetReady(item))))
	require.Len(t, vision.images, 1)
	assert.Equal(t, "image/png", vision.images[0].MimeType)
}

func TestAnalysisStage_SchemaMismatchStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	pub := &recordingPublisher{}
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", PreviewKey("previews/", item.StorageKey), []byte("jpeg"), imaging.ContentType, nil))

	for _, reply := range []string{"I think this is a chair.", `{"headline": "no category"}`} {
		stage := NewAnalysisStage(store, blobs, &visionStub{reply: reply}, pub, logger.NewNopLogger())
		err := stage.Handle(ctx, envelope(t, assetReady(item)))
		require.Error(t, err, reply)
		assert.True(t, apperrors.IsInput(err), reply)
		assert.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
	}

	count, err := store.Analyses().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, pub.published())
}

func TestAnalysisStage_ProviderFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", PreviewKey("previews/", item.StorageKey), []byte("jpeg"), imaging.ContentType, nil))

	stage := NewAnalysisStage(store, blobs, &visionStub{err: errors.New("connection reset")}, &recordingPublisher{}, logger.NewNopLogger())
	err := stage.Handle(ctx, envelope(t, assetReady(item)))
	require.Error(t, err)
	assert.False(t, apperrors.IsInput(err))
}

func TestAnalysisStage_ConcurrentVersionsAreContiguous(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blob.NewMemoryStore("media")
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	require.NoError(t, blobs.Put(ctx, "media", PreviewKey("previews/", item.StorageKey), []byte("jpeg"), imaging.ContentType, nil))
	stage := NewAnalysisStage(store, blobs, &visionStub{reply: validAnalysis}, &recordingPublisher{}, logger.NewNopLogger())

	const workers = 16
	env := envelope(t, assetReady(item))
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- stage.Handle(ctx, env)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := store.Analyses().FindAll(ctx, specification.ByItemID{ItemID: item.Id})
	require.NoError(t, err)
	seen := make(map[int]bool)
	for _, r := range rows {
		assert.False(t, seen[r.Version], "duplicate version %d", r.Version)
		seen[r.Version] = true
	}
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "missing version %d", v)
	}
}

func seedAnalysis(t *testing.T, store *memory.Store, item *entity.Item, result analysis.Result) *entity.Analysis {
	t.Helper()
	a := &entity.Analysis{ItemId: item.Id, OwnerId: item.OwnerId, Result: result, Provider: "stub", Model: "stub-vision"}
	require.NoError(t, store.Analyses().CreateNextVersion(context.Background(), a))
	return a
}

func TestEmbeddingStage_RedeliveryReplacesEmbedding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	embedder := &testutil.HashEmbedder{}
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	a := seedAnalysis(t, store, item, testutil.Furniture("Lounge chair"))

	stage := NewEmbeddingStage(store, embedder, testutil.HashDimensions, pub, logger.NewNopLogger())
	env := envelope(t, events.AnalysisReady{ItemId: item.Id, AnalysisId: a.Id, OwnerId: item.OwnerId})
	require.NoError(t, stage.Handle(ctx, env))
	require.NoError(t, stage.Handle(ctx, env))

	count, err := store.Embeddings().Count(ctx, specification.ByAnalysisID{AnalysisID: a.Id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := store.Embeddings().FindOne(ctx, specification.ByAnalysisID{AnalysisID: a.Id})
	require.NoError(t, err)
	assert.Equal(t, "hash-embed", stored.Model)
	assert.Equal(t, testutil.HashDimensions, stored.Dimensions)
	assert.Contains(t, stored.Provenance, "summary")
	assert.Equal(t, a.Result.EmbeddingText(), stored.Document)
	assert.Equal(t, []string{embedding.TaskDocument, embedding.TaskDocument}, embedder.Tasks)

	published := pub.published()
	require.Len(t, published, 2)
	assert.Equal(t, published[0].(events.EmbeddingReady).EmbeddingId, published[1].(events.EmbeddingReady).EmbeddingId)
}

func TestEmbeddingStage_EmptyDocumentIsInputError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	item := seedItem(t, store, uuid.New(), "originals/blank.png")
	a := seedAnalysis(t, store, item, analysis.Result{})

	stage := NewEmbeddingStage(store, &testutil.HashEmbedder{}, 0, pub, logger.NewNopLogger())
	err := stage.Handle(ctx, envelope(t, events.AnalysisReady{ItemId: item.Id, AnalysisId: a.Id, OwnerId: item.OwnerId}))

	assert.True(t, apperrors.IsInput(err))
	assert.ErrorIs(t, err, apperrors.ErrEmptyDocument)
	assert.Empty(t, pub.published())
}

func TestEmbeddingStage_DimensionMismatchIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	item := seedItem(t, store, uuid.New(), "originals/chair.png")
	a := seedAnalysis(t, store, item, testutil.Furniture("Chair"))

	stage := NewEmbeddingStage(store, &testutil.HashEmbedder{}, 768, &recordingPublisher{}, logger.NewNopLogger())
	err := stage.Handle(ctx, envelope(t, events.AnalysisReady{ItemId: item.Id, AnalysisId: a.Id, OwnerId: item.OwnerId}))
	require.Error(t, err)
	assert.False(t, apperrors.IsInput(err))
}

func TestEmbeddingStage_MissingAnalysis(t *testing.T) {
	stage := NewEmbeddingStage(memory.NewStore(), &testutil.HashEmbedder{}, 0, &recordingPublisher{}, logger.NewNopLogger())
	err := stage.Handle(context.Background(), envelope(t, events.AnalysisReady{ItemId: uuid.New(), AnalysisId: uuid.New(), OwnerId: uuid.New()}))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, apperrors.IsInput(err))
}

func TestStages_RejectWrongEventType(t *testing.T) {
	stage := NewEmbeddingStage(memory.NewStore(), &testutil.HashEmbedder{}, 0, &recordingPublisher{}, logger.NewNopLogger())
	err := stage.Handle(context.Background(), envelope(t, events.AssetUploaded{
		ItemId: uuid.New(), OwnerId: uuid.New(), Bucket: "media", OriginalKey: "a.png",
	}))
	assert.True(t, apperrors.IsInput(err))
}
