package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/imaging"
)

const (
	DefaultPreviewPrefix = "previews/"

	metaDigest    = "preview-digest"
	metaSourceKey = "source-key"
	metaOwnerId   = "owner-id"
)

// PreviewKey derives the preview locator of an original.
func PreviewKey(prefix, originalKey string) string {
	return prefix + strings.TrimPrefix(originalKey, "/") + ".jpg"
}

// ImageStage renders a bounded JPEG preview next to each uploaded original
// and announces it with asset-ready.
type ImageStage struct {
	uowFactory unitofwork.RepositoryFactory
	blobs      blob.ObjectStore
	publisher  events.Publisher
	opts       imaging.Options
	prefix     string
	logger     logger.ILogger
}

func NewImageStage(
	uowFactory unitofwork.RepositoryFactory,
	blobs blob.ObjectStore,
	publisher events.Publisher,
	opts imaging.Options,
	prefix string,
	log logger.ILogger,
) *ImageStage {
	if prefix == "" {
		prefix = DefaultPreviewPrefix
	}
	return &ImageStage{
		uowFactory: uowFactory,
		blobs:      blobs,
		publisher:  publisher,
		opts:       opts,
		prefix:     prefix,
		logger:     log,
	}
}

func (s *ImageStage) Name() string      { return "image-stage" }
func (s *ImageStage) EventType() string { return events.TypeAssetUploaded }

func (s *ImageStage) Handle(ctx context.Context, env *events.Envelope) error {
	ctx, span := startSpan(ctx, s.Name(), env)

	var evt events.AssetUploaded
	if err := env.Into(&evt); err != nil {
		return finish(span, s.logger, "IMAGE_STAGE", err, map[string]interface{}{"event_id": env.Id})
	}
	details := map[string]interface{}{
		"item_id":      evt.ItemId.String(),
		"original_key": evt.OriginalKey,
	}
	return finish(span, s.logger, "IMAGE_STAGE", s.process(ctx, evt), details)
}

func (s *ImageStage) process(ctx context.Context, evt events.AssetUploaded) error {
	// Previews land in the same bucket; a notification about one must not
	// produce a preview of a preview.
	if strings.HasPrefix(strings.TrimPrefix(evt.OriginalKey, "/"), s.prefix) {
		s.logger.Info("IMAGE_STAGE", "Skipping derived preview", map[string]interface{}{
			"key": evt.OriginalKey,
		})
		return nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	item, err := uow.ItemRepository().FindOne(ctx, specification.ByID{ID: evt.ItemId})
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	if item == nil {
		return apperrors.Input(fmt.Errorf("item %s: %w", evt.ItemId, apperrors.ErrNotFound))
	}
	if item.OwnerId != evt.OwnerId {
		return apperrors.Input(fmt.Errorf("%w: item %s does not belong to owner %s", apperrors.ErrInvalidInput, evt.ItemId, evt.OwnerId))
	}

	original, err := s.blobs.Get(ctx, evt.Bucket, evt.OriginalKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Input(fmt.Errorf("original %s: %w", evt.OriginalKey, err))
		}
		return fmt.Errorf("fetch original: %w", err)
	}

	previewKey := PreviewKey(s.prefix, evt.OriginalKey)
	digest := imaging.Digest(original.Data, s.opts)

	fresh, err := s.previewIsCurrent(ctx, evt.Bucket, previewKey, digest)
	if err != nil {
		return err
	}
	if fresh {
		s.logger.Info("IMAGE_STAGE", "Preview already up to date", map[string]interface{}{
			"item_id":     evt.ItemId.String(),
			"preview_key": previewKey,
		})
	} else {
		preview, err := imaging.Render(original.Data, s.opts)
		if err != nil {
			return err
		}
		metadata := map[string]string{
			metaDigest:    digest,
			metaSourceKey: evt.OriginalKey,
			metaOwnerId:   evt.OwnerId.String(),
		}
		if err := s.blobs.Put(ctx, evt.Bucket, previewKey, preview.Data, imaging.ContentType, metadata); err != nil {
			return fmt.Errorf("store preview: %w", err)
		}
		s.logger.Info("IMAGE_STAGE", "Preview stored", map[string]interface{}{
			"item_id":     evt.ItemId.String(),
			"preview_key": previewKey,
			"width":       preview.Width,
			"height":      preview.Height,
			"source":      preview.SourceFormat,
		})
	}

	if item.PreviewKey != previewKey {
		item.PreviewKey = previewKey
		if err := uow.ItemRepository().Update(ctx, item); err != nil {
			return fmt.Errorf("record preview key: %w", err)
		}
	}

	next := events.AssetReady{
		ItemId:      evt.ItemId,
		OwnerId:     evt.OwnerId,
		Bucket:      evt.Bucket,
		OriginalKey: evt.OriginalKey,
		PreviewKey:  previewKey,
	}
	if err := s.publisher.Publish(ctx, next); err != nil {
		return fmt.Errorf("publish %s: %w", next.EventType(), err)
	}
	s.logger.Info("IMAGE_STAGE", "Published asset-ready", map[string]interface{}{
		"item_id": evt.ItemId.String(),
	})
	return nil
}

func (s *ImageStage) previewIsCurrent(ctx context.Context, bucket, key, digest string) (bool, error) {
	info, err := s.blobs.Stat(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat preview: %w", err)
	}
	return info.MetadataValue(metaDigest) == digest, nil
}
