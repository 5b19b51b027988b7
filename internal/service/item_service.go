package service

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/entity"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/specification"
	"visual-search-be/internal/repository/unitofwork"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/blob"
	"visual-search-be/pkg/events"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 20
	previewURLExpiry = 15 * time.Minute
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// IndexInvalidator drops cached search state for an owner.
type IndexInvalidator interface {
	Invalidate(ownerId uuid.UUID)
}

type IItemService interface {
	Upload(ctx context.Context, ownerId uuid.UUID, req *dto.UploadItemRequest) (*dto.UploadItemResponse, error)
	List(ctx context.Context, ownerId uuid.UUID, req *dto.ListItemsRequest) (*dto.ListItemsResponse, error)
	Show(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*dto.ShowItemResponse, error)
	Delete(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) error
	Reanalyze(ctx context.Context, ownerId uuid.UUID, id uuid.UUID, req *dto.ReanalyzeRequest) (*dto.ReanalyzeResponse, error)
}

type itemService struct {
	uowFactory  unitofwork.RepositoryFactory
	blobs       blob.ObjectStore
	publisher   events.Publisher
	invalidator IndexInvalidator
	maxBytes    int64
	logger      logger.ILogger
}

func NewItemService(
	uowFactory unitofwork.RepositoryFactory,
	blobs blob.ObjectStore,
	publisher events.Publisher,
	invalidator IndexInvalidator,
	maxBytes int64,
	log logger.ILogger,
) IItemService {
	return &itemService{
		uowFactory:  uowFactory,
		blobs:       blobs,
		publisher:   publisher,
		invalidator: invalidator,
		maxBytes:    maxBytes,
		logger:      log,
	}
}

// OriginalKey is where an uploaded original lives in the bucket.
func OriginalKey(ownerId, itemId uuid.UUID, filename string) string {
	return fmt.Sprintf("originals/%s/%s/%s", ownerId, itemId, filename)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

func (s *itemService) Upload(ctx context.Context, ownerId uuid.UUID, req *dto.UploadItemRequest) (*dto.UploadItemResponse, error) {
	if len(req.Data) == 0 {
		return nil, apperrors.Input(fmt.Errorf("%w: empty upload", apperrors.ErrInvalidInput))
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return nil, apperrors.Input(fmt.Errorf("%w: upload exceeds %d bytes", apperrors.ErrInvalidInput, s.maxBytes))
	}

	// Sniffed type wins over the client supplied header.
	mimeType := http.DetectContentType(req.Data)
	if !allowedImageTypes[mimeType] {
		mimeType = strings.ToLower(strings.TrimSpace(req.MimeType))
	}
	if !allowedImageTypes[mimeType] {
		return nil, apperrors.Input(fmt.Errorf("%w: unsupported file type %q", apperrors.ErrUnsupportedImage, mimeType))
	}

	item := entity.Item{
		Id:               uuid.New(),
		OwnerId:          ownerId,
		Bucket:           s.blobs.Bucket(),
		OriginalFilename: sanitizeFilename(req.Filename),
		SizeBytes:        int64(len(req.Data)),
		MimeType:         mimeType,
		CreatedAt:        time.Now(),
	}
	item.StorageKey = OriginalKey(ownerId, item.Id, item.OriginalFilename)

	if err := s.blobs.Put(ctx, item.Bucket, item.StorageKey, req.Data, mimeType, nil); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ItemRepository().Create(ctx, &item); err != nil {
		s.removeBlobs(ctx, item.Bucket, item.StorageKey)
		return nil, err
	}

	err := s.publisher.Publish(ctx, events.AssetUploaded{
		ItemId:      item.Id,
		OwnerId:     ownerId,
		Bucket:      item.Bucket,
		OriginalKey: item.StorageKey,
		MimeType:    mimeType,
	})
	if err != nil {
		// Nothing downstream will ever see this item, so undo it.
		if delErr := uow.ItemRepository().Delete(ctx, item.Id); delErr != nil {
			s.logger.Error("ItemService", "Failed to roll back item after publish failure", map[string]interface{}{
				"item_id": item.Id,
				"error":   delErr.Error(),
			})
		}
		s.removeBlobs(ctx, item.Bucket, item.StorageKey)
		return nil, fmt.Errorf("publish %s: %w", events.TypeAssetUploaded, err)
	}

	s.logger.Info("ItemService", "Item uploaded", map[string]interface{}{
		"item_id":  item.Id,
		"owner_id": ownerId,
		"key":      item.StorageKey,
		"bytes":    item.SizeBytes,
	})

	return &dto.UploadItemResponse{
		Id:          item.Id,
		StorageKey:  item.StorageKey,
		ContentType: mimeType,
	}, nil
}

func (s *itemService) List(ctx context.Context, ownerId uuid.UUID, req *dto.ListItemsRequest) (*dto.ListItemsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.ItemRepository().Count(ctx, specification.ByOwnerID{OwnerID: ownerId})
	if err != nil {
		return nil, err
	}
	items, err := uow.ItemRepository().FindAll(ctx,
		specification.ByOwnerID{OwnerID: ownerId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: req.Offset},
	)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.Id
	}
	latest := map[uuid.UUID]*entity.Analysis{}
	if len(ids) > 0 {
		latest, err = uow.AnalysisRepository().FindLatestByItemIds(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	res := &dto.ListItemsResponse{
		Items:  make([]dto.ItemSummary, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: req.Offset,
	}
	for _, it := range items {
		summary := dto.ItemSummary{
			Id:               it.Id,
			OriginalFilename: it.OriginalFilename,
			MimeType:         it.MimeType,
			SizeBytes:        it.SizeBytes,
			PreviewKey:       it.PreviewKey,
			CreatedAt:        it.CreatedAt,
		}
		if a, ok := latest[it.Id]; ok {
			summary.Category = a.Category
			summary.Headline = a.Result.Headline
			summary.LatestVersion = a.Version
		}
		res.Items = append(res.Items, summary)
	}
	return res, nil
}

func (s *itemService) findOwned(ctx context.Context, uow unitofwork.UnitOfWork, ownerId, id uuid.UUID) (*entity.Item, error) {
	item, err := uow.ItemRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByOwnerID{OwnerID: ownerId},
	)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %s: %w", id, apperrors.ErrNotFound)
	}
	return item, nil
}

func (s *itemService) Show(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) (*dto.ShowItemResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	item, err := s.findOwned(ctx, uow, ownerId, id)
	if err != nil {
		return nil, err
	}

	analyses, err := uow.AnalysisRepository().FindAll(ctx,
		specification.ByItemID{ItemID: id},
		specification.OrderBy{Field: "version", Desc: true},
	)
	if err != nil {
		return nil, err
	}
	embeddings, err := uow.EmbeddingRepository().FindAll(ctx, specification.ByItemID{ItemID: id})
	if err != nil {
		return nil, err
	}
	embedded := make(map[uuid.UUID]bool, len(embeddings))
	for _, e := range embeddings {
		embedded[e.AnalysisId] = true
	}

	res := &dto.ShowItemResponse{
		Id:               item.Id,
		OriginalFilename: item.OriginalFilename,
		MimeType:         item.MimeType,
		SizeBytes:        item.SizeBytes,
		StorageKey:       item.StorageKey,
		PreviewKey:       item.PreviewKey,
		Analyses:         make([]dto.AnalysisVersion, 0, len(analyses)),
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
	for _, a := range analyses {
		res.Analyses = append(res.Analyses, dto.AnalysisVersion{
			Id:        a.Id,
			Version:   a.Version,
			Provider:  a.Provider,
			Model:     a.Model,
			Result:    a.Result,
			Embedded:  embedded[a.Id],
			CreatedAt: a.CreatedAt,
		})
	}

	if item.PreviewKey != "" {
		url, err := s.blobs.PresignGet(ctx, item.Bucket, item.PreviewKey, previewURLExpiry)
		if err != nil {
			s.logger.Warn("ItemService", "Failed to presign preview", map[string]interface{}{
				"item_id": item.Id,
				"error":   err.Error(),
			})
		} else {
			res.PreviewURL = url
		}
	}
	return res, nil
}

// Delete removes rows children first inside one transaction, then the blobs
// on a best effort basis.
func (s *itemService) Delete(ctx context.Context, ownerId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	item, err := s.findOwned(ctx, uow, ownerId, id)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	if err := uow.EmbeddingRepository().DeleteByItemId(ctx, id); err != nil {
		return err
	}
	if err := uow.AnalysisRepository().DeleteByItemId(ctx, id); err != nil {
		return err
	}
	if err := uow.ItemRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	keys := []string{item.StorageKey}
	if item.PreviewKey != "" {
		keys = append(keys, item.PreviewKey)
	}
	s.removeBlobs(ctx, item.Bucket, keys...)
	if s.invalidator != nil {
		s.invalidator.Invalidate(ownerId)
	}

	s.logger.Info("ItemService", "Item deleted", map[string]interface{}{
		"item_id":  id,
		"owner_id": ownerId,
	})
	return nil
}

func (s *itemService) removeBlobs(ctx context.Context, bucket string, keys ...string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, bucket, key); err != nil {
			s.logger.Warn("ItemService", "Blob cleanup failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
}

// Reanalyze asks the analysis stage for a new version, optionally with a
// different provider or model.
func (s *itemService) Reanalyze(ctx context.Context, ownerId uuid.UUID, id uuid.UUID, req *dto.ReanalyzeRequest) (*dto.ReanalyzeResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	item, err := s.findOwned(ctx, uow, ownerId, id)
	if err != nil {
		return nil, err
	}
	if item.PreviewKey == "" {
		return nil, apperrors.Input(fmt.Errorf("%w: item %s has no preview yet", apperrors.ErrInvalidInput, id))
	}

	err = s.publisher.Publish(ctx, events.AssetReady{
		ItemId:      item.Id,
		OwnerId:     ownerId,
		Bucket:      item.Bucket,
		OriginalKey: item.StorageKey,
		PreviewKey:  item.PreviewKey,
		Provider:    req.Provider,
		Model:       req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", events.TypeAssetReady, err)
	}

	s.logger.Info("ItemService", "Re-analysis requested", map[string]interface{}{
		"item_id":  id,
		"provider": req.Provider,
		"model":    req.Model,
	})
	return &dto.ReanalyzeResponse{Id: item.Id, Provider: req.Provider, Model: req.Model}, nil
}
