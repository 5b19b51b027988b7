package mapper

import (
	"time"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/model"
)

type ItemMapper struct{}

func NewItemMapper() *ItemMapper {
	return &ItemMapper{}
}

func (m *ItemMapper) ToEntity(i *model.Item) *entity.Item {
	if i == nil {
		return nil
	}

	var updatedAt *time.Time
	if !i.UpdatedAt.IsZero() {
		t := i.UpdatedAt
		updatedAt = &t
	}

	return &entity.Item{
		Id:               i.Id,
		OwnerId:          i.OwnerId,
		Bucket:           i.Bucket,
		StorageKey:       i.StorageKey,
		PreviewKey:       i.PreviewKey,
		OriginalFilename: i.OriginalFilename,
		SizeBytes:        i.SizeBytes,
		MimeType:         i.MimeType,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        updatedAt,
	}
}

func (m *ItemMapper) ToModel(i *entity.Item) *model.Item {
	if i == nil {
		return nil
	}

	var updatedAt time.Time
	if i.UpdatedAt != nil {
		updatedAt = *i.UpdatedAt
	}

	return &model.Item{
		Id:               i.Id,
		OwnerId:          i.OwnerId,
		Bucket:           i.Bucket,
		StorageKey:       i.StorageKey,
		PreviewKey:       i.PreviewKey,
		OriginalFilename: i.OriginalFilename,
		SizeBytes:        i.SizeBytes,
		MimeType:         i.MimeType,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        updatedAt,
	}
}

func (m *ItemMapper) ToEntities(items []*model.Item) []*entity.Item {
	entities := make([]*entity.Item, len(items))
	for i, it := range items {
		entities[i] = m.ToEntity(it)
	}
	return entities
}
