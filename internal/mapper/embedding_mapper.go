package mapper

import (
	"visual-search-be/internal/entity"
	"visual-search-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type EmbeddingMapper struct{}

func NewEmbeddingMapper() *EmbeddingMapper {
	return &EmbeddingMapper{}
}

func (m *EmbeddingMapper) ToEntity(e *model.Embedding) *entity.Embedding {
	if e == nil {
		return nil
	}

	return &entity.Embedding{
		Id:         e.Id,
		ItemId:     e.ItemId,
		AnalysisId: e.AnalysisId,
		OwnerId:    e.OwnerId,
		Vector:     e.Vector.Slice(),
		Model:      e.Model,
		Dimensions: e.Dimensions,
		Provenance: []string(e.Provenance),
		Document:   e.Document,
		CreatedAt:  e.CreatedAt,
	}
}

func (m *EmbeddingMapper) ToModel(e *entity.Embedding) *model.Embedding {
	if e == nil {
		return nil
	}

	return &model.Embedding{
		Id:         e.Id,
		ItemId:     e.ItemId,
		AnalysisId: e.AnalysisId,
		OwnerId:    e.OwnerId,
		Vector:     pgvector.NewVector(e.Vector),
		Model:      e.Model,
		Dimensions: e.Dimensions,
		Provenance: datatypes.JSONSlice[string](e.Provenance),
		Document:   e.Document,
		CreatedAt:  e.CreatedAt,
	}
}

func (m *EmbeddingMapper) ToEntities(embeddings []*model.Embedding) []*entity.Embedding {
	entities := make([]*entity.Embedding, len(embeddings))
	for i, e := range embeddings {
		entities[i] = m.ToEntity(e)
	}
	return entities
}
