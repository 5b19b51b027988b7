package mapper

import (
	"encoding/json"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/model"
	"visual-search-be/pkg/analysis"

	"gorm.io/datatypes"
)

type AnalysisMapper struct{}

func NewAnalysisMapper() *AnalysisMapper {
	return &AnalysisMapper{}
}

func (m *AnalysisMapper) ToEntity(a *model.Analysis) *entity.Analysis {
	if a == nil {
		return nil
	}

	// Rows are validated before insert, a decode failure leaves an empty result
	var result analysis.Result
	if len(a.Result) > 0 {
		_ = json.Unmarshal(a.Result, &result)
	}

	return &entity.Analysis{
		Id:        a.Id,
		ItemId:    a.ItemId,
		OwnerId:   a.OwnerId,
		Version:   a.Version,
		Category:  a.Category,
		Summary:   a.Summary,
		Result:    result,
		Provider:  a.Provider,
		Model:     a.Model,
		TraceId:   a.TraceId,
		CreatedAt: a.CreatedAt,
	}
}

func (m *AnalysisMapper) ToModel(a *entity.Analysis) (*model.Analysis, error) {
	if a == nil {
		return nil, nil
	}

	raw, err := json.Marshal(a.Result)
	if err != nil {
		return nil, err
	}

	return &model.Analysis{
		Id:        a.Id,
		ItemId:    a.ItemId,
		OwnerId:   a.OwnerId,
		Version:   a.Version,
		Category:  a.Result.Category,
		Summary:   a.Result.Summary,
		Result:    datatypes.JSON(raw),
		Provider:  a.Provider,
		Model:     a.Model,
		TraceId:   a.TraceId,
		CreatedAt: a.CreatedAt,
	}, nil
}

func (m *AnalysisMapper) ToEntities(analyses []*model.Analysis) []*entity.Analysis {
	entities := make([]*entity.Analysis, len(analyses))
	for i, a := range analyses {
		entities[i] = m.ToEntity(a)
	}
	return entities
}
