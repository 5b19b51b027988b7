package retrieval

import (
	"visual-search-be/internal/entity"
	"visual-search-be/internal/testutil"
	"visual-search-be/pkg/analysis"

	"github.com/google/uuid"
)

func entityFor(itemId, ownerId uuid.UUID, topic string) *entity.Analysis {
	return &entity.Analysis{
		ItemId:  itemId,
		OwnerId: ownerId,
		Result: analysis.Result{
			Category: topic,
			Headline: topic,
			Summary:  "A view of a " + topic,
		},
		Provider: "fake",
		Model:    "fake-vision",
	}
}

func embeddingFor(a *entity.Analysis, text string) *entity.Embedding {
	vec := testutil.HashVector(text)
	return &entity.Embedding{
		ItemId:     a.ItemId,
		AnalysisId: a.Id,
		OwnerId:    a.OwnerId,
		Vector:     vec,
		Model:      "hash-embed",
		Dimensions: len(vec),
		Document:   text,
	}
}
