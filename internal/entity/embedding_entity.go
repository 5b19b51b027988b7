package entity

import (
	"time"

	"github.com/google/uuid"
)

type Embedding struct {
	Id         uuid.UUID
	ItemId     uuid.UUID
	AnalysisId uuid.UUID
	OwnerId    uuid.UUID
	Vector     []float32
	Model      string
	Dimensions int
	Provenance []string
	Document   string
	CreatedAt  time.Time
}

// ScoredEmbedding wraps Embedding with its similarity score
type ScoredEmbedding struct {
	Embedding  *Embedding
	Similarity float64 // 0.0 to 1.0 (1.0 = identical direction)
}
