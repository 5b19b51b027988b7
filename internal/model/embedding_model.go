package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type Embedding struct {
	Id         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItemId     uuid.UUID       `gorm:"type:uuid;not null;index"`
	AnalysisId uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"` // one embedding per analysis, replaced on redelivery
	OwnerId    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Vector     pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text / text-embedding-004 dimensions
	Model      string          `gorm:"type:varchar(128)"`
	Dimensions int
	Provenance datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Document   string                      `gorm:"type:text"`
	CreatedAt  time.Time                   `gorm:"autoCreateTime"`
}

func (Embedding) TableName() string {
	return "embeddings"
}
