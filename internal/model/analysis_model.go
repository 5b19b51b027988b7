package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Analysis struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItemId    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_analyses_item_version,priority:1"`
	OwnerId   uuid.UUID      `gorm:"type:uuid;not null;index"`
	Version   int            `gorm:"not null;uniqueIndex:idx_analyses_item_version,priority:2"`
	Category  string         `gorm:"type:varchar(255);index"`
	Summary   string         `gorm:"type:text"`
	Result    datatypes.JSON `gorm:"type:jsonb"`
	Provider  string         `gorm:"type:varchar(64)"`
	Model     string         `gorm:"type:varchar(128)"`
	TraceId   string         `gorm:"type:varchar(128)"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`

	Embeddings []Embedding `gorm:"foreignKey:AnalysisId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (Analysis) TableName() string {
	return "analyses"
}
