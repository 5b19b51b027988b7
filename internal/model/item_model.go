package model

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	Id               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerId          uuid.UUID `gorm:"type:uuid;not null;index"`
	Bucket           string    `gorm:"type:varchar(255);not null"`
	StorageKey       string    `gorm:"type:text;not null"`
	PreviewKey       string    `gorm:"type:text"`
	OriginalFilename string    `gorm:"type:varchar(512)"`
	SizeBytes        int64
	MimeType         string    `gorm:"type:varchar(128)"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`

	Analyses []Analysis `gorm:"foreignKey:ItemId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (Item) TableName() string {
	return "items"
}
