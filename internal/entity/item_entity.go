package entity

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	Id               uuid.UUID
	OwnerId          uuid.UUID
	Bucket           string
	StorageKey       string
	PreviewKey       string
	OriginalFilename string
	SizeBytes        int64
	MimeType         string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}
