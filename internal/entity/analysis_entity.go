package entity

import (
	"time"

	"visual-search-be/pkg/analysis"

	"github.com/google/uuid"
)

// Analysis is one immutable AI interpretation of an Item. Versions are
// contiguous per item starting at 1.
type Analysis struct {
	Id        uuid.UUID
	ItemId    uuid.UUID
	OwnerId   uuid.UUID
	Version   int
	Category  string
	Summary   string
	Result    analysis.Result
	Provider  string
	Model     string
	TraceId   string
	CreatedAt time.Time
}
