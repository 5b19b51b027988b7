package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByOwnerID scopes a query to one owner's corpus
type ByOwnerID struct {
	OwnerID uuid.UUID
}

func (s ByOwnerID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("owner_id = ?", s.OwnerID)
}

type ByItemID struct {
	ItemID uuid.UUID
}

func (s ByItemID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("item_id = ?", s.ItemID)
}

type ByAnalysisID struct {
	AnalysisID uuid.UUID
}

func (s ByAnalysisID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("analysis_id = ?", s.AnalysisID)
}
