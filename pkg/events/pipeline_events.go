package events

import "github.com/google/uuid"

// AssetUploaded is emitted when an original image lands in the blob store.
type AssetUploaded struct {
	ItemId      uuid.UUID `json:"item_id"`
	OwnerId     uuid.UUID `json:"owner_id"`
	Bucket      string    `json:"bucket_locator"`
	OriginalKey string    `json:"original_key"`
	MimeType    string    `json:"mime_type,omitempty"`
}

func (AssetUploaded) EventType() string { return TypeAssetUploaded }

func (e AssetUploaded) Validate() error {
	var absent []string
	if e.ItemId == uuid.Nil {
		absent = append(absent, "item_id")
	}
	if e.OwnerId == uuid.Nil {
		absent = append(absent, "owner_id")
	}
	if e.Bucket == "" {
		absent = append(absent, "bucket_locator")
	}
	if e.OriginalKey == "" {
		absent = append(absent, "original_key")
	}
	if len(absent) > 0 {
		return missing(TypeAssetUploaded, absent...)
	}
	return nil
}

// AssetReady is emitted by the image stage once the preview is stored.
// Provider and Model optionally override the default vision model.
type AssetReady struct {
	ItemId      uuid.UUID `json:"item_id"`
	OwnerId     uuid.UUID `json:"owner_id"`
	Bucket      string    `json:"bucket_locator"`
	OriginalKey string    `json:"original_key"`
	PreviewKey  string    `json:"preview_key"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
}

func (AssetReady) EventType() string { return TypeAssetReady }

func (e AssetReady) Validate() error {
	var absent []string
	if e.ItemId == uuid.Nil {
		absent = append(absent, "item_id")
	}
	if e.OwnerId == uuid.Nil {
		absent = append(absent, "owner_id")
	}
	if e.Bucket == "" {
		absent = append(absent, "bucket_locator")
	}
	if e.OriginalKey == "" {
		absent = append(absent, "original_key")
	}
	if e.PreviewKey == "" {
		absent = append(absent, "preview_key")
	}
	if len(absent) > 0 {
		return missing(TypeAssetReady, absent...)
	}
	return nil
}

// AnalysisReady names the analysis version the analysis stage just created.
type AnalysisReady struct {
	ItemId     uuid.UUID `json:"item_id"`
	AnalysisId uuid.UUID `json:"analysis_id"`
	OwnerId    uuid.UUID `json:"owner_id"`
	Version    int       `json:"version,omitempty"`
}

func (AnalysisReady) EventType() string { return TypeAnalysisReady }

func (e AnalysisReady) Validate() error {
	var absent []string
	if e.ItemId == uuid.Nil {
		absent = append(absent, "item_id")
	}
	if e.AnalysisId == uuid.Nil {
		absent = append(absent, "analysis_id")
	}
	if e.OwnerId == uuid.Nil {
		absent = append(absent, "owner_id")
	}
	if len(absent) > 0 {
		return missing(TypeAnalysisReady, absent...)
	}
	return nil
}

// EmbeddingReady closes the chain. Only the progress hub listens to it.
type EmbeddingReady struct {
	ItemId      uuid.UUID `json:"item_id"`
	AnalysisId  uuid.UUID `json:"analysis_id"`
	EmbeddingId uuid.UUID `json:"embedding_id"`
	OwnerId     uuid.UUID `json:"owner_id"`
}

func (EmbeddingReady) EventType() string { return TypeEmbeddingReady }

func (e EmbeddingReady) Validate() error {
	if e.ItemId == uuid.Nil || e.AnalysisId == uuid.Nil || e.EmbeddingId == uuid.Nil || e.OwnerId == uuid.Nil {
		return missing(TypeEmbeddingReady, "item_id", "analysis_id", "embedding_id", "owner_id")
	}
	return nil
}
