package dto

import (
	"time"

	"visual-search-be/pkg/analysis"

	"github.com/google/uuid"
)

type UploadItemResponse struct {
	Id          uuid.UUID `json:"id"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
}

type ListItemsRequest struct {
	Limit  int `query:"limit" validate:"min=0,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

type ItemSummary struct {
	Id               uuid.UUID `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	PreviewKey       string    `json:"preview_key,omitempty"`
	Category         string    `json:"category,omitempty"`
	Headline         string    `json:"headline,omitempty"`
	LatestVersion    int       `json:"latest_version"`
	CreatedAt        time.Time `json:"created_at"`
}

type ListItemsResponse struct {
	Items  []ItemSummary `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type AnalysisVersion struct {
	Id        uuid.UUID       `json:"id"`
	Version   int             `json:"version"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Result    analysis.Result `json:"result"`
	Embedded  bool            `json:"embedded"`
	CreatedAt time.Time       `json:"created_at"`
}

type ShowItemResponse struct {
	Id               uuid.UUID         `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	MimeType         string            `json:"mime_type"`
	SizeBytes        int64             `json:"size_bytes"`
	StorageKey       string            `json:"storage_key"`
	PreviewKey       string            `json:"preview_key,omitempty"`
	PreviewURL       string            `json:"preview_url,omitempty"`
	Analyses         []AnalysisVersion `json:"analyses"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        *time.Time        `json:"updated_at"`
}

type ReanalyzeRequest struct {
	Provider string `json:"provider" validate:"omitempty,oneof=ollama openai anthropic huggingface"`
	Model    string `json:"model" validate:"max=200"`
}

type ReanalyzeResponse struct {
	Id       uuid.UUID `json:"id"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
}

// UploadItemRequest is filled by the controller from the multipart form.
type UploadItemRequest struct {
	Filename string
	MimeType string
	Data     []byte
}
