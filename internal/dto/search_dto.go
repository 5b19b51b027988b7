package dto

import "github.com/google/uuid"

type SearchRequest struct {
	Query         string `json:"query" validate:"required,max=1000"`
	TopK          int    `json:"top_k" validate:"min=0,max=50"`
	Mode          string `json:"mode" validate:"omitempty,oneof=keyword vector hybrid adaptive"`
	IncludeAnswer bool   `json:"include_answer"`
	AnswerModel   string `json:"answer_model,omitempty"`
}

type SearchResult struct {
	ItemId   uuid.UUID `json:"item_id"`
	Score    float64   `json:"score"`
	Category string    `json:"category"`
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
}

type ToolUsage struct {
	Tool   string `json:"tool"`
	Detail string `json:"detail"`
}

// SearchResponse is returned without the usual success envelope; its shape
// is the public search contract.
type SearchResponse struct {
	Results         []SearchResult `json:"results"`
	TotalResults    int            `json:"total_results"`
	RetrievalTimeMs float64        `json:"retrieval_time_ms"`
	Answer          *string        `json:"answer,omitempty"`
	Citations       []string       `json:"citations,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Reasoning       []string       `json:"reasoning,omitempty"`
	ToolsUsed       []ToolUsage    `json:"tools_used,omitempty"`
}
