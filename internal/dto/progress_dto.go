package dto

import "github.com/google/uuid"

const (
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// PipelineProgress is pushed to the owner over the pipeline websocket.
type PipelineProgress struct {
	ItemId uuid.UUID `json:"item_id"`
	Stage  string    `json:"stage"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
}
