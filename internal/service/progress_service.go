package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/events"

	"github.com/google/uuid"
)

// ProgressDelivery pushes progress to the owner's live connections.
// Typically implemented by the websocket hub.
type ProgressDelivery interface {
	Send(ownerId uuid.UUID, progress dto.PipelineProgress)
}

// ProgressNotifier reports stage failures that will not be retried.
type ProgressNotifier interface {
	Failed(stage string, env *events.Envelope, cause error)
}

// stageForEvent names the step an event marks as completed.
var stageForEvent = map[string]string{
	events.TypeAssetUploaded:  "upload",
	events.TypeAssetReady:     "image",
	events.TypeAnalysisReady:  "analysis",
	events.TypeEmbeddingReady: "embedding",
}

type ProgressService struct {
	subscriber events.Subscriber
	delivery   ProgressDelivery
	logger     logger.ILogger
}

func NewProgressService(sub events.Subscriber, delivery ProgressDelivery, log logger.ILogger) *ProgressService {
	return &ProgressService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start subscribes to every pipeline event type.
func (s *ProgressService) Start(ctx context.Context) error {
	for _, eventType := range []string{
		events.TypeAssetUploaded,
		events.TypeAssetReady,
		events.TypeAnalysisReady,
		events.TypeEmbeddingReady,
	} {
		if err := s.subscriber.Subscribe(ctx, eventType, "progress-"+eventType, s.handleEvent); err != nil {
			return fmt.Errorf("subscribe progress to %s: %w", eventType, err)
		}
	}
	s.logger.Info("ProgressService", "Pipeline progress listener started", nil)
	return nil
}

func (s *ProgressService) handleEvent(ctx context.Context, env *events.Envelope) error {
	stage, ok := stageForEvent[env.Type]
	if !ok {
		return nil
	}
	ref, err := refOf(env)
	if err != nil {
		s.logger.Warn("ProgressService", "Event without item reference", map[string]interface{}{"type": env.Type})
		return nil
	}
	s.delivery.Send(ref.OwnerId, dto.PipelineProgress{
		ItemId: ref.ItemId,
		Stage:  stage,
		Status: dto.ProgressCompleted,
	})
	return nil
}

// Failed tells the owner a stage gave up on an item.
func (s *ProgressService) Failed(stage string, env *events.Envelope, cause error) {
	ref, err := refOf(env)
	if err != nil {
		return
	}
	s.delivery.Send(ref.OwnerId, dto.PipelineProgress{
		ItemId: ref.ItemId,
		Stage:  strings.TrimSuffix(stage, "-stage"),
		Status: dto.ProgressFailed,
		Detail: cause.Error(),
	})
}

type itemRef struct {
	ItemId  uuid.UUID `json:"item_id"`
	OwnerId uuid.UUID `json:"owner_id"`
}

func refOf(env *events.Envelope) (itemRef, error) {
	var ref itemRef
	if err := json.Unmarshal(env.Detail, &ref); err != nil {
		return ref, err
	}
	if ref.ItemId == uuid.Nil || ref.OwnerId == uuid.Nil {
		return ref, fmt.Errorf("missing item or owner id")
	}
	return ref, nil
}
