// Package events defines the handoff contract between pipeline stages and
// the bus abstraction the stages publish to and consume from.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"visual-search-be/pkg/apperrors"

	"github.com/google/uuid"
)

const (
	TypeAssetUploaded  = "asset-uploaded"
	TypeAssetReady     = "asset-ready"
	TypeAnalysisReady  = "analysis-ready"
	TypeEmbeddingReady = "embedding-ready"
)

// Event is implemented by every typed pipeline event.
type Event interface {
	// EventType returns the wire name, e.g. "asset-ready".
	EventType() string

	// Validate reports missing required fields as an input error.
	Validate() error
}

// Envelope is the wire format shared by every bus implementation.
type Envelope struct {
	Id         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Detail     json.RawMessage `json:"detail"`
}

// Timestamp returns when the event was published.
func (e *Envelope) Timestamp() time.Time {
	return e.OccurredAt
}

// Encode wraps event in an Envelope and marshals it.
func Encode(event Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	detail, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s detail: %w", event.EventType(), err)
	}
	return json.Marshal(Envelope{
		Id:         uuid.NewString(),
		Type:       event.EventType(),
		OccurredAt: time.Now().UTC(),
		Detail:     detail,
	})
}

// Decode parses an envelope. A payload that is not an envelope is an input
// error: redelivering it can never succeed.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Input(fmt.Errorf("decode envelope: %w", err))
	}
	if env.Type == "" {
		return nil, apperrors.Input(fmt.Errorf("%w: envelope without type", apperrors.ErrInvalidInput))
	}
	return &env, nil
}

// Into decodes the envelope detail into target and validates it.
func (e *Envelope) Into(target Event) error {
	if e.Type != target.EventType() {
		return apperrors.Input(fmt.Errorf("%w: expected %s event, got %s", apperrors.ErrInvalidInput, target.EventType(), e.Type))
	}
	if err := json.Unmarshal(e.Detail, target); err != nil {
		return apperrors.Input(fmt.Errorf("decode %s detail: %w", e.Type, err))
	}
	return target.Validate()
}

// Handler processes one delivered event. Returning nil or an input error
// acknowledges the delivery; any other error asks the bus to redeliver.
type Handler func(ctx context.Context, env *Envelope) error

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type Subscriber interface {
	// Subscribe registers handler for one event type under a durable
	// consumer name. Deliveries are at-least-once.
	Subscribe(ctx context.Context, eventType string, durable string, handler Handler) error
	Close() error
}

func missing(eventType string, fields ...string) error {
	return apperrors.Input(fmt.Errorf("%w: %s event missing %v", apperrors.ErrInvalidInput, eventType, fields))
}
