// Package pipeline holds the three event driven ingestion stages. Each stage
// consumes one event type, touches the durable store by id only and
// publishes at most one follow up event.
package pipeline

import (
	"context"
	"errors"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "visual-search/pipeline"

// Stage is a subscriber side unit of work.
type Stage interface {
	Name() string
	// EventType is the event the stage consumes.
	EventType() string
	Handle(ctx context.Context, env *events.Envelope) error
}

func startSpan(ctx context.Context, stage string, env *events.Envelope) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage, trace.WithAttributes(
		attribute.String("event.id", env.Id),
		attribute.String("event.type", env.Type),
	))
}

// finish records err on span and logs it with its error class.
func finish(span trace.Span, log logger.ILogger, module string, err error, details map[string]interface{}) error {
	defer span.End()
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if details == nil {
		details = map[string]interface{}{}
	}
	details["error"] = err.Error()
	if apperrors.IsInput(err) {
		details["class"] = "input"
		log.Error(module, "Stage rejected event", details)
	} else if errors.Is(err, context.DeadlineExceeded) {
		details["class"] = "timeout"
		log.Warn(module, "Stage timed out, event will be retried", details)
	} else {
		details["class"] = "dependency"
		log.Warn(module, "Stage failed, event will be retried", details)
	}
	return err
}
