package service

import (
	"context"
	"fmt"
	"time"

	"visual-search-be/internal/pipeline"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/events"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService binds each pipeline stage to its event type on the bus.
// Each stage uses its own name as the durable consumer.
type consumerService struct {
	subscriber events.Subscriber
	stages     []pipeline.Stage
	timeout    time.Duration
	progress   ProgressNotifier
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber events.Subscriber,
	timeout time.Duration,
	progress ProgressNotifier,
	log logger.ILogger,
	stages ...pipeline.Stage,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		stages:     stages,
		timeout:    timeout,
		progress:   progress,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	for _, stage := range cs.stages {
		if err := cs.subscriber.Subscribe(ctx, stage.EventType(), stage.Name(), cs.handlerFor(stage)); err != nil {
			return fmt.Errorf("subscribe %s: %w", stage.Name(), err)
		}
		cs.logger.Info("ConsumerService", "Stage subscribed", map[string]interface{}{
			"stage": stage.Name(),
			"event": stage.EventType(),
		})
	}
	return nil
}

// handlerFor bounds every invocation by the stage timeout. An expired
// deadline surfaces as a dependency error, so the bus redelivers.
func (cs *consumerService) handlerFor(stage pipeline.Stage) events.Handler {
	return func(ctx context.Context, env *events.Envelope) error {
		if cs.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cs.timeout)
			defer cancel()
		}

		err := stage.Handle(ctx, env)
		if err != nil && apperrors.IsInput(err) && cs.progress != nil {
			cs.progress.Failed(stage.Name(), env, err)
		}
		return err
	}
}
