package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type SubscriberConfig struct {
	// AckWait must exceed the slowest stage, otherwise JetStream redelivers
	// while the first attempt is still running.
	AckWait    time.Duration
	MaxDeliver int
}

// Subscriber consumes pipeline events through durable JetStream consumers.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    SubscriberConfig
	logger logger.ILogger

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
}

func NewSubscriber(ctx context.Context, url string, cfg SubscriberConfig, log logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	if err := ensureStream(ctx, js); err != nil {
		log.Warn("NATS", "Stream setup failed", map[string]interface{}{"error": err.Error()})
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 3 * time.Minute
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}
	return &Subscriber{nc: nc, js: js, cfg: cfg, logger: log}, nil
}

// Subscribe uses a durable consumer with explicit acks. Handler success and
// input errors ack the message (input errors are terminated so they are never
// redelivered); dependency errors nak it with an increasing delay.
func (s *Subscriber) Subscribe(ctx context.Context, eventType string, durable string, handler events.Handler) error {
	subject := subjectFor(eventType)
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.dispatch(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.mu.Lock()
	s.consumes = append(s.consumes, cc)
	s.mu.Unlock()

	s.logger.Info("NATS", "Subscribed", map[string]interface{}{"subject": subject, "durable": durable})
	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, msg jetstream.Msg, handler events.Handler) {
	env, err := events.Decode(msg.Data())
	if err == nil {
		err = handler(ctx, env)
	}

	switch {
	case err == nil:
		_ = msg.Ack()
	case apperrors.IsInput(err):
		s.logger.Error("NATS", "Dropping event with input error", map[string]interface{}{
			"subject": msg.Subject(),
			"error":   err.Error(),
		})
		_ = msg.Term()
	default:
		delay := redeliveryDelay(msg)
		s.logger.Warn("NATS", "Handler failed, event will be redelivered", map[string]interface{}{
			"subject": msg.Subject(),
			"error":   err.Error(),
			"delay":   delay.String(),
		})
		_ = msg.NakWithDelay(delay)
	}
}

// redeliveryDelay doubles from one second per attempt, capped at one minute.
func redeliveryDelay(msg jetstream.Msg) time.Duration {
	attempt := uint64(1)
	if md, err := msg.Metadata(); err == nil && md.NumDelivered > 0 {
		attempt = md.NumDelivered
	}
	return backoff(attempt)
}

func backoff(attempt uint64) time.Duration {
	if attempt > 6 {
		return time.Minute
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	for _, cc := range s.consumes {
		cc.Stop()
	}
	s.consumes = nil
	s.mu.Unlock()

	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}
