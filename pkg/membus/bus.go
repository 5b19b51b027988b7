// Package membus runs the pipeline event contract over an in-process
// watermill channel. It backs EVENT_BUS=memory and the pipeline tests.
package membus

import (
	"context"
	"sync"
	"time"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Config struct {
	RedeliveryDelay time.Duration
	MaxDeliver      int
}

// Bus implements both events.Publisher and events.Subscriber. Every
// subscription receives every event of its type.
type Bus struct {
	pubSub *gochannel.GoChannel
	cfg    Config
	logger logger.ILogger

	mu       sync.Mutex
	attempts map[string]int
	wg       sync.WaitGroup
}

func New(cfg Config, log logger.ILogger) *Bus {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NopLogger{},
	)
	return &Bus{
		pubSub:   pubSub,
		cfg:      cfg,
		logger:   log,
		attempts: make(map[string]int),
	}
}

func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return b.pubSub.Publish(event.EventType(), msg)
}

// Subscribe consumes until ctx is cancelled or the bus is closed. durable is
// accepted for interface parity; gochannel keeps no consumer state.
func (b *Bus) Subscribe(ctx context.Context, eventType string, durable string, handler events.Handler) error {
	messages, err := b.pubSub.Subscribe(ctx, eventType)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.process(ctx, durable, msg, handler)
		}
	}()
	return nil
}

func (b *Bus) process(ctx context.Context, durable string, msg *message.Message, handler events.Handler) {
	env, err := events.Decode(msg.Payload)
	if err == nil {
		err = handler(ctx, env)
	}

	key := durable + "/" + msg.UUID
	if err == nil {
		b.forget(key)
		msg.Ack()
		return
	}

	if apperrors.IsInput(err) {
		b.logger.Error("MEMBUS", "Dropping event with input error", map[string]interface{}{
			"type":  eventTypeOf(env),
			"error": err.Error(),
		})
		b.forget(key)
		msg.Ack()
		return
	}

	attempt := b.attempt(key)
	if attempt >= b.cfg.MaxDeliver {
		b.logger.Error("MEMBUS", "Giving up on event after max deliveries", map[string]interface{}{
			"type":     eventTypeOf(env),
			"attempts": attempt,
			"error":    err.Error(),
		})
		b.forget(key)
		msg.Ack()
		return
	}

	b.logger.Warn("MEMBUS", "Handler failed, event will be redelivered", map[string]interface{}{
		"type":    eventTypeOf(env),
		"attempt": attempt,
		"error":   err.Error(),
	})
	if b.cfg.RedeliveryDelay > 0 {
		select {
		case <-time.After(b.cfg.RedeliveryDelay):
		case <-ctx.Done():
		}
	}
	msg.Nack()
}

func (b *Bus) attempt(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[key]++
	return b.attempts[key]
}

func (b *Bus) forget(key string) {
	b.mu.Lock()
	delete(b.attempts, key)
	b.mu.Unlock()
}

func eventTypeOf(env *events.Envelope) string {
	if env == nil {
		return ""
	}
	return env.Type
}

func (b *Bus) Close() error {
	err := b.pubSub.Close()
	b.wg.Wait()
	return err
}
