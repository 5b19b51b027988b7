package membus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analysisReady() events.AnalysisReady {
	return events.AnalysisReady{ItemId: uuid.New(), AnalysisId: uuid.New(), OwnerId: uuid.New()}
}

func TestBus_DeliversTypedEvent(t *testing.T) {
	bus := New(Config{}, logger.NewNopLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan events.AnalysisReady, 1)
	require.NoError(t, bus.Subscribe(ctx, events.TypeAnalysisReady, "embedding", func(ctx context.Context, env *events.Envelope) error {
		var evt events.AnalysisReady
		if err := env.Into(&evt); err != nil {
			return err
		}
		got <- evt
		return nil
	}))

	sent := analysisReady()
	require.NoError(t, bus.Publish(ctx, sent))

	select {
	case evt := <-got:
		assert.Equal(t, sent.AnalysisId, evt.AnalysisId)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_RedeliversDependencyErrors(t *testing.T) {
	bus := New(Config{MaxDeliver: 5}, logger.NewNopLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(ctx, events.TypeAnalysisReady, "embedding", func(ctx context.Context, env *events.Envelope) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("provider timeout")
		}
		close(done)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, analysisReady()))

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	case <-time.After(2 * time.Second):
		t.Fatal("event not redelivered")
	}
}

func TestBus_DoesNotRedeliverInputErrors(t *testing.T) {
	bus := New(Config{MaxDeliver: 5}, logger.NewNopLogger())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, bus.Subscribe(ctx, events.TypeAnalysisReady, "embedding", func(ctx context.Context, env *events.Envelope) error {
		atomic.AddInt32(&calls, 1)
		return apperrors.Input(apperrors.ErrEmptyDocument)
	}))

	require.NoError(t, bus.Publish(ctx, analysisReady()))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBus_PublishRejectsInvalidEvent(t *testing.T) {
	bus := New(Config{}, logger.NewNopLogger())
	defer bus.Close()

	err := bus.Publish(context.Background(), events.AnalysisReady{ItemId: uuid.New()})
	require.Error(t, err)
	assert.True(t, apperrors.IsInput(err))
}
