package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"visual-search-be/internal/dto"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	if p.err != nil {
		return p.err
	}
	if err := event.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type progressRecorder struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]dto.PipelineProgress
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{sent: make(map[uuid.UUID][]dto.PipelineProgress)}
}

func (r *progressRecorder) Send(ownerId uuid.UUID, progress dto.PipelineProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[ownerId] = append(r.sent[ownerId], progress)
}

func (r *progressRecorder) forOwner(ownerId uuid.UUID) []dto.PipelineProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.PipelineProgress(nil), r.sent[ownerId]...)
}

func (r *progressRecorder) has(ownerId uuid.UUID, stage, status string) bool {
	for _, p := range r.forOwner(ownerId) {
		if p.Stage == stage && p.Status == status {
			return true
		}
	}
	return false
}

// chatStub answers every request with a canned reply. It is its own
// resolver so the generator and the analysis stage can both use it.
type chatStub struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (c *chatStub) Name() string         { return "stub" }
func (c *chatStub) DefaultModel() string { return "stub-model" }

func (c *chatStub) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.reply, c.err
}

func (c *chatStub) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return c.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func (c *chatStub) Resolve(provider, model string) (llm.LLMProvider, string, error) {
	if model == "" {
		model = c.DefaultModel()
	}
	return c, model, nil
}

func (c *chatStub) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var errUnavailable = errors.New("upstream unavailable")

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func envelopeOf(t *testing.T, evt events.Event) *events.Envelope {
	t.Helper()
	data, err := events.Encode(evt)
	require.NoError(t, err)
	env, err := events.Decode(data)
	require.NoError(t, err)
	return env
}

const furnitureAnalysis = "```json\n" + `{
  "category": "furniture",
  "subcategories": ["modern furniture"],
  "headline": "Modern walnut sofa",
  "summary": "A modern furniture sofa in a bright living room.",
  "objects": ["sofa", "cushion"],
  "vibes": ["modern"]
}` + "\n```"
