package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/pkg/events"
	"visual-search-be/pkg/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
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

type visionStub struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	images   []llm.Image
	resolved [][2]string
}

func (v *visionStub) Name() string         { return "stub" }
func (v *visionStub) DefaultModel() string { return "stub-vision" }

func (v *visionStub) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	for _, m := range history {
		v.images = append(v.images, m.Images...)
	}
	return v.reply, v.err
}

func (v *visionStub) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return v.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func (v *visionStub) Resolve(provider, model string) (llm.LLMProvider, string, error) {
	v.mu.Lock()
	v.resolved = append(v.resolved, [2]string{provider, model})
	v.mu.Unlock()
	if model == "" {
		model = v.DefaultModel()
	}
	return v, model, nil
}

func envelope(t *testing.T, evt events.Event) *events.Envelope {
	t.Helper()
	data, err := events.Encode(evt)
	require.NoError(t, err)
	env, err := events.Decode(data)
	require.NoError(t, err)
	return env
}

// transparentPNG draws a half transparent w x h image.
func transparentPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func seedItem(t *testing.T, store *memory.Store, owner uuid.UUID, key string) *entity.Item {
	t.Helper()
	item := &entity.Item{
		OwnerId:          owner,
		Bucket:           "media",
		StorageKey:       key,
		OriginalFilename: "chair.png",
		MimeType:         "image/png",
	}
	require.NoError(t, store.Items().Create(context.Background(), item))
	return item
}

const validAnalysis = "```json\n" + `{
  "category": "furniture",
  "subcategories": ["chairs"],
  "headline": "Mid-century lounge chair",
  "summary": "A walnut lounge chair with leather cushions.",
  "extracted_text": "EAMES",
  "objects": ["chair", "ottoman"]
}` + "\n```"
