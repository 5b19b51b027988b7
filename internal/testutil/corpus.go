// Package testutil seeds in-memory corpora for retrieval and service tests.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"visual-search-be/internal/entity"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/pkg/analysis"
	"visual-search-be/pkg/embedding"

	"github.com/google/uuid"
)

const HashDimensions = 64

// HashEmbedder is a deterministic bag of words embedder: every token is
// hashed into one dimension, so texts sharing words point the same way.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	Tasks []string
}

func (h *HashEmbedder) ModelName() string { return "hash-embed" }

func (h *HashEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	h.mu.Lock()
	h.Calls++
	h.Tasks = append(h.Tasks, taskType)
	h.mu.Unlock()
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: HashVector(text)},
	}, nil
}

func HashVector(text string) []float32 {
	vec := make([]float32, HashDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(w))
		vec[hasher.Sum32()%HashDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Seed stores an item, an analysis version for it and the embedding of that
// analysis, returning the item id.
func Seed(ctx context.Context, store *memory.Store, ownerId uuid.UUID, result analysis.Result) uuid.UUID {
	item := &entity.Item{
		OwnerId:          ownerId,
		Bucket:           "test",
		StorageKey:       "originals/" + uuid.NewString() + ".png",
		OriginalFilename: "image.png",
		MimeType:         "image/png",
	}
	if err := store.Items().Create(ctx, item); err != nil {
		panic(err)
	}

	a := &entity.Analysis{
		ItemId:   item.Id,
		OwnerId:  ownerId,
		Result:   result,
		Provider: "fake",
		Model:    "fake-vision",
	}
	if err := store.Analyses().CreateNextVersion(ctx, a); err != nil {
		panic(err)
	}

	text := result.EmbeddingText()
	vec := HashVector(text)
	if err := store.Embeddings().Upsert(ctx, &entity.Embedding{
		ItemId:     item.Id,
		AnalysisId: a.Id,
		OwnerId:    ownerId,
		Vector:     vec,
		Model:      "hash-embed",
		Dimensions: len(vec),
		Provenance: result.Provenance(),
		Document:   text,
	}); err != nil {
		panic(err)
	}
	return item.Id
}

// Furniture returns an analysis tagged as modern furniture.
func Furniture(headline string) analysis.Result {
	return analysis.Result{
		Category:      "furniture",
		Subcategories: []string{"modern furniture", "interior"},
		Headline:      headline,
		Summary:       "A modern furniture piece in a bright living room",
		Objects:       []string{"sofa", "chair", "furniture"},
		Vibes:         []string{"modern", "minimal"},
	}
}

// Unrelated returns an analysis with no furniture vocabulary.
func Unrelated(topic string) analysis.Result {
	return analysis.Result{
		Category: topic,
		Headline: "Photo of " + topic,
		Summary:  "A picture showing " + topic + " outdoors at noon",
		Objects:  []string{topic, "sky"},
		Vibes:    []string{"calm"},
	}
}
