//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"visual-search-be/internal/bootstrap"
	"visual-search-be/internal/config"
	"visual-search-be/pkg/embedding"
)

// CosineSimilarity calculates similarity between two vectors
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Usage: go run scripts/compare_embeddings.go ollama gemini
// Each argument overrides EMBEDDING_PROVIDER for one run.
func main() {
	cfg := config.Load()
	providers := os.Args[1:]
	if len(providers) == 0 {
		providers = []string{cfg.Ai.EmbeddingProvider}
	}

	// An analysis document and two queries against it
	document := "Modern walnut sofa with green velvet cushions in a bright living room furniture mid-century cozy"
	similar := "mid-century couch"
	different := "handwritten grocery list"

	ctx := context.Background()
	for _, name := range providers {
		cfg.Ai.EmbeddingProvider = name
		p, err := bootstrap.NewEmbeddingProvider(cfg)
		if err != nil {
			log.Printf("Skipping %s: %v", name, err)
			continue
		}

		doc, err := p.Generate(ctx, document, embedding.TaskDocument)
		if err != nil {
			log.Printf("Error %s (document): %v", name, err)
			continue
		}
		q1, err := p.Generate(ctx, similar, embedding.TaskQuery)
		if err != nil {
			log.Printf("Error %s (similar): %v", name, err)
			continue
		}
		q2, err := p.Generate(ctx, different, embedding.TaskQuery)
		if err != nil {
			log.Printf("Error %s (different): %v", name, err)
			continue
		}

		fmt.Printf("\n[%s] %s (%d dims)\n", strings.ToUpper(name), p.ModelName(), len(doc.Embedding.Values))
		if len(doc.Embedding.Values) != cfg.Ai.EmbeddingDim {
			fmt.Printf("WARNING: column is vector(%d), this model cannot be indexed as configured\n", cfg.Ai.EmbeddingDim)
		}
		fmt.Printf("Similarity (document vs %q): %.4f\n", similar, CosineSimilarity(doc.Embedding.Values, q1.Embedding.Values))
		fmt.Printf("Similarity (document vs %q): %.4f\n", different, CosineSimilarity(doc.Embedding.Values, q2.Embedding.Values))
	}
}
