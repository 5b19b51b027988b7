package embedding

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// CachedProvider memoises query embeddings in Redis. Repeated searches for
// the same text skip the provider round trip. Document embeddings are never
// cached: each one is computed once per analysis anyway.
type CachedProvider struct {
	inner EmbeddingProvider
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedProvider(inner EmbeddingProvider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedProvider) ModelName() string {
	return c.inner.ModelName()
}

func (c *CachedProvider) key(text string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(text)))
	return "embedding:query:" + c.inner.ModelName() + ":" + hex.EncodeToString(sum[:16])
}

// Generate treats Redis as best effort: read or write failures fall through
// to the provider.
func (c *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	if taskType != TaskQuery || c.rdb == nil {
		return c.inner.Generate(ctx, text, taskType)
	}

	key := c.key(text)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var values []float32
		if json.Unmarshal(raw, &values) == nil && len(values) > 0 {
			return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}, nil
		}
	}

	resp, err := c.inner.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(resp.Embedding.Values); err == nil {
		_ = c.rdb.Set(ctx, key, raw, c.ttl).Err()
	}
	return resp, nil
}
