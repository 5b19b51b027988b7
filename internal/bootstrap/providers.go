package bootstrap

import (
	"fmt"

	"visual-search-be/internal/config"
	"visual-search-be/pkg/embedding"
	"visual-search-be/pkg/embedding/jina"
	"visual-search-be/pkg/llm/factory"
)

// NewEmbeddingProvider builds the provider named by EMBEDDING_PROVIDER.
// Indexing and querying must share it.
func NewEmbeddingProvider(cfg *config.Config) (embedding.EmbeddingProvider, error) {
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel), nil
	case "gemini":
		if cfg.Keys.GoogleGemini == "" {
			return nil, fmt.Errorf("gemini embeddings require GOOGLE_GEMINI_API_KEY")
		}
		return embedding.NewGeminiProvider(cfg.Keys.GoogleGemini, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDim), nil
	case "jina":
		if cfg.Keys.Jina == "" {
			return nil, fmt.Errorf("jina embeddings require JINA_API_KEY")
		}
		return jina.NewJinaProvider(cfg.Keys.Jina, cfg.Ai.EmbeddingModel), nil
	case "openai":
		if cfg.Keys.OpenAI == "" {
			return nil, fmt.Errorf("openai embeddings require OPENAI_API_KEY")
		}
		return embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.OpenAIBaseURL, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Ai.EmbeddingProvider)
	}
}

func llmSettings(cfg *config.Config) factory.Settings {
	return factory.Settings{
		OllamaBaseURL:  cfg.Ai.OllamaBaseURL,
		OpenAIBaseURL:  cfg.Ai.OpenAIBaseURL,
		OpenAIKey:      cfg.Keys.OpenAI,
		AnthropicKey:   cfg.Keys.Anthropic,
		HuggingFaceKey: cfg.Keys.HuggingFace,
	}
}
