package factory

import (
	"fmt"
	"sync"

	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/llm"
	"visual-search-be/pkg/llm/anthropic"
	"visual-search-be/pkg/llm/ollama"
	"visual-search-be/pkg/llm/openai"
)

type Settings struct {
	OllamaBaseURL  string
	OpenAIBaseURL  string
	OpenAIKey      string
	AnthropicKey   string
	AnthropicURL   string
	HuggingFaceKey string
	HuggingFaceURL string
}

func NewLLMProvider(providerType, modelName string, s Settings) (llm.LLMProvider, error) {
	switch providerType {
	case "ollama":
		baseURL := s.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "openai":
		if s.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return openai.NewProvider(s.OpenAIKey, s.OpenAIBaseURL, modelName), nil
	case "huggingface":
		// the HF router speaks the OpenAI chat completions protocol
		baseURL := s.HuggingFaceURL
		if baseURL == "" {
			baseURL = "https://router.huggingface.co/v1"
		}
		return openai.NewProvider(s.HuggingFaceKey, baseURL, modelName), nil
	case "anthropic":
		if s.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return anthropic.NewProvider(s.AnthropicKey, s.AnthropicURL, modelName), nil
	default:
		return nil, apperrors.Input(fmt.Errorf("%w: unsupported LLM provider %q", apperrors.ErrInvalidInput, providerType))
	}
}

// Registry hands out one provider per backend and falls back to a default
// backend. Callers pick the model per request with llm.WithModel.
type Registry struct {
	settings        Settings
	defaultProvider string
	defaultModel    string

	mu        sync.Mutex
	providers map[string]llm.LLMProvider
}

func NewRegistry(defaultProvider, defaultModel string, s Settings) *Registry {
	return &Registry{
		settings:        s,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
		providers:       make(map[string]llm.LLMProvider),
	}
}

// Register installs a ready provider, replacing any cached one of that name.
func (r *Registry) Register(p llm.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the provider for name (the default when empty) together
// with the model to request: model if set, else the default model when the
// default provider is used, else that provider's own default.
func (r *Registry) Resolve(name, model string) (llm.LLMProvider, string, error) {
	if name == "" {
		name = r.defaultProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		defaultModel := ""
		if name == r.defaultProvider {
			defaultModel = r.defaultModel
		}
		created, err := NewLLMProvider(name, defaultModel, r.settings)
		if err != nil {
			return nil, "", err
		}
		r.providers[name] = created
		p = created
	}

	if model == "" {
		model = p.DefaultModel()
		if name == r.defaultProvider && r.defaultModel != "" {
			model = r.defaultModel
		}
	}
	return p, model, nil
}

func (r *Registry) Default() (string, string) {
	return r.defaultProvider, r.defaultModel
}
