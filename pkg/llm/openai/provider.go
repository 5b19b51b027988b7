package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"visual-search-be/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

// Provider talks to OpenAI or any OpenAI compatible endpoint.
type Provider struct {
	client *goopenai.Client
	model  string
}

var _ llm.LLMProvider = &Provider{}

func NewProvider(apiKey, baseURL, model string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg), model: model}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) DefaultModel() string {
	return p.model
}

func toMessage(msg llm.Message) goopenai.ChatCompletionMessage {
	role := msg.Role
	if role == "model" {
		role = goopenai.ChatMessageRoleAssistant
	}
	if len(msg.Images) == 0 {
		return goopenai.ChatCompletionMessage{Role: role, Content: msg.Content}
	}

	parts := []goopenai.ChatMessagePart{{Type: goopenai.ChatMessagePartTypeText, Text: msg.Content}}
	for _, img := range msg.Images {
		uri := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, goopenai.ChatMessagePart{
			Type:     goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{URL: uri, Detail: goopenai.ImageURLDetailAuto},
		})
	}
	return goopenai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: 0.7, Model: p.model}, opts...)

	messages := make([]goopenai.ChatCompletionMessage, len(history))
	for i, msg := range history {
		messages[i] = toMessage(msg)
	}

	req := goopenai.ChatCompletionRequest{
		Model:       options.Model,
		Messages:    messages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}
	if options.JSON {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: goopenai.ChatMessageRoleUser, Content: prompt}}, opts...)
}

// classify maps go-openai errors onto the input/dependency split.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return llm.StatusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return llm.StatusError("openai", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return fmt.Errorf("openai request failed: %w", err)
}
