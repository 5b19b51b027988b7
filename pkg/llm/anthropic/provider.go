package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"visual-search-be/pkg/llm"

	sdk "github.com/liushuangls/go-anthropic/v2"
)

type Provider struct {
	client *sdk.Client
	model  string
}

var _ llm.LLMProvider = &Provider{}

func NewProvider(apiKey, baseURL, model string) *Provider {
	var opts []sdk.ClientOption
	if baseURL != "" {
		opts = append(opts, sdk.WithBaseURL(baseURL))
	}
	return &Provider{client: sdk.NewClient(apiKey, opts...), model: model}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) DefaultModel() string {
	return p.model
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: 0.7, Model: p.model, MaxTokens: 1024}, opts...)

	// The messages API takes the system prompt separately
	var system []string
	var messages []sdk.Message
	for _, msg := range history {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		role := sdk.RoleUser
		if msg.Role == "assistant" || msg.Role == "model" {
			role = sdk.RoleAssistant
		}

		var content []sdk.MessageContent
		for _, img := range msg.Images {
			content = append(content, sdk.MessageContent{
				Type: "image",
				Source: &sdk.MessageContentSource{
					Type:      "base64",
					MediaType: img.MimeType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		text := msg.Content
		content = append(content, sdk.MessageContent{Type: "text", Text: &text})
		messages = append(messages, sdk.Message{Role: role, Content: content})
	}

	if options.JSON {
		system = append(system, "Respond with a single JSON object and nothing else.")
	}

	temperature := float32(options.Temperature)
	resp, err := p.client.CreateMessages(ctx, sdk.MessagesRequest{
		Model:       sdk.Model(options.Model),
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		MaxTokens:   options.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		var reqErr *sdk.RequestError
		if errors.As(err, &reqErr) {
			return "", llm.StatusError("anthropic", reqErr.StatusCode, reqErr.Error())
		}
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic returned no text content")
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}
