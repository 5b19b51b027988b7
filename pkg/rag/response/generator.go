package response

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"visual-search-be/internal/constant"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/llm"

	"github.com/google/uuid"
)

// Evidence is one ranked search result handed to the model.
type Evidence struct {
	ItemId   uuid.UUID
	Score    float64
	Category string
	Headline string
	Summary  string
}

type Answer struct {
	Text string
	// Citations are the item ids behind the valid [n] markers, in order of
	// first appearance.
	Citations  []string
	Confidence float64
	Provider   string
	Model      string
}

// ProviderResolver picks the chat backend for a request.
type ProviderResolver interface {
	Resolve(provider, model string) (llm.LLMProvider, string, error)
}

// Generator writes short grounded answers over search results.
type Generator struct {
	providers   ProviderResolver
	knownPrefix map[string]bool
	logger      logger.ILogger
}

func NewGenerator(providers ProviderResolver, log logger.ILogger) *Generator {
	return &Generator{
		providers: providers,
		knownPrefix: map[string]bool{
			"ollama": true, "openai": true, "anthropic": true, "huggingface": true,
		},
		logger: log,
	}
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Generate answers query from results only. With no results it returns the
// fixed no-results answer without calling a model. modelRef is either a
// bare model name for the default backend or "backend:model".
func (g *Generator) Generate(ctx context.Context, query string, results []Evidence, modelRef string) (*Answer, error) {
	if len(results) == 0 {
		return &Answer{Text: constant.NoRelevantItemsAnswer, Citations: []string{}, Confidence: 0}, nil
	}

	backend, model := g.splitModelRef(modelRef)
	provider, model, err := g.providers.Resolve(backend, model)
	if err != nil {
		return nil, err
	}

	history := []llm.Message{
		{Role: constant.ChatMessageRoleSystem, Content: constant.AnswerSystemPromptV1},
		{Role: constant.ChatMessageRoleUser, Content: g.buildGroundedPrompt(query, results)},
	}
	text, err := provider.Chat(ctx, history, llm.WithModel(model), llm.WithTemperature(0.2))
	if err != nil {
		g.logger.Error("GENERATION", "LLM generation failed", map[string]interface{}{
			"provider": provider.Name(),
			"model":    model,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	text = strings.TrimSpace(text)
	positions := ParseCitations(text, len(results))
	answer := &Answer{
		Text:       text,
		Citations:  make([]string, len(positions)),
		Confidence: Confidence(results, positions),
		Provider:   provider.Name(),
		Model:      model,
	}
	for i, p := range positions {
		answer.Citations[i] = results[p-1].ItemId.String()
	}

	g.logger.Info("GENERATION", "Answer generated", map[string]interface{}{
		"provider":   provider.Name(),
		"model":      model,
		"results":    len(results),
		"citations":  len(positions),
		"confidence": answer.Confidence,
	})
	return answer, nil
}

func (g *Generator) splitModelRef(ref string) (string, string) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, ":"); i > 0 && g.knownPrefix[strings.ToLower(ref[:i])] {
		return strings.ToLower(ref[:i]), ref[i+1:]
	}
	return "", ref
}

func (g *Generator) buildGroundedPrompt(query string, results []Evidence) string {
	var prompt strings.Builder

	prompt.WriteString("<search_results>\n")
	for i, r := range results {
		prompt.WriteString(fmt.Sprintf("[%d] category: %s\n", i+1, r.Category))
		if r.Headline != "" {
			prompt.WriteString(fmt.Sprintf("    headline: %s\n", r.Headline))
		}
		if r.Summary != "" {
			prompt.WriteString(fmt.Sprintf("    summary: %s\n", r.Summary))
		}
	}
	prompt.WriteString("</search_results>\n\n")

	prompt.WriteString("<task_instructions>\n")
	prompt.WriteString("1. Answer ONLY from <search_results>.\n")
	prompt.WriteString(fmt.Sprintf("2. Cite results with their number in brackets, between [1] and [%d].\n", len(results)))
	prompt.WriteString("3. If the results cannot answer the question, start with \"Insufficient results:\" and explain what is missing.\n")
	prompt.WriteString("</task_instructions>\n\n")

	prompt.WriteString(fmt.Sprintf("Question: %s", query))
	return prompt.String()
}

// ParseCitations returns the distinct 1-based positions cited in text, in
// order of first appearance. Markers outside [1, count] are dropped.
func ParseCitations(text string, count int) []int {
	var positions []int
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > count || seen[n] {
			continue
		}
		seen[n] = true
		positions = append(positions, n)
	}
	return positions
}

// Confidence is the mean retrieval score of the cited results relative to
// the best score in the list, in [0, 1]. No citations means no confidence.
func Confidence(results []Evidence, positions []int) float64 {
	if len(positions) == 0 || len(results) == 0 {
		return 0
	}
	top := 0.0
	for _, r := range results {
		if r.Score > top {
			top = r.Score
		}
	}
	if top <= 0 {
		return 0
	}
	var sum float64
	for _, p := range positions {
		sum += results[p-1].Score
	}
	c := sum / float64(len(positions)) / top
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
