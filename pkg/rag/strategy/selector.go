// Package strategy decides which retrievers a search runs and how their
// results are combined.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/rag/fusion"
	"visual-search-be/pkg/rag/retrieval"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeVector   Mode = "vector"
	ModeHybrid   Mode = "hybrid"
	ModeAdaptive Mode = "adaptive"
)

// ParseMode accepts the API names of the modes. An empty string means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeHybrid, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeVector:
		return ModeVector, nil
	case ModeHybrid:
		return ModeHybrid, nil
	case ModeAdaptive:
		return ModeAdaptive, nil
	}
	return "", apperrors.Input(fmt.Errorf("%w: unknown search mode %q", apperrors.ErrInvalidInput, s))
}

type Config struct {
	FusionK float64
	// OverFetch is how many candidates each retriever returns before fusion.
	OverFetch int
	// MinResults and the score floors decide whether adaptive mode calls the
	// second retriever.
	MinResults   int
	KeywordScore float64
	VectorScore  float64
}

func DefaultConfig() Config {
	return Config{
		FusionK:      fusion.DefaultK,
		OverFetch:    20,
		MinResults:   3,
		KeywordScore: 1.0,
		VectorScore:  0.5,
	}
}

type ToolCall struct {
	Tool   string `json:"tool"`
	Detail string `json:"detail"`
}

type Outcome struct {
	Mode       Mode
	Candidates []retrieval.Candidate
	ToolsUsed  []ToolCall
	Reasoning  []string
}

func (o *Outcome) note(format string, args ...interface{}) {
	o.Reasoning = append(o.Reasoning, fmt.Sprintf(format, args...))
}

func (o *Outcome) used(tool, format string, args ...interface{}) {
	o.ToolsUsed = append(o.ToolsUsed, ToolCall{Tool: tool, Detail: fmt.Sprintf(format, args...)})
}

type Selector struct {
	retrievers map[string]retrieval.Retriever
	cfg        Config
	logger     logger.ILogger
}

func NewSelector(keyword, vector retrieval.Retriever, cfg Config, log logger.ILogger) *Selector {
	def := DefaultConfig()
	if cfg.FusionK <= 0 {
		cfg.FusionK = def.FusionK
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = def.OverFetch
	}
	return &Selector{
		retrievers: map[string]retrieval.Retriever{
			retrieval.SourceKeyword: keyword,
			retrieval.SourceVector:  vector,
		},
		cfg:    cfg,
		logger: log,
	}
}

// Select runs one search in the given mode and returns at most topK
// candidates together with the retrievers invoked and why.
func (s *Selector) Select(ctx context.Context, query string, topK int, ownerId uuid.UUID, mode Mode) (*Outcome, error) {
	if topK <= 0 {
		return nil, apperrors.Input(fmt.Errorf("%w: top_k must be positive", apperrors.ErrInvalidInput))
	}
	out := &Outcome{Mode: mode, Candidates: []retrieval.Candidate{}}

	var err error
	switch mode {
	case ModeKeyword, ModeVector:
		err = s.single(ctx, query, topK, ownerId, string(mode), out)
	case ModeHybrid:
		err = s.hybrid(ctx, query, topK, ownerId, out)
	case ModeAdaptive:
		err = s.adaptive(ctx, query, topK, ownerId, out)
	default:
		return nil, apperrors.Input(fmt.Errorf("%w: unknown search mode %q", apperrors.ErrInvalidInput, mode))
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("STRATEGY", "Search strategy finished", map[string]interface{}{
		"owner_id":   ownerId.String(),
		"mode":       string(mode),
		"tools":      len(out.ToolsUsed),
		"candidates": len(out.Candidates),
	})
	return out, nil
}

func (s *Selector) overFetch(topK int) int {
	if s.cfg.OverFetch > topK {
		return s.cfg.OverFetch
	}
	return topK
}

func (s *Selector) single(ctx context.Context, query string, topK int, ownerId uuid.UUID, tool string, out *Outcome) error {
	out.note("%s mode requested, using the %s retriever only", tool, tool)
	candidates, err := s.retrievers[tool].Retrieve(ctx, query, topK, ownerId)
	if err != nil {
		out.used(tool, "failed: %v", err)
		return fmt.Errorf("%s retrieval failed: %w", tool, err)
	}
	out.used(tool, "returned %d candidates", len(candidates))
	out.Candidates = truncate(candidates, topK)
	return nil
}

func (s *Selector) hybrid(ctx context.Context, query string, topK int, ownerId uuid.UUID, out *Outcome) error {
	out.note("hybrid mode requested, running keyword and vector retrievers in parallel and fusing with RRF (k=%g)", s.cfg.FusionK)

	tools := []string{retrieval.SourceKeyword, retrieval.SourceVector}
	results := make([][]retrieval.Candidate, len(tools))
	errs := make([]error, len(tools))
	n := s.overFetch(topK)

	// Goroutines record their own failure so one retriever going down does
	// not cancel the other.
	var g errgroup.Group
	for i, tool := range tools {
		i, tool := i, tool
		g.Go(func() error {
			results[i], errs[i] = s.retrievers[tool].Retrieve(ctx, query, n, ownerId)
			return nil
		})
	}
	_ = g.Wait()

	var lists [][]retrieval.Candidate
	for i, tool := range tools {
		if errs[i] != nil {
			out.used(tool, "failed: %v", errs[i])
			out.note("%s retriever failed, continuing with the surviving results", tool)
			s.logger.Warn("STRATEGY", "Retriever failed in hybrid mode", map[string]interface{}{
				"tool":  tool,
				"error": errs[i].Error(),
			})
			continue
		}
		out.used(tool, "returned %d candidates", len(results[i]))
		lists = append(lists, results[i])
	}
	if len(lists) == 0 {
		return fmt.Errorf("all retrievers failed: %w", errors.Join(errs...))
	}
	out.Candidates = fusion.Fuse(s.cfg.FusionK, topK, lists...)
	return nil
}

func (s *Selector) adaptive(ctx context.Context, query string, topK int, ownerId uuid.UUID, out *Outcome) error {
	first, why := firstRetriever(query)
	second := complement(first)
	out.note("%s", why)
	n := s.overFetch(topK)

	firstResults, firstErr := s.retrievers[first].Retrieve(ctx, query, n, ownerId)
	if firstErr != nil {
		out.used(first, "failed: %v", firstErr)
		out.note("%s retriever failed, falling back to %s", first, second)
	} else {
		out.used(first, "returned %d candidates", len(firstResults))
		ok, reason := s.sufficient(first, firstResults)
		if ok {
			out.note("%s, no second retriever needed", reason)
			out.Candidates = truncate(firstResults, topK)
			return nil
		}
		out.note("%s, adding %s search and fusing", reason, second)
	}

	secondResults, secondErr := s.retrievers[second].Retrieve(ctx, query, n, ownerId)
	if secondErr != nil {
		out.used(second, "failed: %v", secondErr)
		if firstErr != nil {
			return fmt.Errorf("all retrievers failed: %w", errors.Join(firstErr, secondErr))
		}
		out.note("%s retriever failed, keeping the %s results", second, first)
		out.Candidates = truncate(firstResults, topK)
		return nil
	}
	out.used(second, "returned %d candidates", len(secondResults))

	if firstErr != nil {
		out.Candidates = truncate(secondResults, topK)
		return nil
	}
	out.Candidates = fusion.Fuse(s.cfg.FusionK, topK, firstResults, secondResults)
	out.note("fused %d %s and %d %s candidates with RRF (k=%g)",
		len(firstResults), first, len(secondResults), second, s.cfg.FusionK)
	return nil
}

// sufficient reports whether a first pass is good enough to stop.
func (s *Selector) sufficient(tool string, candidates []retrieval.Candidate) (bool, string) {
	if len(candidates) < s.cfg.MinResults {
		return false, fmt.Sprintf("%s returned %d results, below the minimum of %d", tool, len(candidates), s.cfg.MinResults)
	}
	floor := s.cfg.VectorScore
	if tool == retrieval.SourceKeyword {
		floor = s.cfg.KeywordScore
	}
	if len(candidates) == 0 || candidates[0].Score < floor {
		top := 0.0
		if len(candidates) > 0 {
			top = candidates[0].Score
		}
		return false, fmt.Sprintf("%s top score %.3f is below the confidence floor %.3f", tool, top, floor)
	}
	return true, fmt.Sprintf("%s returned %d results with top score %.3f", tool, len(candidates), candidates[0].Score)
}

func complement(tool string) string {
	if tool == retrieval.SourceKeyword {
		return retrieval.SourceVector
	}
	return retrieval.SourceKeyword
}

func truncate(candidates []retrieval.Candidate, topK int) []retrieval.Candidate {
	if candidates == nil {
		return []retrieval.Candidate{}
	}
	if len(candidates) > topK {
		return candidates[:topK]
	}
	return candidates
}
