package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"visual-search-be/internal/pkg/logger"
	"visual-search-be/internal/repository/memory"
	"visual-search-be/internal/testutil"
	"visual-search-be/pkg/apperrors"
	"visual-search-be/pkg/chunker"
	"visual-search-be/pkg/rag/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	name   string
	result []retrieval.Candidate
	err    error
	calls  int
}

func (s *stubRetriever) Name() string { return s.name }

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int, ownerId uuid.UUID) ([]retrieval.Candidate, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.result) > k {
		return s.result[:k], nil
	}
	return s.result, nil
}

func list(source string, scores ...float64) []retrieval.Candidate {
	out := make([]retrieval.Candidate, len(scores))
	for i, sc := range scores {
		out[i] = retrieval.Candidate{ItemId: uuid.New(), Score: sc, Rank: i + 1, Source: source}
	}
	return out
}

func tools(o *Outcome) []string {
	var names []string
	for _, t := range o.ToolsUsed {
		names = append(names, t.Tool)
	}
	return names
}

func newSelector(kw, vec retrieval.Retriever) *Selector {
	return NewSelector(kw, vec, DefaultConfig(), logger.NewNopLogger())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeHybrid, "keyword": ModeKeyword, "VECTOR": ModeVector, " adaptive ": ModeAdaptive, "hybrid": ModeHybrid} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fuzzy")
	assert.True(t, apperrors.IsInput(err))
}

func TestSelect_SingleModes(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 3, 2, 1)}
	vec := &stubRetriever{name: "vector", result: list("vector", 0.9)}
	s := newSelector(kw, vec)

	out, err := s.Select(context.Background(), "lamp", 2, uuid.New(), ModeKeyword)
	require.NoError(t, err)
	assert.Len(t, out.Candidates, 2)
	assert.Equal(t, []string{"keyword"}, tools(out))
	assert.Equal(t, 0, vec.calls)

	out, err = s.Select(context.Background(), "lamp", 2, uuid.New(), ModeVector)
	require.NoError(t, err)
	assert.Equal(t, []string{"vector"}, tools(out))
}

func TestSelect_SingleModeFailureIsError(t *testing.T) {
	s := newSelector(&stubRetriever{name: "keyword", err: errors.New("boom")}, &stubRetriever{name: "vector"})
	_, err := s.Select(context.Background(), "lamp", 5, uuid.New(), ModeKeyword)
	assert.Error(t, err)
}

func TestSelect_RejectsNonPositiveTopK(t *testing.T) {
	s := newSelector(&stubRetriever{name: "keyword"}, &stubRetriever{name: "vector"})
	_, err := s.Select(context.Background(), "lamp", 0, uuid.New(), ModeHybrid)
	assert.True(t, apperrors.IsInput(err))
}

func TestSelect_HybridFusesBoth(t *testing.T) {
	shared := uuid.New()
	kw := &stubRetriever{name: "keyword", result: []retrieval.Candidate{{ItemId: shared, Rank: 1, Score: 4, Source: "keyword"}}}
	vec := &stubRetriever{name: "vector", result: append([]retrieval.Candidate{{ItemId: shared, Rank: 1, Score: 0.9, Source: "vector"}}, list("vector", 0.5, 0.4)...)}

	out, err := newSelector(kw, vec).Select(context.Background(), "lamp", 10, uuid.New(), ModeHybrid)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 3)
	assert.Equal(t, shared, out.Candidates[0].ItemId)
	assert.Equal(t, "keyword+vector", out.Candidates[0].Source)
	assert.ElementsMatch(t, []string{"keyword", "vector"}, tools(out))
}

func TestSelect_HybridDegradesToSurvivor(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 2, 1)}
	vec := &stubRetriever{name: "vector", err: errors.New("vector store down")}

	out, err := newSelector(kw, vec).Select(context.Background(), "lamp", 10, uuid.New(), ModeHybrid)
	require.NoError(t, err)
	assert.Len(t, out.Candidates, 2)
	assert.Contains(t, out.ToolsUsed[1].Detail, "vector store down")
}

func TestSelect_HybridAllFail(t *testing.T) {
	kw := &stubRetriever{name: "keyword", err: errors.New("index broken")}
	vec := &stubRetriever{name: "vector", err: errors.New("vector store down")}
	_, err := newSelector(kw, vec).Select(context.Background(), "lamp", 10, uuid.New(), ModeHybrid)
	assert.ErrorContains(t, err, "vector store down")
}

func TestSelect_AdaptiveStopsWhenFirstIsConfident(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 5, 4, 3, 2)}
	vec := &stubRetriever{name: "vector", result: list("vector", 0.9)}

	out, err := newSelector(kw, vec).Select(context.Background(), "LAMP", 10, uuid.New(), ModeAdaptive)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyword"}, tools(out))
	assert.Equal(t, 0, vec.calls)
	assert.Len(t, out.Candidates, 4)
	require.Len(t, out.Reasoning, 2)
	assert.Contains(t, out.Reasoning[0], "all caps")
}

func TestSelect_AdaptiveAddsComplementOnLowConfidence(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 3, 2, 1)}
	vec := &stubRetriever{name: "vector", result: list("vector", 0.3, 0.2, 0.1)}

	out, err := newSelector(kw, vec).Select(context.Background(), "what shows a sunset over water?", 10, uuid.New(), ModeAdaptive)
	require.NoError(t, err)
	assert.Equal(t, []string{"vector", "keyword"}, tools(out))
	assert.Len(t, out.Candidates, 6)
	assert.Contains(t, out.Reasoning[0], "question")
	assert.Contains(t, out.Reasoning[1], "below the confidence floor")
}

func TestSelect_AdaptiveAddsComplementOnFewResults(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 9)}
	vec := &stubRetriever{name: "vector", result: list("vector", 0.8, 0.7)}

	out, err := newSelector(kw, vec).Select(context.Background(), "sofa", 10, uuid.New(), ModeAdaptive)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyword", "vector"}, tools(out))
	assert.Contains(t, out.Reasoning[1], "below the minimum")
}

func TestSelect_AdaptiveFallsBackWhenFirstFails(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 2)}
	vec := &stubRetriever{name: "vector", err: errors.New("timeout")}

	out, err := newSelector(kw, vec).Select(context.Background(), "how many photos show dogs", 10, uuid.New(), ModeAdaptive)
	require.NoError(t, err)
	assert.Equal(t, []string{"vector", "keyword"}, tools(out))
	assert.Len(t, out.Candidates, 1)
}

func TestSelect_AdaptiveKeepsFirstWhenSecondFails(t *testing.T) {
	kw := &stubRetriever{name: "keyword", result: list("keyword", 0.2)}
	vec := &stubRetriever{name: "vector", err: errors.New("timeout")}

	out, err := newSelector(kw, vec).Select(context.Background(), "sofa", 10, uuid.New(), ModeAdaptive)
	require.NoError(t, err)
	assert.Len(t, out.Candidates, 1)
	assert.Contains(t, out.Reasoning[len(out.Reasoning)-1], "keeping the keyword results")
}

func TestFirstRetriever(t *testing.T) {
	cases := map[string]string{
		"sofa":                            "keyword",
		"red sofa":                        "keyword",
		"IKEA RECEIPT 2023":               "keyword",
		`"blue door"`:                     "keyword",
		"tag:receipt":                     "keyword",
		"where did I see a lighthouse":    "vector",
		"photos with warm cozy vibes?":    "vector",
		"warm light in a cozy cabin room": "vector",
		"beach sunset calm":               "vector",
	}
	for q, want := range cases {
		got, why := firstRetriever(q)
		assert.Equal(t, want, got, q)
		assert.NotEmpty(t, why)
	}
}

func TestSelect_HybridFurnitureCorpus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	owner := uuid.New()

	furniture := map[uuid.UUID]bool{}
	for _, h := range []string{"Grey sofa", "Oak dining chair", "Walnut sideboard"} {
		furniture[testutil.Seed(ctx, store, owner, testutil.Furniture(h))] = true
	}
	for i, topic := range []string{"beach", "mountain", "dog", "receipt", "car", "forest", "city"} {
		testutil.Seed(ctx, store, owner, testutil.Unrelated(fmt.Sprintf("%s%d", topic, i)))
	}

	kw := retrieval.NewKeywordRetriever(store, chunker.New(), retrieval.BM25Params{K1: 1.2, B: 0.75}, time.Minute, logger.NewNopLogger())
	vec := retrieval.NewVectorRetriever(store, &testutil.HashEmbedder{}, logger.NewNopLogger())

	out, err := newSelector(kw, vec).Select(ctx, "modern furniture", 10, owner, ModeHybrid)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out.Candidates), 3)
	for _, c := range out.Candidates[:3] {
		assert.True(t, furniture[c.ItemId])
	}
	assert.ElementsMatch(t, []string{"keyword", "vector"}, tools(out))
}
