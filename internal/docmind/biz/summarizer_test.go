package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docmind/pkg/llm/gateway"
)

func TestUnitSummarizerBudget(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		tokens int
	}{
		{"短文本", strings.Repeat("a", 6000), 300},
		{"长文本", strings.Repeat("a", 6001), 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			s := NewUnitSummarizer(gen, nil, &mockScorer{}, DefaultTwoTierRetry(), 0.3)

			best := s.Summarize(context.Background(), tt.text)
			assert.Equal(t, 0.8, best.Score)
			require.Equal(t, 1, gen.count())
			req := gen.requests()[0]
			assert.Equal(t, tt.tokens, req.MaxTokens)
			assert.Contains(t, req.Prompt, "Ne jamais inventer")
			assert.True(t, strings.HasSuffix(req.Prompt, tt.text+"\n"))
		})
	}
}

func TestUnitSummarizerTranslatesBeforeScoring(t *testing.T) {
	gen := &mockGenerator{fn: func(gateway.Request) (string, error) { return "summary", nil }}
	var scored string
	scorer := &mockScorer{fn: func(reference, candidate string, partials []string) (float64, error) {
		scored = candidate
		assert.Equal(t, "texte source", reference)
		assert.Nil(t, partials)
		return 0.9, nil
	}}
	s := NewUnitSummarizer(gen, mockNormalizer{translate: true}, scorer, DefaultTwoTierRetry(), 0.3)

	best := s.Summarize(context.Background(), "texte source")
	assert.Equal(t, "[fr] summary", best.Text)
	assert.True(t, best.Translated)
	assert.Equal(t, "[fr] summary", scored)
}

func TestUnitSummarizerEmptyGeneration(t *testing.T) {
	gen := &mockGenerator{fn: func(gateway.Request) (string, error) {
		return "", fmt.Errorf("%w: every model returned empty text", gateway.ErrGenerationFailed)
	}}
	scorer := &mockScorer{}
	s := NewUnitSummarizer(gen, nil, scorer, DefaultTwoTierRetry(), 0.3)

	best := s.Summarize(context.Background(), "texte")
	assert.Empty(t, best.Text)
	assert.Equal(t, 0.0, best.Score)
	assert.Equal(t, 8, gen.count())
	assert.Equal(t, 0, scorer.calls)
}

func TestUnitSummarizerScoringError(t *testing.T) {
	gen := &mockGenerator{}
	calls := 0
	scorer := &mockScorer{fn: func(string, string, []string) (float64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("embedding down")
		}
		return 0.71, nil
	}}
	s := NewUnitSummarizer(gen, nil, scorer, DefaultTwoTierRetry(), 0.3)

	best := s.Summarize(context.Background(), "texte")
	assert.Equal(t, 0.71, best.Score)
	assert.Equal(t, 2, gen.count())
}

func TestMerge(t *testing.T) {
	gen := &mockGenerator{fn: func(req gateway.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "résumé final structuré"):
			return "final", nil
		case strings.Contains(req.Prompt, "Fusionne"):
			// 以批次首个单元命名中间摘要
			const marker = "Résumés partiels :\n\n"
			rest := req.Prompt[strings.Index(req.Prompt, marker)+len(marker):]
			return "inter:" + rest[:3], nil
		}
		return "", errors.New("unexpected prompt")
	}}
	var gotPartials []string
	var gotReference string
	scorer := &mockScorer{fn: func(reference, candidate string, partials []string) (float64, error) {
		gotReference, gotPartials = reference, partials
		assert.Equal(t, "final", candidate)
		return 0.77, nil
	}}
	m := NewMerger(gen, scorer, DefaultMergerConfig())

	units := make([]UnitSummary, 12)
	for i := range units {
		units[i] = UnitSummary{Sequence: i, Text: fmt.Sprintf("u%02d", i)}
	}
	res, err := m.Merge(context.Background(), units)
	require.NoError(t, err)

	require.Len(t, res.Intermediates, 3)
	assert.Equal(t, "0-4", res.Intermediates[0].Range)
	assert.Equal(t, "5-9", res.Intermediates[1].Range)
	assert.Equal(t, "10-11", res.Intermediates[2].Range)
	assert.Equal(t, "inter:u00", res.Intermediates[0].Text)
	assert.Equal(t, "inter:u10", res.Intermediates[2].Text)
	assert.Equal(t, "final", res.Final)
	assert.Equal(t, 0.77, res.Score)
	assert.Equal(t, []string{"inter:u00", "inter:u05", "inter:u10"}, gotPartials)
	assert.True(t, strings.HasPrefix(gotReference, "u00\nu01"))

	reqs := gen.requests()
	require.Len(t, reqs, 4)
	for _, r := range reqs[:3] {
		assert.Equal(t, 1000, r.MaxTokens)
	}
	assert.Equal(t, 1500, reqs[3].MaxTokens)

	// 单元在提示中保持顺序
	first := reqs[0].Prompt
	assert.Less(t, strings.Index(first, "u00"), strings.Index(first, "u04"))
	final := reqs[3].Prompt
	assert.Less(t, strings.Index(final, "inter:u00"), strings.Index(final, "inter:u05"))
	assert.Less(t, strings.Index(final, "inter:u05"), strings.Index(final, "inter:u10"))
}

func TestMergeErrors(t *testing.T) {
	m := NewMerger(&mockGenerator{}, &mockScorer{}, DefaultMergerConfig())
	_, err := m.Merge(context.Background(), nil)
	assert.Error(t, err)

	failing := NewMerger(&mockGenerator{fn: func(gateway.Request) (string, error) {
		return "", gateway.ErrGenerationFailed
	}}, &mockScorer{}, DefaultMergerConfig())
	_, err = failing.Merge(context.Background(), []UnitSummary{{Sequence: 0, Text: "a"}})
	assert.ErrorIs(t, err, gateway.ErrGenerationFailed)
}
