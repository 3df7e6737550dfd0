package biz

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/docmind/pkg/llm/gateway"
)

// QualityScorer 对候选摘要打分，partials 可为空。
type QualityScorer interface {
	Score(ctx context.Context, reference, candidate string, partials []string) (float64, error)
}

// Normalizer 将文本统一为目标语言，返回是否发生了翻译。
type Normalizer interface {
	Normalize(ctx context.Context, text string) (string, bool)
}

// 单元摘要的生成长度，长文本使用更大的预算。
const (
	unitTokensShort = 300
	unitTokensLong  = 400
	longTextRunes   = 6000
)

// UnitSummarizer 为单个单元生成并评估摘要。
type UnitSummarizer struct {
	generator   gateway.Generator
	normalizer  Normalizer
	scorer      QualityScorer
	retry       TwoTierRetry
	temperature float64
}

// NewUnitSummarizer 创建单元摘要器。normalizer 为 nil 时不做语言处理。
func NewUnitSummarizer(generator gateway.Generator, normalizer Normalizer, scorer QualityScorer, retry TwoTierRetry, temperature float64) *UnitSummarizer {
	return &UnitSummarizer{
		generator:   generator,
		normalizer:  normalizer,
		scorer:      scorer,
		retry:       retry,
		temperature: temperature,
	}
}

// Summarize 在两级重试下返回最佳摘要。所有尝试都失败时返回空 Candidate。
func (s *UnitSummarizer) Summarize(ctx context.Context, text string) Candidate {
	return s.retry.Run(ctx, func(ctx context.Context, _ int) (Candidate, error) {
		return s.attempt(ctx, text)
	})
}

func (s *UnitSummarizer) attempt(ctx context.Context, text string) (Candidate, error) {
	maxTokens := unitTokensShort
	if utf8.RuneCountInString(text) > longTextRunes {
		maxTokens = unitTokensLong
	}

	summary, err := s.generator.Generate(ctx, gateway.Request{
		Prompt:      unitPrompt(text),
		MaxTokens:   maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return Candidate{}, err
	}

	translated := false
	if s.normalizer != nil {
		summary, translated = s.normalizer.Normalize(ctx, summary)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return Candidate{}, fmt.Errorf("empty summary")
	}

	score, err := s.scorer.Score(ctx, text, summary, nil)
	if err != nil {
		return Candidate{}, fmt.Errorf("score summary: %w", err)
	}
	return Candidate{Text: summary, Score: score, Translated: translated}, nil
}
