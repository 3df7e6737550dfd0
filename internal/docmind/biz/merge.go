package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docmind/pkg/llm/gateway"
)

// UnitSummary 参与合并的单元摘要。
type UnitSummary struct {
	Sequence int
	Text     string
}

// Intermediate 一个批次的合并结果，Range 为首尾单元序号 "i-j"。
type Intermediate struct {
	Sequence int
	Range    string
	Text     string
}

// MergeResult 两级合并的结果。
type MergeResult struct {
	Intermediates []Intermediate
	Final         string
	Score         float64
}

// MergerConfig 合并配置。
type MergerConfig struct {
	BatchSize          int
	IntermediateTokens int
	FinalTokens        int
	Temperature        float64
}

// DefaultMergerConfig 返回默认合并配置。
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{BatchSize: 5, IntermediateTokens: 1000, FinalTokens: 1500, Temperature: 0.3}
}

// Merger 先按批次生成中间摘要，再由中间摘要生成最终摘要。
type Merger struct {
	generator gateway.Generator
	scorer    QualityScorer
	config    MergerConfig
}

// NewMerger 创建合并器。
func NewMerger(generator gateway.Generator, scorer QualityScorer, config MergerConfig) *Merger {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	return &Merger{generator: generator, scorer: scorer, config: config}
}

// Merge 按输入顺序合并 units，调用方保证 units 已按 Sequence 升序排列。
func (m *Merger) Merge(ctx context.Context, units []UnitSummary) (*MergeResult, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("no unit summary to merge")
	}

	result := &MergeResult{}
	for start := 0; start < len(units); start += m.config.BatchSize {
		end := start + m.config.BatchSize
		if end > len(units) {
			end = len(units)
		}
		batch := units[start:end]

		texts := make([]string, len(batch))
		for i, u := range batch {
			texts[i] = u.Text
		}
		text, err := m.generator.Generate(ctx, gateway.Request{
			Prompt:      intermediatePrompt(texts),
			MaxTokens:   m.config.IntermediateTokens,
			Temperature: m.config.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("intermediate summary %d: %w", len(result.Intermediates), err)
		}

		result.Intermediates = append(result.Intermediates, Intermediate{
			Sequence: len(result.Intermediates),
			Range:    fmt.Sprintf("%d-%d", batch[0].Sequence, batch[len(batch)-1].Sequence),
			Text:     text,
		})
	}

	partials := make([]string, len(result.Intermediates))
	for i, im := range result.Intermediates {
		partials[i] = im.Text
	}
	final, err := m.generator.Generate(ctx, gateway.Request{
		Prompt:      finalPrompt(partials),
		MaxTokens:   m.config.FinalTokens,
		Temperature: m.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("final summary: %w", err)
	}
	result.Final = final

	// 最终摘要同时参照全部单元摘要与中间摘要
	reference := make([]string, len(units))
	for i, u := range units {
		reference[i] = u.Text
	}
	score, err := m.scorer.Score(ctx, strings.Join(reference, "\n"), final, partials)
	if err != nil {
		logger.Warnw("final summary scoring failed", "error", err.Error())
		score = 0
	}
	result.Score = score
	return result, nil
}
