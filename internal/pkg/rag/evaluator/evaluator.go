// Package evaluator 提供摘要质量评分。
//
// 评分由两部分组成：
//   - 语义相似度：参考文本与候选摘要向量的余弦相似度，归一化到 [0, 1]
//   - 关键词重合度：参考文本前 12 个关键词在候选摘要关键词中出现的比例
//
// 使用示例:
//
//	scorer := evaluator.New(embedProvider)
//	score, err := scorer.Score(ctx, pageText, summary, nil)
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
	"github.com/kart-io/docmind/pkg/llm"
)

// WeightConfig 评分权重配置。
type WeightConfig struct {
	// Semantic 语义相似度权重。
	Semantic float64
	// Keyword 关键词重合度权重。
	Keyword float64
	// Full 与完整参考文本比较的权重。
	Full float64
	// Partial 与部分摘要拼接文本比较的权重。
	Partial float64
}

// DefaultWeights 返回默认的评分权重。
func DefaultWeights() WeightConfig {
	return WeightConfig{
		Semantic: 0.7,
		Keyword:  0.3,
		Full:     0.6,
		Partial:  0.4,
	}
}

// Scorer 摘要质量评分器。
type Scorer struct {
	embedProvider llm.EmbeddingProvider
	keywords      *textutil.KeywordExtractor
	weights       WeightConfig
	topKeywords   int
}

// Option 配置 Scorer 的选项。
type Option func(*Scorer)

// WithWeights 设置评分权重。
func WithWeights(weights WeightConfig) Option {
	return func(s *Scorer) {
		s.weights = weights
	}
}

// WithTopKeywords 设置参与重合度计算的关键词数量。
func WithTopKeywords(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.topKeywords = n
		}
	}
}

// New 创建新的摘要评分器。
func New(embedProvider llm.EmbeddingProvider, opts ...Option) *Scorer {
	s := &Scorer{
		embedProvider: embedProvider,
		keywords:      textutil.NewKeywordExtractor(),
		weights:       DefaultWeights(),
		topKeywords:   12,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 计算候选摘要相对参考文本的质量分，结果保留 4 位小数。
// 参考文本或候选为空时返回 0 且不调用模型。partials 非空时同时与其拼接文本比较。
func (s *Scorer) Score(ctx context.Context, reference, candidate string, partials []string) (float64, error) {
	if strings.TrimSpace(reference) == "" || strings.TrimSpace(candidate) == "" {
		return 0, nil
	}

	candidateEmbed, err := s.embedProvider.EmbedSingle(ctx, candidate)
	if err != nil {
		return 0, fmt.Errorf("嵌入候选摘要失败: %w", err)
	}
	candidateKeywords := s.keywords.Extract(candidate, s.topKeywords)

	full, err := s.component(ctx, reference, candidateEmbed, candidateKeywords)
	if err != nil {
		return 0, err
	}

	partial := full
	if len(partials) > 0 {
		partial, err = s.component(ctx, strings.Join(partials, "\n"), candidateEmbed, candidateKeywords)
		if err != nil {
			return 0, err
		}
	}

	return textutil.Round(s.weights.Full*full+s.weights.Partial*partial, 4), nil
}

func (s *Scorer) component(ctx context.Context, reference string, candidateEmbed []float32, candidateKeywords []string) (float64, error) {
	refEmbed, err := s.embedProvider.EmbedSingle(ctx, reference)
	if err != nil {
		return 0, fmt.Errorf("嵌入参考文本失败: %w", err)
	}
	semantic := textutil.NormalizeCosineSimilarity(textutil.CosineSimilarity(refEmbed, candidateEmbed))
	keyword := KeywordOverlap(s.keywords.Extract(reference, s.topKeywords), candidateKeywords)
	return s.weights.Semantic*semantic + s.weights.Keyword*keyword, nil
}

// KeywordOverlap 计算 |ref ∩ cand| / max(|ref|, 1)。
func KeywordOverlap(ref, cand []string) float64 {
	refSet := make(map[string]struct{}, len(ref))
	for _, w := range ref {
		refSet[w] = struct{}{}
	}
	candSet := make(map[string]struct{}, len(cand))
	for _, w := range cand {
		candSet[w] = struct{}{}
	}

	common := 0
	for w := range refSet {
		if _, ok := candSet[w]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(refSet), 1))
}
